package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type prefetchEntry[V any] struct {
	value     V
	fetchedAt time.Time
}

// PrefetchStore holds speculatively fetched values keyed by prediction
// target. Entries are written only on successful fetches; failures are
// logged and nothing is cached, so a later real load retries normally.
type PrefetchStore[K comparable, V any] struct {
	mu       sync.Mutex
	entries  map[K]prefetchEntry[V]
	inflight map[K]bool
	clock    Clock
	log      *slog.Logger
}

// NewPrefetchStore creates an empty PrefetchStore.
func NewPrefetchStore[K comparable, V any](log *slog.Logger, opts ...Option) *PrefetchStore[K, V] {
	o := options{clock: realClock{}, log: log}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	return &PrefetchStore[K, V]{
		entries:  make(map[K]prefetchEntry[V]),
		inflight: make(map[K]bool),
		clock:    o.clock,
		log:      o.log,
	}
}

// Prefetch runs fetch and stores the result for key. It is skipped when an
// entry already exists or another prefetch for the same key is in flight.
// It blocks until the fetch settles; callers wanting fire-and-forget run it
// in their own goroutine.
func (p *PrefetchStore[K, V]) Prefetch(ctx context.Context, key K, fetch func(context.Context) (V, error)) {
	p.mu.Lock()
	if _, ok := p.entries[key]; ok || p.inflight[key] {
		p.mu.Unlock()
		return
	}
	p.inflight[key] = true
	p.mu.Unlock()

	value, err := fetch(ctx)

	p.mu.Lock()
	delete(p.inflight, key)
	if err != nil {
		p.mu.Unlock()
		p.log.Debug("prefetch failed", "key", key, "error", err)
		return
	}
	p.entries[key] = prefetchEntry[V]{value: value, fetchedAt: p.clock.Now()}
	p.mu.Unlock()
}

// Get returns the prefetched value for key if it is younger than maxAge.
// Stale entries are purged and reported as misses.
func (p *PrefetchStore[K, V]) Get(key K, maxAge time.Duration) (V, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var zero V
	ent, ok := p.entries[key]
	if !ok {
		return zero, false
	}
	if p.clock.Now().Sub(ent.fetchedAt) > maxAge {
		delete(p.entries, key)
		return zero, false
	}
	return ent.value, true
}

// Take returns the prefetched value like Get and removes it from the store,
// for promotion into the main cache.
func (p *PrefetchStore[K, V]) Take(key K, maxAge time.Duration) (V, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var zero V
	ent, ok := p.entries[key]
	if !ok {
		return zero, false
	}
	delete(p.entries, key)
	if p.clock.Now().Sub(ent.fetchedAt) > maxAge {
		return zero, false
	}
	return ent.value, true
}

// Len returns the number of stored prefetch entries.
func (p *PrefetchStore[K, V]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
