package flow

import (
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Deduplicator collapses concurrent identical requests into one shared
// execution: while a call for a key is in flight, further Execute calls for
// that key wait on the same outcome instead of invoking their own fn. The
// bookkeeping is removed when the call settles, success or failure.
type Deduplicator[V any] struct {
	group singleflight.Group
	log   *slog.Logger

	mu       sync.Mutex
	inflight map[string]int
}

// NewDeduplicator creates an empty Deduplicator.
func NewDeduplicator[V any](log *slog.Logger) *Deduplicator[V] {
	if log == nil {
		log = slog.Default()
	}
	return &Deduplicator[V]{
		log:      log,
		inflight: make(map[string]int),
	}
}

// Execute runs fn for key, or joins the in-flight call for key if one
// exists. Every joined caller receives the same value or the same error.
// The shared result reports whether the outcome was delivered to more than
// one caller.
func (d *Deduplicator[V]) Execute(key string, fn func() (V, error)) (V, bool, error) {
	d.mu.Lock()
	d.inflight[key]++
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.inflight[key]--
		if d.inflight[key] <= 0 {
			delete(d.inflight, key)
		}
		d.mu.Unlock()
	}()

	v, err, shared := d.group.Do(key, func() (any, error) {
		return fn()
	})
	if shared {
		d.log.Debug("request deduplicated", "key", key)
	}

	var value V
	if v != nil {
		value = v.(V)
	}
	return value, shared, err
}

// Cancel forgets the in-flight bookkeeping for key: the next Execute for
// key starts a fresh call instead of joining the old one. The underlying
// operation is not aborted; combine with a CancelRegistry token for that.
func (d *Deduplicator[V]) Cancel(key string) {
	d.group.Forget(key)
}

// CancelAll forgets every key currently in flight.
func (d *Deduplicator[V]) CancelAll() {
	d.mu.Lock()
	keys := make([]string, 0, len(d.inflight))
	for k := range d.inflight {
		keys = append(keys, k)
	}
	d.mu.Unlock()

	for _, k := range keys {
		d.group.Forget(k)
	}
}

// InFlight returns the number of distinct keys with live calls.
func (d *Deduplicator[V]) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}
