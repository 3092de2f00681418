// Package loader orchestrates section loading for the dashboard: cache
// first, then prefetch promotion, then a deduplicated, priority-queued
// network fetch, all guarded by a single load mutex so overlapping
// navigation events never duplicate work.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/juankaspain/BotV2-sub004/internal/cache"
	"github.com/juankaspain/BotV2-sub004/internal/flow"
	"github.com/juankaspain/BotV2-sub004/internal/metrics"
)

// ErrLoadInProgress tells a caller its load was dropped because another
// load holds the mutex. Not an error state; the earlier load will render.
var ErrLoadInProgress = errors.New("loader: load already in progress")

// ErrSuperseded marks a fetch whose cancellation token was superseded
// before its result could be used. Callers discard it silently.
var ErrSuperseded = errors.New("loader: result superseded by a newer request")

// Queue priorities: interactive loads outrank speculative prefetches.
const (
	PriorityLoad     = 1
	PriorityPrefetch = 5
)

// Source identifies where a served section came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourcePrefetch Source = "prefetch"
	SourceNetwork  Source = "network"
)

// Result is one served section.
type Result struct {
	Key     string
	Data    any
	Source  Source
	Elapsed time.Duration
}

// FetchFunc retrieves a section's data from its backing source.
type FetchFunc func(ctx context.Context, key string) (any, error)

// RenderFunc receives every successfully served section. It is the UI-side
// collaborator; the loader treats it as opaque.
type RenderFunc func(res *Result)

// PredictFunc names the section likely wanted after key, or "" for none.
type PredictFunc func(key string) string

// Config wires a Loader's collaborators. Fetch is required; the rest
// default to sane instances.
type Config struct {
	Fetch          FetchFunc
	Render         RenderFunc
	Predict        PredictFunc
	CacheCapacity  int
	CacheTTL       time.Duration
	PrefetchMaxAge time.Duration
	QueueSize      int // max concurrent fetches
	Monitor        *metrics.Monitor
	Logger         *slog.Logger
}

// Loader serves named dashboard sections through the performance layer.
type Loader struct {
	fetch   FetchFunc
	render  RenderFunc
	predict PredictFunc

	lock     *flow.Mutex
	cache    *cache.Cache[string, any]
	prefetch *cache.PrefetchStore[string, any]
	dedup    *flow.Deduplicator[any]
	cancels  *flow.CancelRegistry
	queue    *flow.PriorityQueue

	prefetchMaxAge time.Duration
	mon            *metrics.Monitor
	log            *slog.Logger
}

// New creates a Loader from cfg.
func New(cfg Config) *Loader {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = 50
	}
	if cfg.PrefetchMaxAge <= 0 {
		cfg.PrefetchMaxAge = time.Minute
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4
	}
	mon := cfg.Monitor
	if mon == nil {
		mon = metrics.NewMonitor(log, 0)
	}

	return &Loader{
		fetch:          cfg.Fetch,
		render:         cfg.Render,
		predict:        cfg.Predict,
		lock:           flow.NewMutex(),
		cache:          cache.New[string, any](cfg.CacheCapacity, cfg.CacheTTL, cache.WithLogger(log)),
		prefetch:       cache.NewPrefetchStore[string, any](log),
		dedup:          flow.NewDeduplicator[any](log),
		cancels:        flow.NewCancelRegistry(),
		queue:          flow.NewPriorityQueue(cfg.QueueSize),
		prefetchMaxAge: cfg.PrefetchMaxAge,
		mon:            mon,
		log:            log.With("component", "loader"),
	}
}

// Load serves the section for key. It returns ErrLoadInProgress when a load
// already holds the mutex (the request is dropped, not queued). The lock is
// released unconditionally on every path.
func (l *Loader) Load(ctx context.Context, key string) (*Result, error) {
	if !l.lock.TryAcquire() {
		l.log.Debug("load dropped, already in progress", "key", key)
		return nil, ErrLoadInProgress
	}
	defer l.lock.Release()

	start := time.Now()
	defer l.mon.StartTimer("loader.load")()

	if v, ok := l.cache.Get(key); ok {
		return l.serve(ctx, key, v, SourceCache, start), nil
	}

	if v, ok := l.prefetch.Take(key, l.prefetchMaxAge); ok {
		l.cache.Set(key, v)
		return l.serve(ctx, key, v, SourcePrefetch, start), nil
	}

	tok := l.cancels.Create(ctx, key)
	v, shared, err := l.dedup.Execute(key, func() (any, error) {
		task := l.queue.Enqueue(func() (any, error) {
			return l.fetch(tok.Context(), key)
		}, PriorityLoad)
		return task.Wait(tok.Context())
	})
	if err != nil {
		if tok.Aborted() {
			l.log.Debug("discarding superseded fetch", "key", key)
			return nil, ErrSuperseded
		}
		return nil, fmt.Errorf("fetching section %s: %w", key, err)
	}
	if tok.Aborted() {
		l.log.Debug("discarding superseded result", "key", key)
		return nil, ErrSuperseded
	}
	if shared {
		l.mon.Record("loader.deduped", time.Since(start))
	}

	l.cache.Set(key, v)
	return l.serve(ctx, key, v, SourceNetwork, start), nil
}

// serve builds the Result, invokes the render callback, and kicks off the
// predicted-next prefetch.
func (l *Loader) serve(ctx context.Context, key string, data any, src Source, start time.Time) *Result {
	res := &Result{Key: key, Data: data, Source: src, Elapsed: time.Since(start)}
	l.mon.Record("loader.serve."+string(src), res.Elapsed)

	if l.render != nil {
		l.render(res)
	}

	if l.predict != nil {
		if next := l.predict(key); next != "" {
			go l.Prefetch(context.WithoutCancel(ctx), next)
		}
	}
	return res
}

// Prefetch speculatively warms key at low queue priority. Already-cached
// and already-prefetched keys are skipped.
func (l *Loader) Prefetch(ctx context.Context, key string) {
	if _, ok := l.cache.Get(key); ok {
		return
	}
	l.prefetch.Prefetch(ctx, key, func(ctx context.Context) (any, error) {
		task := l.queue.Enqueue(func() (any, error) {
			return l.fetch(ctx, key)
		}, PriorityPrefetch)
		return task.Wait(ctx)
	})
}

// Invalidate drops key from the cache and aborts any in-flight fetch for
// it, forcing the next Load to hit the network.
func (l *Loader) Invalidate(key string) {
	l.cache.Delete(key)
	l.dedup.Cancel(key)
	l.cancels.Abort(key)
}

// InvalidateAll clears the cache and aborts everything in flight.
func (l *Loader) InvalidateAll() {
	l.cache.Clear()
	l.dedup.CancelAll()
	l.cancels.AbortAll()
	l.queue.Clear()
}

// CacheStats exposes the main cache's counters for the metrics endpoint.
func (l *Loader) CacheStats() cache.Stats[string] {
	return l.cache.Stats()
}

// Busy reports whether a load currently holds the mutex.
func (l *Loader) Busy() bool {
	return l.lock.IsLocked()
}
