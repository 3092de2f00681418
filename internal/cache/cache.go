// Package cache provides the bounded, expiring stores behind the dashboard's
// section-loading layer: an LRU cache with per-instance TTL and a speculative
// prefetch store for predicted-next navigation.
package cache

import (
	"container/list"
	"log/slog"
	"sync"
	"time"
)

// DefaultTTL is the entry lifetime used when none is configured.
const DefaultTTL = 5 * time.Minute

// Stats is a snapshot of cache contents and counters.
type Stats[K comparable] struct {
	Size        int
	Capacity    int
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Expirations uint64
	Keys        []K // most recently used first
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	insertedAt time.Time
	lastAccess time.Time
}

// Cache is a bounded key/value store with least-recently-used eviction and
// a fixed per-entry time to live. Expired entries are purged lazily on Get.
// All methods are safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	items    map[K]*list.Element
	order    *list.List // front = most recently used
	capacity int
	ttl      time.Duration
	clock    Clock
	log      *slog.Logger

	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	clock Clock
	log   *slog.Logger
}

// WithClock replaces the cache's time source, for tests.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger attaches a logger for eviction and expiry events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// New creates a Cache holding at most capacity entries, each expiring ttl
// after insertion. A non-positive ttl falls back to DefaultTTL.
func New[K comparable, V any](capacity int, ttl time.Duration, opts ...Option) *Cache[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	o := options{clock: realClock{}, log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Cache[K, V]{
		items:    make(map[K]*list.Element),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		clock:    o.clock,
		log:      o.log,
	}
}

// Get returns the value for key. An absent or expired entry yields the zero
// value and false; expired entries are purged on the spot. A hit refreshes
// the entry's recency.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}

	ent := elem.Value.(*entry[K, V])
	now := c.clock.Now()
	if now.Sub(ent.insertedAt) > c.ttl {
		c.removeLocked(elem)
		c.expirations++
		c.misses++
		c.log.Debug("cache entry expired", "key", key, "age", now.Sub(ent.insertedAt))
		return zero, false
	}

	ent.lastAccess = now
	c.order.MoveToFront(elem)
	c.hits++
	return ent.value, true
}

// Set inserts or replaces the value for key. Replacing refreshes recency and
// the TTL clock without counting against capacity; inserting at capacity
// first evicts the least recently used entry.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry[K, V])
		ent.value = value
		ent.insertedAt = now
		ent.lastAccess = now
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		c.evictLocked()
	}

	ent := &entry[K, V]{key: key, value: value, insertedAt: now, lastAccess: now}
	c.items[key] = c.order.PushFront(ent)
}

// evictLocked drops the least recently used entry. Caller holds c.mu.
func (c *Cache[K, V]) evictLocked() {
	elem := c.order.Back()
	if elem == nil {
		return
	}
	ent := elem.Value.(*entry[K, V])
	c.removeLocked(elem)
	c.evictions++
	c.log.Debug("cache entry evicted", "key", ent.key)
}

func (c *Cache[K, V]) removeLocked(elem *list.Element) {
	ent := elem.Value.(*entry[K, V])
	c.order.Remove(elem)
	delete(c.items, ent.key)
}

// Delete removes key from the cache. It reports whether an entry existed.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeLocked(elem)
	return true
}

// Clear removes all entries. Counters are preserved.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*list.Element)
	c.order.Init()
}

// Len returns the number of entries, including any not yet lazily expired.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of size, capacity, counters, and keys in
// most-recently-used order.
func (c *Cache[K, V]) Stats() Stats[K] {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, c.order.Len())
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*entry[K, V]).key)
	}

	return Stats[K]{
		Size:        c.order.Len(),
		Capacity:    c.capacity,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		Keys:        keys,
	}
}
