package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced Clock for TTL tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestLRUEviction(t *testing.T) {
	c := New[string, int](3, time.Minute, WithLogger(discard()))

	c.Set("A", 1)
	c.Set("B", 2)
	c.Set("C", 3)
	c.Set("D", 4)

	if _, ok := c.Get("A"); ok {
		t.Error("A should have been evicted")
	}
	if v, ok := c.Get("D"); !ok || v != 4 {
		t.Errorf("Get(D) = %d, %v; want 4, true", v, ok)
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
	for _, k := range []string{"B", "C", "D"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("expected %s to survive", k)
		}
	}
}

func TestLRURecencyRefresh(t *testing.T) {
	c := New[string, int](3, time.Minute, WithLogger(discard()))

	c.Set("A", 1)
	c.Set("B", 2)
	c.Set("C", 3)
	c.Get("A") // refresh A: B becomes least recently used
	c.Set("D", 4)

	if _, ok := c.Get("A"); !ok {
		t.Error("A was refreshed and should survive")
	}
	if _, ok := c.Get("B"); ok {
		t.Error("B should have been evicted")
	}
}

func TestSetReplaceDoesNotEvict(t *testing.T) {
	c := New[string, int](2, time.Minute, WithLogger(discard()))

	c.Set("A", 1)
	c.Set("B", 2)
	c.Set("A", 10)

	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	if v, _ := c.Get("A"); v != 10 {
		t.Errorf("Get(A) = %d, want 10", v)
	}
	if _, ok := c.Get("B"); !ok {
		t.Error("B should not have been evicted by a replace")
	}
}

func TestTTLExpiry(t *testing.T) {
	clock := newFakeClock()
	c := New[string, string](10, 100*time.Millisecond, WithClock(clock), WithLogger(discard()))

	c.Set("K", "v")
	clock.Advance(150 * time.Millisecond)

	if _, ok := c.Get("K"); ok {
		t.Error("expired entry must not be returned")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be purged on access, Len() = %d", c.Len())
	}

	stats := c.Stats()
	if stats.Expirations != 1 {
		t.Errorf("Expirations = %d, want 1", stats.Expirations)
	}
}

func TestSetRefreshesTTL(t *testing.T) {
	clock := newFakeClock()
	c := New[string, string](10, 100*time.Millisecond, WithClock(clock), WithLogger(discard()))

	c.Set("K", "v1")
	clock.Advance(80 * time.Millisecond)
	c.Set("K", "v2")
	clock.Advance(80 * time.Millisecond)

	// 160ms after first insert, but only 80ms after the replace.
	if v, ok := c.Get("K"); !ok || v != "v2" {
		t.Errorf("Get(K) = %q, %v; want v2, true", v, ok)
	}
}

func TestDeleteAndClear(t *testing.T) {
	c := New[string, int](5, time.Minute, WithLogger(discard()))

	c.Set("A", 1)
	c.Set("B", 2)

	if !c.Delete("A") {
		t.Error("Delete(A) = false, want true")
	}
	if c.Delete("A") {
		t.Error("second Delete(A) = true, want false")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", c.Len())
	}
}

func TestStats(t *testing.T) {
	c := New[string, int](3, time.Minute, WithLogger(discard()))

	c.Set("A", 1)
	c.Set("B", 2)
	c.Get("A")
	c.Get("missing")

	stats := c.Stats()
	if stats.Size != 2 || stats.Capacity != 3 {
		t.Errorf("Size/Capacity = %d/%d, want 2/3", stats.Size, stats.Capacity)
	}
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Hits/Misses = %d/%d, want 1/1", stats.Hits, stats.Misses)
	}
	if len(stats.Keys) != 2 || stats.Keys[0] != "A" {
		t.Errorf("Keys = %v, want [A B] (MRU first)", stats.Keys)
	}
}

func TestPrefetchStoreRoundTrip(t *testing.T) {
	p := NewPrefetchStore[string, int](discard())

	calls := 0
	fetch := func(context.Context) (int, error) {
		calls++
		return 42, nil
	}

	p.Prefetch(context.Background(), "next", fetch)
	p.Prefetch(context.Background(), "next", fetch) // entry exists, skipped

	if calls != 1 {
		t.Errorf("fetch called %d times, want 1", calls)
	}
	if v, ok := p.Get("next", time.Minute); !ok || v != 42 {
		t.Errorf("Get = %d, %v; want 42, true", v, ok)
	}
}

func TestPrefetchStoreFailureNotCached(t *testing.T) {
	p := NewPrefetchStore[string, int](discard())

	p.Prefetch(context.Background(), "k", func(context.Context) (int, error) {
		return 0, errors.New("fetch failed")
	})

	if _, ok := p.Get("k", time.Minute); ok {
		t.Error("failed prefetch must not be cached")
	}

	// The slot is free again after a failure.
	p.Prefetch(context.Background(), "k", func(context.Context) (int, error) {
		return 7, nil
	})
	if v, ok := p.Get("k", time.Minute); !ok || v != 7 {
		t.Errorf("Get = %d, %v; want 7, true", v, ok)
	}
}

func TestPrefetchStoreMaxAge(t *testing.T) {
	clock := newFakeClock()
	p := NewPrefetchStore[string, int](discard(), WithClock(clock))

	p.Prefetch(context.Background(), "k", func(context.Context) (int, error) {
		return 1, nil
	})
	clock.Advance(2 * time.Minute)

	if _, ok := p.Get("k", time.Minute); ok {
		t.Error("stale prefetch entry must not be returned")
	}
	if p.Len() != 0 {
		t.Errorf("stale entry should be purged, Len() = %d", p.Len())
	}
}

func TestPrefetchStoreTake(t *testing.T) {
	p := NewPrefetchStore[string, int](discard())

	p.Prefetch(context.Background(), "k", func(context.Context) (int, error) {
		return 9, nil
	})

	if v, ok := p.Take("k", time.Minute); !ok || v != 9 {
		t.Errorf("Take = %d, %v; want 9, true", v, ok)
	}
	if _, ok := p.Get("k", time.Minute); ok {
		t.Error("Take should remove the entry")
	}
}
