package flow

import (
	"context"
	"sync"
)

// Mutex is a cooperative lock guarding a logical operation rather than
// memory. TryAcquire serves "skip if busy" call sites; Lock serves call
// sites that must eventually run but can tolerate delay. Waiters are
// resumed in FIFO order.
type Mutex struct {
	mu      sync.Mutex
	held    bool
	waiters []chan struct{}
}

// NewMutex returns an unlocked Mutex.
func NewMutex() *Mutex {
	return &Mutex{}
}

// TryAcquire acquires the lock if it is free and returns true. It returns
// false immediately when the lock is held; the caller is not queued.
func (m *Mutex) TryAcquire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.held {
		return false
	}
	m.held = true
	return true
}

// Lock acquires the lock, waiting in FIFO order behind earlier waiters.
// It returns ctx.Err() if the context is cancelled while queued.
func (m *Mutex) Lock(ctx context.Context) error {
	m.mu.Lock()
	if !m.held {
		m.held = true
		m.mu.Unlock()
		return nil
	}

	grant := make(chan struct{})
	m.waiters = append(m.waiters, grant)
	m.mu.Unlock()

	select {
	case <-grant:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		for i, w := range m.waiters {
			if w == grant {
				m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
				m.mu.Unlock()
				return ctx.Err()
			}
		}
		m.mu.Unlock()
		// Not in the queue anymore: ownership was handed to us in the
		// race with cancellation. Pass it along before giving up.
		<-grant
		m.Release()
		return ctx.Err()
	}
}

// Release frees the lock. With queued waiters, ownership transfers to the
// head waiter and the lock stays held; otherwise it becomes free.
func (m *Mutex) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.waiters) > 0 {
		grant := m.waiters[0]
		m.waiters = m.waiters[1:]
		close(grant)
		return
	}
	m.held = false
}

// IsLocked reports whether the lock is currently held.
func (m *Mutex) IsLocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held
}
