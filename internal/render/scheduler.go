package render

import (
	"sync"
	"time"
)

// DefaultFrameInterval approximates one 60Hz animation frame.
const DefaultFrameInterval = 16 * time.Millisecond

// FrameScheduler coalesces scheduled render passes to at most one per
// interval: only the most recently scheduled function runs when the frame
// timer fires.
type FrameScheduler struct {
	mu       sync.Mutex
	interval time.Duration
	pending  func()
	timer    *time.Timer
	stopped  bool
}

// NewFrameScheduler creates a scheduler firing every interval. A
// non-positive interval uses DefaultFrameInterval.
func NewFrameScheduler(interval time.Duration) *FrameScheduler {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &FrameScheduler{interval: interval}
}

// Schedule queues render for the next frame, replacing any not-yet-run
// function from earlier in the same frame.
func (s *FrameScheduler) Schedule(render func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.pending = render
	if s.timer == nil {
		s.timer = time.AfterFunc(s.interval, s.fire)
	}
}

func (s *FrameScheduler) fire() {
	s.mu.Lock()
	render := s.pending
	s.pending = nil
	s.timer = nil
	s.mu.Unlock()

	if render != nil {
		render()
	}
}

// Stop discards any pending render and prevents further scheduling.
func (s *FrameScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
