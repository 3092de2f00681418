// Package metrics provides lightweight instrumentation for the dashboard
// core: named duration timers and a rolling frame-time sampler. Nothing in
// here influences control flow; consumers read snapshots for display.
package metrics

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// frameWindow is the number of recent frame samples kept.
	frameWindow = 120

	// DefaultSlowFrame marks frames slower than two 60Hz frame budgets.
	DefaultSlowFrame = 33 * time.Millisecond
)

// TimerStats aggregates the recorded durations for one timer name.
type TimerStats struct {
	Count uint64        `json:"count"`
	Total time.Duration `json:"total"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
}

// Avg returns the mean recorded duration.
func (s TimerStats) Avg() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// FrameStats summarizes the rolling frame-time window.
type FrameStats struct {
	Samples    int           `json:"samples"`
	Avg        time.Duration `json:"avg"`
	Max        time.Duration `json:"max"`
	SlowFrames uint64        `json:"slowFrames"`
}

// Snapshot is a copyable view of all monitor state.
type Snapshot struct {
	Timers map[string]TimerStats `json:"timers"`
	Frames FrameStats            `json:"frames"`
}

// Monitor records named timings and frame durations. Safe for concurrent
// use.
type Monitor struct {
	mu         sync.Mutex
	timers     map[string]*TimerStats
	frames     []time.Duration
	framePos   int
	slowFrames uint64
	slowLimit  time.Duration
	log        *slog.Logger
}

// NewMonitor creates a Monitor. Frames slower than slowLimit are counted as
// slow; a non-positive limit uses DefaultSlowFrame.
func NewMonitor(log *slog.Logger, slowLimit time.Duration) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	if slowLimit <= 0 {
		slowLimit = DefaultSlowFrame
	}
	return &Monitor{
		timers:    make(map[string]*TimerStats),
		slowLimit: slowLimit,
		log:       log,
	}
}

// StartTimer begins a named measurement and returns the function that ends
// it. Typical use: defer m.StartTimer("load:positions")().
func (m *Monitor) StartTimer(name string) func() {
	start := time.Now()
	return func() {
		m.Record(name, time.Since(start))
	}
}

// Record adds one duration sample for name.
func (m *Monitor) Record(name string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.timers[name]
	if !ok {
		s = &TimerStats{Min: d, Max: d}
		m.timers[name] = s
	}
	s.Count++
	s.Total += d
	if d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
}

// RecordFrame adds one frame duration to the rolling window.
func (m *Monitor) RecordFrame(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.frames) < frameWindow {
		m.frames = append(m.frames, d)
	} else {
		m.frames[m.framePos] = d
		m.framePos = (m.framePos + 1) % frameWindow
	}

	if d > m.slowLimit {
		m.slowFrames++
		m.log.Debug("slow frame", "duration", d)
	}
}

// Snapshot returns a copy of all recorded state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	timers := make(map[string]TimerStats, len(m.timers))
	for name, s := range m.timers {
		timers[name] = *s
	}

	var frames FrameStats
	frames.Samples = len(m.frames)
	frames.SlowFrames = m.slowFrames
	var total time.Duration
	for _, d := range m.frames {
		total += d
		if d > frames.Max {
			frames.Max = d
		}
	}
	if frames.Samples > 0 {
		frames.Avg = total / time.Duration(frames.Samples)
	}

	return Snapshot{Timers: timers, Frames: frames}
}
