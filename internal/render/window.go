// Package render computes windowed ("virtual") views over large ordered
// lists: only the rows intersecting the viewport, plus a small overscan
// margin, are ever materialized through the caller's render callback.
package render

import (
	"sync"
	"time"

	"github.com/juankaspain/BotV2-sub004/internal/metrics"
)

// Row is one materialized list item, positioned at Top = Index*ItemHeight.
type Row struct {
	Index  int    `json:"index"`
	Top    int    `json:"top"`
	Markup string `json:"markup"`
}

// Config sizes a VirtualWindow's layout math.
type Config struct {
	ItemHeight     int
	Overscan       int
	ViewportHeight int
}

// Scheduler defers render passes so bursts of scroll events coalesce into
// one materialization. Implementations must run the latest scheduled
// function at most once per frame.
type Scheduler interface {
	Schedule(render func())
}

// immediateScheduler runs render passes synchronously.
type immediateScheduler struct{}

func (immediateScheduler) Schedule(render func()) { render() }

// VirtualWindow maintains the materialized slice of a backing list for the
// current scroll position. Safe for concurrent use.
type VirtualWindow[T any] struct {
	mu         sync.Mutex
	cfg        Config
	items      []T
	renderItem func(item T, index int) string
	sched      Scheduler
	mon        *metrics.Monitor

	scrollOffset int
	start, end   int
	rows         []Row
	rendered     bool
	destroyed    bool
}

// WindowOption configures a VirtualWindow.
type WindowOption func(*windowOptions)

type windowOptions struct {
	sched Scheduler
	mon   *metrics.Monitor
}

// WithScheduler replaces the synchronous default scheduler.
func WithScheduler(s Scheduler) WindowOption {
	return func(o *windowOptions) { o.sched = s }
}

// WithMonitor records each render pass as a frame sample.
func WithMonitor(m *metrics.Monitor) WindowOption {
	return func(o *windowOptions) { o.mon = m }
}

// NewVirtualWindow creates a window over an empty list.
func NewVirtualWindow[T any](cfg Config, renderItem func(item T, index int) string, opts ...WindowOption) *VirtualWindow[T] {
	if cfg.ItemHeight <= 0 {
		cfg.ItemHeight = 1
	}
	if cfg.Overscan < 0 {
		cfg.Overscan = 0
	}

	o := windowOptions{sched: immediateScheduler{}}
	for _, opt := range opts {
		opt(&o)
	}

	return &VirtualWindow[T]{
		cfg:        cfg,
		renderItem: renderItem,
		sched:      o.sched,
		mon:        o.mon,
	}
}

// SetData replaces the backing list and forces a render pass for the
// current scroll position.
func (w *VirtualWindow[T]) SetData(items []T) {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return
	}
	w.items = items
	w.rendered = false
	w.clampOffsetLocked()
	w.mu.Unlock()

	w.requestRender()
}

// SetViewportHeight updates the viewport size, re-rendering if the visible
// range changes.
func (w *VirtualWindow[T]) SetViewportHeight(h int) {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return
	}
	w.cfg.ViewportHeight = h
	w.clampOffsetLocked()
	w.mu.Unlock()

	w.requestRender()
}

// HandleScroll records a new scroll offset and schedules a render pass.
// Events mapping to an unchanged range are no-ops.
func (w *VirtualWindow[T]) HandleScroll(offset int) {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return
	}
	w.scrollOffset = offset
	w.clampOffsetLocked()
	w.mu.Unlock()

	w.requestRender()
}

// clampOffsetLocked keeps the offset within the scrollable extent.
func (w *VirtualWindow[T]) clampOffsetLocked() {
	max := len(w.items)*w.cfg.ItemHeight - w.cfg.ViewportHeight
	if max < 0 {
		max = 0
	}
	if w.scrollOffset > max {
		w.scrollOffset = max
	}
	if w.scrollOffset < 0 {
		w.scrollOffset = 0
	}
}

// rangeLocked computes the materialization range for the current offset.
func (w *VirtualWindow[T]) rangeLocked() (int, int) {
	h := w.cfg.ItemHeight
	start := w.scrollOffset/h - w.cfg.Overscan
	if start < 0 {
		start = 0
	}
	end := (w.scrollOffset+w.cfg.ViewportHeight+h-1)/h + w.cfg.Overscan
	if end > len(w.items) {
		end = len(w.items)
	}
	if end < start {
		end = start
	}
	return start, end
}

// requestRender schedules a materialization unless the range is unchanged.
func (w *VirtualWindow[T]) requestRender() {
	w.mu.Lock()
	start, end := w.rangeLocked()
	if w.rendered && start == w.start && end == w.end {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	w.sched.Schedule(w.renderPass)
}

// renderPass materializes exactly the current range, discarding previously
// materialized rows outside it.
func (w *VirtualWindow[T]) renderPass() {
	startedAt := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return
	}

	start, end := w.rangeLocked()
	if w.rendered && start == w.start && end == w.end {
		return
	}

	rows := make([]Row, 0, end-start)
	for i := start; i < end; i++ {
		rows = append(rows, Row{
			Index:  i,
			Top:    i * w.cfg.ItemHeight,
			Markup: w.renderItem(w.items[i], i),
		})
	}

	w.start, w.end = start, end
	w.rows = rows
	w.rendered = true

	if w.mon != nil {
		w.mon.RecordFrame(time.Since(startedAt))
	}
}

// Rows returns the currently materialized rows.
func (w *VirtualWindow[T]) Rows() []Row {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Row, len(w.rows))
	copy(out, w.rows)
	return out
}

// Range returns the materialized half-open index range.
func (w *VirtualWindow[T]) Range() (start, end int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.start, w.end
}

// TotalHeight returns the full scrollable height of the backing list.
func (w *VirtualWindow[T]) TotalHeight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items) * w.cfg.ItemHeight
}

// Len returns the backing list length.
func (w *VirtualWindow[T]) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

// Destroy drops the backing data and makes all further calls no-ops.
func (w *VirtualWindow[T]) Destroy() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.destroyed = true
	w.items = nil
	w.rows = nil
}
