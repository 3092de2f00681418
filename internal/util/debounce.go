package util

import (
	"sync"
	"time"
)

// DebounceOptions controls the edges on which a Debounced wrapper invokes
// its function. A zero value is normalized to trailing-only, which is the
// common "settle then fire" behaviour.
type DebounceOptions struct {
	Leading  bool
	Trailing bool
	MaxWait  time.Duration // 0 means no forced invocation
}

// Debounced collapses bursts of calls into few invocations of fn. Each call
// replaces the buffered argument; the trailing invocation runs wait after
// the last call with the most recent argument. It is safe for use from
// multiple goroutines, but fn must not call back into the wrapper.
type Debounced[A, R any] struct {
	fn   func(A) R
	wait time.Duration
	opts DebounceOptions

	mu         sync.Mutex
	timer      *time.Timer
	maxTimer   *time.Timer
	pendingArg A
	hasPending bool
	burstStart time.Time
	lastResult R
}

// Debounce wraps fn with the given wait and options.
func Debounce[A, R any](fn func(A) R, wait time.Duration, opts DebounceOptions) *Debounced[A, R] {
	if !opts.Leading && !opts.Trailing {
		opts.Trailing = true
	}
	return &Debounced[A, R]{fn: fn, wait: wait, opts: opts}
}

// Throttle wraps fn so it is invoked at most once per wait window. It is
// debounce with MaxWait forced to wait. A zero options value is normalized
// to both edges enabled.
func Throttle[A, R any](fn func(A) R, wait time.Duration, opts DebounceOptions) *Debounced[A, R] {
	if !opts.Leading && !opts.Trailing {
		opts.Leading = true
		opts.Trailing = true
	}
	opts.MaxWait = wait
	return &Debounced[A, R]{fn: fn, wait: wait, opts: opts}
}

// Call records the argument and schedules invocation per the configured
// edges. A call after Cancel starts a fresh burst.
func (d *Debounced[A, R]) Call(arg A) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	newBurst := d.timer == nil

	d.pendingArg = arg
	d.hasPending = true

	if newBurst {
		d.burstStart = now
		if d.opts.Leading {
			d.invokeLocked()
		}
		if d.opts.MaxWait > 0 {
			d.armMaxTimerLocked()
		}
	} else if d.opts.MaxWait > 0 && now.Sub(d.burstStart) >= d.opts.MaxWait {
		// Forced invocation: the burst has outlived MaxWait.
		d.invokeLocked()
		d.burstStart = now
		d.armMaxTimerLocked()
	}

	if d.timer == nil {
		d.timer = time.AfterFunc(d.wait, d.onTimer)
	} else {
		d.timer.Reset(d.wait)
	}
}

// onTimer fires the trailing edge and ends the burst.
func (d *Debounced[A, R]) onTimer() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.timer = nil
	d.stopMaxTimerLocked()
	if d.opts.Trailing && d.hasPending {
		d.invokeLocked()
	}
	d.hasPending = false
}

// onMaxWait clamps the trailing edge to burstStart+MaxWait when calls stop
// before the deadline but wait stretches past it, then re-arms while the
// burst continues.
func (d *Debounced[A, R]) onMaxWait() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.maxTimer = nil
	if d.timer == nil {
		return // burst already settled
	}
	if d.opts.Trailing && d.hasPending {
		d.invokeLocked()
	}
	d.burstStart = time.Now()
	d.maxTimer = time.AfterFunc(d.opts.MaxWait, d.onMaxWait)
}

func (d *Debounced[A, R]) armMaxTimerLocked() {
	if d.maxTimer == nil {
		d.maxTimer = time.AfterFunc(d.opts.MaxWait, d.onMaxWait)
	} else {
		d.maxTimer.Reset(d.opts.MaxWait)
	}
}

// invokeLocked runs fn with the buffered argument. Caller holds d.mu.
func (d *Debounced[A, R]) invokeLocked() {
	arg := d.pendingArg
	d.hasPending = false
	d.lastResult = d.fn(arg)
}

// Cancel discards any pending invocation without running fn.
func (d *Debounced[A, R]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.stopMaxTimerLocked()
	d.hasPending = false
}

// Flush invokes fn immediately if a trailing call is pending and returns
// its result. With nothing pending it is a no-op returning the last
// computed result.
func (d *Debounced[A, R]) Flush() R {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.stopMaxTimerLocked()
	if d.hasPending {
		d.invokeLocked()
	}
	return d.lastResult
}

func (d *Debounced[A, R]) stopMaxTimerLocked() {
	if d.maxTimer != nil {
		d.maxTimer.Stop()
		d.maxTimer = nil
	}
}

// Pending reports whether a trailing invocation is currently scheduled.
func (d *Debounced[A, R]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
