// Package flow provides the concurrency-control primitives behind the
// section-loading layer: a cooperative mutex with FIFO hand-off, a
// single-flight request deduplicator, a supersede-on-create cancellation
// registry, and a bounded-concurrency priority queue.
package flow

import "errors"

// ErrQueueCleared rejects tasks that were still queued when the priority
// queue was cleared. Callers must treat it as "never ran", not a failure of
// the task itself.
var ErrQueueCleared = errors.New("flow: queue cleared before task started")
