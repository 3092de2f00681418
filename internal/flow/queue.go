package flow

import (
	"container/heap"
	"context"
	"sync"
)

// Task is the handle for a queued function. Wait blocks until the task
// settles or ctx is cancelled; abandoning a Wait does not unqueue the task.
type Task struct {
	fn       func() (any, error)
	priority int
	seq      uint64
	index    int // heap bookkeeping

	done  chan struct{}
	value any
	err   error
}

// Wait returns the task's outcome once it settles.
func (t *Task) Wait(ctx context.Context) (any, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Task) settle(v any, err error) {
	t.value = v
	t.err = err
	close(t.done)
}

// PriorityQueue runs enqueued functions with bounded concurrency. Among
// items waiting when a slot frees up, the lowest priority value wins; ties
// fall back to arrival order. Already-running tasks are never preempted.
type PriorityQueue struct {
	mu            sync.Mutex
	pending       taskHeap
	running       int
	maxConcurrent int
	seq           uint64
}

// NewPriorityQueue creates a queue running at most maxConcurrent tasks at
// once.
func NewPriorityQueue(maxConcurrent int) *PriorityQueue {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &PriorityQueue{maxConcurrent: maxConcurrent}
}

// Enqueue adds fn with the given priority and returns its Task handle,
// starting it immediately if a concurrency slot is free.
func (q *PriorityQueue) Enqueue(fn func() (any, error), priority int) *Task {
	t := &Task{
		fn:       fn,
		priority: priority,
		done:     make(chan struct{}),
	}

	q.mu.Lock()
	q.seq++
	t.seq = q.seq
	heap.Push(&q.pending, t)
	q.dispatchLocked()
	q.mu.Unlock()

	return t
}

// dispatchLocked starts pending tasks while capacity allows. Caller holds
// q.mu.
func (q *PriorityQueue) dispatchLocked() {
	for q.running < q.maxConcurrent && q.pending.Len() > 0 {
		t := heap.Pop(&q.pending).(*Task)
		q.running++
		go q.run(t)
	}
}

func (q *PriorityQueue) run(t *Task) {
	v, err := t.fn()
	t.settle(v, err)

	q.mu.Lock()
	q.running--
	q.dispatchLocked()
	q.mu.Unlock()
}

// Clear rejects every still-queued task with ErrQueueCleared. Running tasks
// are unaffected.
func (q *PriorityQueue) Clear() {
	q.mu.Lock()
	cleared := make([]*Task, q.pending.Len())
	copy(cleared, q.pending)
	q.pending = q.pending[:0]
	q.mu.Unlock()

	for _, t := range cleared {
		t.settle(nil, ErrQueueCleared)
	}
}

// Running returns the number of currently executing tasks.
func (q *PriorityQueue) Running() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Pending returns the number of queued, not yet started tasks.
func (q *PriorityQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

// taskHeap is a min-heap ordered by (priority, arrival seq).
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
