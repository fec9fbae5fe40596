package engine

import (
	"sync"

	"github.com/roach88/macrome/internal/ir"
)

// changeQueue is a thread-safe FIFO queue of pending changes for one
// Changeset.
//
// The queue is unbounded so arbitrarily long generate-chains can enqueue
// effects without blocking. Effects are enqueued from inside a generator's
// map, which may run on any goroutine, while the drain loop dequeues.
type changeQueue struct {
	mu      sync.Mutex
	changes []ir.Change
	closed  bool
}

// newChangeQueue creates an empty change queue.
func newChangeQueue() *changeQueue {
	return &changeQueue{
		changes: make([]ir.Change, 0, 16),
	}
}

// Enqueue adds a change to the back of the queue.
// Returns false if the queue is closed.
func (q *changeQueue) Enqueue(c ir.Change) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.changes = append(q.changes, c)
	return true
}

// TryDequeue removes and returns the front change without blocking.
// Returns (ir.Change{}, false) if the queue is empty.
func (q *changeQueue) TryDequeue() (ir.Change, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.changes) == 0 {
		return ir.Change{}, false
	}

	c := q.changes[0]
	if len(q.changes) == 1 {
		q.changes = q.changes[:0]
	} else {
		q.changes = q.changes[1:]
	}
	return c, true
}

// size returns the current queue length.
func (q *changeQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.changes)
}

// Close refuses further enqueues and drops anything still pending.
// It returns the number of dropped changes.
func (q *changeQueue) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0
	}
	q.closed = true
	dropped := len(q.changes)
	q.changes = nil
	return dropped
}
