package engine

import "sync/atomic"

// Clock is the monotonic logical clock that sequences closed Changesets in
// the journal. Wall-clock time is never used for ordering.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// Independent Changesets close concurrently and all stamp from one Clock.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
// Used to continue numbering after the journal's last recorded sequence.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// current returns the current sequence number without incrementing.
func (c *Clock) current() int64 {
	return c.seq.Load()
}
