package store

import "sync/atomic"

// Clock is a monotonic logical clock. Every applied style record is
// stamped with a seq from it, so "last applied wins" is decided by an
// explicit ordinal instead of array-append order or wall time.
//
// Thread-safety: atomic, though the store's single-writer discipline means
// one goroutine normally calls Next().
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0; the first Next() returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
