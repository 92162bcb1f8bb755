// Package sequence provides the monotonic logical clock used to stamp
// ledger records. Values never regress within a single process.
package sequence

import "sync/atomic"

// Sequence supplies monotonically non-decreasing integers.
type Sequence interface {
	// Next returns the next value in the sequence.
	Next() int64
	// Current returns the most recently issued value.
	Current() int64
}

// Counter is an atomic in-process Sequence.
type Counter struct {
	v atomic.Int64
}

// NewCounter creates a Counter that starts issuing values above start.
func NewCounter(start int64) *Counter {
	c := &Counter{}
	c.v.Store(start)
	return c
}

// Next returns the next sequence value.
func (c *Counter) Next() int64 {
	return c.v.Add(1)
}

// Current returns the most recently issued value.
func (c *Counter) Current() int64 {
	return c.v.Load()
}
