package com

import "sync/atomic"

// Counter is a concurrency-safe accumulator with a resettable value and a running total.
type Counter struct {
	val   atomic.Uint64
	total atomic.Uint64
}

// Add adds delta to both the resettable value and the running total.
func (c *Counter) Add(delta uint64) {
	c.val.Add(delta)
	c.total.Add(delta)
}

// Inc adds 1.
func (c *Counter) Inc() {
	c.Add(1)
}

// Val returns the current (resettable) value.
func (c *Counter) Val() uint64 {
	return c.val.Load()
}

// Total returns the running total, unaffected by Reset.
func (c *Counter) Total() uint64 {
	return c.total.Load()
}

// Reset sets the resettable value back to 0 and returns its value just before the reset.
func (c *Counter) Reset() uint64 {
	return c.val.Swap(0)
}
