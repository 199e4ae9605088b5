package com

import (
	"context"
	"sync"
)

// Cond is a broadcast-once condition variable built on channels instead of sync.Cond,
// so that waiting on it composes with select, context cancellation and timeouts.
//
// Unlike sync.Cond, Wait does not take (and therefore cannot forget to re-take) a lock:
// callers check their predicate under their own mutex, and if it is not yet satisfied,
// obtain a channel from Wait while still holding that mutex, then select on it after
// releasing the lock. Broadcast wakes every such waiter, whether it arrived before or
// after the broadcast up to the point a new Wait channel was handed out.
type Cond struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu sync.Mutex
	ch chan struct{}
}

// NewCond returns a new Cond bound to ctx. Close, or cancellation of ctx, releases
// resources; Done reports ctx being done regardless of which caused it.
func NewCond(ctx context.Context) *Cond {
	ctx, cancel := context.WithCancel(ctx)

	return &Cond{
		ctx:    ctx,
		cancel: cancel,
		ch:     make(chan struct{}),
	}
}

// Wait returns a channel that is closed by the next call to Broadcast.
func (c *Cond) Wait() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ch
}

// Broadcast wakes all current waiters and arms a fresh channel for the next round.
func (c *Cond) Broadcast() {
	c.mu.Lock()
	defer c.mu.Unlock()

	close(c.ch)
	c.ch = make(chan struct{})
}

// Done returns a channel that is closed once the Cond's context is done.
func (c *Cond) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close releases resources associated with the Cond. Idempotent.
func (c *Cond) Close() error {
	c.cancel()
	return nil
}
