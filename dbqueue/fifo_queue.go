package dbqueue

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// fifoQueue is the underlying FIFO queue (C4): a mutex-guarded slice paired with a
// counted semaphore whose value tracks queue depth. It is an implementation detail of
// WorkerQueue/LeadQueue, never part of the public API.
type fifoQueue struct {
	mu    sync.Mutex
	items []QueryRequest

	// sem starts fully held (see newFIFOQueue); enqueue releases one unit and dequeue
	// acquires one, so its available count tracks depth. Shutdown releases a very large
	// weight so every blocked and later Acquire succeeds immediately, waking all waiters.
	sem *semaphore.Weighted

	shutdownRequested atomic.Bool
}

func newFIFOQueue() *fifoQueue {
	// Hold the whole weight up front, so nothing can be acquired until enqueue releases
	// a unit; Release on a semaphore with nothing held would panic.
	sem := semaphore.NewWeighted(math.MaxInt64)
	sem.TryAcquire(math.MaxInt64)

	return &fifoQueue{sem: sem}
}

// enqueue appends req to the tail and posts the semaphore. It always succeeds unless
// shutdown has been requested.
func (q *fifoQueue) enqueue(req QueryRequest) bool {
	if q.shutdownRequested.Load() {
		return false
	}

	q.mu.Lock()
	q.items = append(q.items, req)
	q.mu.Unlock()

	q.sem.Release(1)

	return true
}

// dequeue waits on the semaphore up to timeout, then pops the head under the depth
// mutex. It returns ok=false on timeout or if the queue was empty when woken (the
// latter only possible post-shutdown, once the semaphore has been force-released).
func (q *fifoQueue) dequeue(parent context.Context, timeout time.Duration) (QueryRequest, bool) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	if err := q.sem.Acquire(ctx, 1); err != nil {
		return QueryRequest{}, false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return QueryRequest{}, false
	}

	req := q.items[0]
	q.items = q.items[1:]

	return req, true
}

// depth returns the current number of pending items.
func (q *fifoQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// requestShutdown flips the shutdown flag and wakes every waiter.
func (q *fifoQueue) requestShutdown() {
	q.shutdownRequested.Store(true)
	q.sem.Release(math.MaxInt32)
}
