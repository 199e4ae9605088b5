package dbqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFIFOQueue_EnqueueDequeueOrder(t *testing.T) {
	q := newFIFOQueue()

	require.True(t, q.enqueue(QueryRequest{QueryID: "a"}))
	require.True(t, q.enqueue(QueryRequest{QueryID: "b"}))
	require.Equal(t, 2, q.depth())

	req, ok := q.dequeue(context.Background(), time.Second)
	require.True(t, ok)
	require.Equal(t, "a", req.QueryID)

	req, ok = q.dequeue(context.Background(), time.Second)
	require.True(t, ok)
	require.Equal(t, "b", req.QueryID)

	require.Equal(t, 0, q.depth())
}

func TestFIFOQueue_DequeueTimesOutWhenEmpty(t *testing.T) {
	q := newFIFOQueue()

	_, ok := q.dequeue(context.Background(), 10*time.Millisecond)
	require.False(t, ok)
}

func TestFIFOQueue_ShutdownWakesAllWaiters(t *testing.T) {
	q := newFIFOQueue()

	const waiters = 5

	results := make(chan bool, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			_, ok := q.dequeue(context.Background(), 2*time.Second)
			results <- ok
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.requestShutdown()

	for i := 0; i < waiters; i++ {
		select {
		case ok := <-results:
			require.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("waiter did not wake after shutdown")
		}
	}
}

func TestFIFOQueue_EnqueueRejectedAfterShutdown(t *testing.T) {
	q := newFIFOQueue()
	q.requestShutdown()

	require.False(t, q.enqueue(QueryRequest{QueryID: "late"}))
}
