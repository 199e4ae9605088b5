package dbqueue

import (
	"sync/atomic"

	"github.com/philement/dbqueue/engine"
)

// queue is the shared state common to every DatabaseQueue (Lead or child), embedded
// into WorkerQueue and, transitively, LeadQueue.
type queue struct {
	name             string
	connectionString string
	queueClass       QueueClass
	queueNumber      int

	logger     Logger
	opts       Options
	engineOpts engine.Options

	fifo *fifoQueue

	shutdownRequested atomic.Bool

	// publish delivers a QueryResult to whatever correlates it back to the waiter
	// blocked in Manager.Take, keyed by QueryRequest.QueryID.
	publish func(queryID string, result QueryResult)
}

func newQueue(name, connectionString string, class QueueClass, number int, logger Logger, opts Options, engineOpts engine.Options, publish func(string, QueryResult)) *queue {
	return &queue{
		name:             name,
		connectionString: connectionString,
		queueClass:       class,
		queueNumber:      number,
		logger:           logger,
		opts:             opts,
		engineOpts:       engineOpts,
		fifo:             newFIFOQueue(),
		publish:          publish,
	}
}

// Depth returns the number of pending requests on this queue.
func (q *queue) Depth() int {
	return q.fifo.depth()
}

// Name returns the database name this queue serves.
func (q *queue) Name() string {
	return q.name
}

// QueueClass returns this queue's latency class.
func (q *queue) QueueClass() QueueClass {
	return q.queueClass
}

// QueueNumber disambiguates queues of the same class for a database.
func (q *queue) QueueNumber() int {
	return q.queueNumber
}
