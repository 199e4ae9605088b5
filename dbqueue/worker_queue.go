package dbqueue

import (
	"context"
	"strconv"
	"time"

	"github.com/philement/dbqueue/com"
	"github.com/philement/dbqueue/engine"
	"github.com/philement/dbqueue/periodic"
	"github.com/philement/dbqueue/utils"
)

// sqlLogLimit is the rune limit applied to SQL text embedded in log lines, so that a
// large literal statement does not dominate the log output for a single query failure.
const sqlLogLimit = 200

// requeueBackoff is the brief sleep applied when a worker dequeues a request before its
// Lead's bootstrap has completed (spec.md §4.5 step 5).
const requeueBackoff = 10 * time.Millisecond

// maxDeadlockRetries bounds how many times a query that failed with a serialization
// failure (engine.Result.Deadlock) is silently resubmitted before it is surfaced to the
// caller as an ordinary query failure.
const maxDeadlockRetries = 3

// WorkerQueue is a non-Lead queue (C5) bound to one queue class, draining its
// underlying FIFO queue and executing requests against its Lead's borrowed connection.
type WorkerQueue struct {
	*queue

	// lead is the Lead this worker borrows its connection from. For the queue
	// embedded inside a LeadQueue itself, lead points back at that same LeadQueue.
	lead *LeadQueue

	cancel context.CancelFunc
	done   chan struct{}

	executed   com.Counter
	logStopper periodic.Stopper
}

func newWorkerQueue(q *queue) *WorkerQueue {
	return &WorkerQueue{queue: q, done: make(chan struct{})}
}

// Start launches the worker goroutine and a periodic summary logger for the number of
// queries it executed since the last tick. Calling Start twice is a programmer error; the
// core only ever calls it once per queue, from spawnChild or LeadQueue.Start.
func (wq *WorkerQueue) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	wq.cancel = cancel

	wq.logStopper = periodic.Start(ctx, wq.opts.HeartbeatInterval(), func(tick periodic.Tick) {
		if count := wq.executed.Reset(); count > 0 {
			wq.logger.Debugf("queue %q (%s): executed %d queries", wq.name, wq.queueClass, count)
		}
	}, periodic.OnStop(func(tick periodic.Tick) {
		if total := wq.executed.Total(); total > 0 {
			wq.logger.Debugf("queue %q (%s): executed %d queries in total", wq.name, wq.queueClass, total)
		}
	}))

	go wq.run(ctx)
}

// Stop requests shutdown and blocks until the worker goroutine has exited.
func (wq *WorkerQueue) Stop() {
	wq.shutdownRequested.Store(true)
	wq.fifo.requestShutdown()

	if wq.cancel != nil {
		wq.cancel()
	}

	<-wq.done

	if wq.logStopper != nil {
		wq.logStopper.Stop()
	}
}

// Submit enqueues req, failing if shutdown has been requested.
func (wq *WorkerQueue) Submit(req QueryRequest) error {
	if wq.shutdownRequested.Load() {
		return ErrShutdownInProgress
	}

	if !wq.fifo.enqueue(req) {
		return ErrShutdownInProgress
	}

	return nil
}

// run is the worker's loop, per spec.md §4.5.
func (wq *WorkerQueue) run(ctx context.Context) {
	defer close(wq.done)

	heartbeat := wq.opts.HeartbeatInterval()

	for {
		if wq.shutdownRequested.Load() {
			return
		}

		req, ok := wq.fifo.dequeue(ctx, heartbeat)
		if !ok {
			if wq.shutdownRequested.Load() {
				return
			}

			continue
		}

		if !wq.lead.bootstrapCompleted.Load() {
			wq.fifo.enqueue(req)
			time.Sleep(requeueBackoff)

			continue
		}

		wq.execute(ctx, req)
	}
}

// resolveTemplate implements spec.md §4.5 step 6: a numeric sql_template that matches a
// QTC query_ref is substituted for the cached template; anything else is literal SQL.
func (wq *WorkerQueue) resolveTemplate(sqlTemplate string) string {
	ref, err := strconv.Atoi(sqlTemplate)
	if err != nil {
		return sqlTemplate
	}

	cache := wq.lead.queryCacheOrNil()
	if cache == nil {
		return sqlTemplate
	}

	entry, ok := cache.Lookup(ref)
	if !ok {
		return sqlTemplate
	}

	return entry.SQLTemplate
}

// execute resolves the template, borrows the Lead's connection under connection_lock,
// runs the query, and publishes the result.
func (wq *WorkerQueue) execute(ctx context.Context, req QueryRequest) {
	sqlText := wq.resolveTemplate(req.SQLTemplate)

	start := time.Now()

	wq.lead.connMu.Lock()
	conn := wq.lead.conn
	var (
		engRes engine.Result
		err    error
	)
	if conn == nil {
		err = ErrConnect
	} else {
		engRes, err = conn.ExecuteQuery(ctx, sqlText, req.ParameterJSON)
		if err != nil {
			wq.lead.noteConnectionLost(err)
		}
	}
	wq.lead.connMu.Unlock()

	if err == nil && !engRes.Success && engRes.Deadlock && req.RetryCount < maxDeadlockRetries {
		req.RetryCount++
		wq.logger.Debugf("query %s on %q: serialization failure, retrying (attempt %d)", req.QueryID, wq.name, req.RetryCount)
		wq.fifo.enqueue(req)

		return
	}

	var result QueryResult
	if err != nil {
		result = QueryResult{
			Success:         false,
			ErrorMessage:    err.Error(),
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}
	} else {
		result = QueryResult{
			Success:         engRes.Success,
			DataJSON:        engRes.DataJSON,
			RowCount:        engRes.RowCount,
			ColumnCount:     engRes.ColumnCount,
			AffectedRows:    engRes.AffectedRows,
			ErrorMessage:    engRes.ErrorMessage,
			ExecutionTimeMs: engRes.Elapsed.Milliseconds(),
		}
	}

	if !result.Success {
		wq.logger.Debugf("query %s on %q failed: %s (sql: %s)", req.QueryID, wq.name, result.ErrorMessage, utils.Ellipsize(sqlText, sqlLogLimit))
	}

	wq.executed.Inc()
	wq.publish(req.QueryID, result)
}
