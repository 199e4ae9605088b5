package dbqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/philement/dbqueue/com"
	"github.com/philement/dbqueue/engine"
	"github.com/philement/dbqueue/periodic"
	"github.com/philement/dbqueue/querycache"
)

// LeadQueue extends WorkerQueue (C6) with bootstrap execution, migration tracking,
// child-queue management, and heartbeat ownership (C8), per spec.md §4.6.
//
// State machine: created -> connecting -> bootstrapping -> bootstrapped |
// connected-empty -> stopping -> terminated. Transitions are driven entirely from the
// heartbeat tick; see bootstrap.go.
type LeadQueue struct {
	*WorkerQueue

	bootstrapQuery string

	// engineSelect resolves a parsed connection string's engine.Kind to an
	// engine.Engine. It defaults to engine.Select but can be overridden by
	// NewManagerWithEngineSelector, which is this package's injection point for
	// substituting a fake Engine in tests instead of a link-time mock driver library.
	engineSelect engine.Selector

	bootstrapMu         sync.Mutex
	bootstrapCond       *com.Cond
	bootstrapCompleted  atomic.Bool
	emptyDatabase       atomic.Bool
	latestLoadedMigration  atomic.Int64
	latestAppliedMigration atomic.Int64
	queryCache          atomic.Pointer[querycache.Cache]

	connMu    sync.Mutex
	conn      engine.Handle
	connected atomic.Bool

	lastConnectionAttempt atomic.Int64
	lastHeartbeat         atomic.Int64

	childrenMu     sync.Mutex
	children       []*WorkerQueue
	childCounts    map[QueueClass]int
	nextQueueNum   int
	maxChildQueues int

	heartbeatStopper periodic.Stopper
	windUp           func(time.Duration) error
}

func newLeadQueue(name, connectionString, bootstrapQuery string, logger Logger, opts Options, engineOpts engine.Options, maxChildQueues int, publish func(string, QueryResult), engineSelect engine.Selector) *LeadQueue {
	q := newQueue(name, connectionString, Medium, 0, logger, opts, engineOpts, publish)
	wq := newWorkerQueue(q)

	if engineSelect == nil {
		engineSelect = engine.Select
	}

	lead := &LeadQueue{
		WorkerQueue:    wq,
		bootstrapQuery: bootstrapQuery,
		bootstrapCond:  com.NewCond(context.Background()),
		childCounts:    make(map[QueueClass]int),
		maxChildQueues: maxChildQueues,
		engineSelect:   engineSelect,
	}
	wq.lead = lead

	return lead
}

// Start launches the Lead's own worker loop and its heartbeat-driven bootstrap. The
// heartbeat fires immediately (spec.md §4.6 "Sets last_heartbeat = last_connection_attempt
// = now" on start_heartbeat) and then every HeartbeatIntervalSeconds.
func (lead *LeadQueue) Start(ctx context.Context) {
	lead.WorkerQueue.Start(ctx)

	stallThreshold := 2 * lead.opts.HeartbeatInterval()
	watchdogCtx, windUp := periodic.WindUpContext(ctx, stallThreshold)
	lead.windUp = windUp
	go lead.watchHeartbeatStall(ctx, watchdogCtx, stallThreshold)

	lead.heartbeatStopper = periodic.Start(ctx, lead.opts.HeartbeatInterval(), func(_ periodic.Tick) {
		_ = lead.windUp(stallThreshold)
		lead.heartbeatTick(ctx)
	}, periodic.Immediate())
}

// watchHeartbeatStall reports when no heartbeat tick has wound up watchdogCtx for longer
// than threshold, which only happens if a tick's callback (connectAndBootstrap or a health
// check) is itself hung rather than merely slow between ticks. A parent cancellation looks
// the same to watchdogCtx, so it is distinguished by checking whether parent is still alive.
func (lead *LeadQueue) watchHeartbeatStall(parent, watchdogCtx context.Context, threshold time.Duration) {
	<-watchdogCtx.Done()

	if parent.Err() == nil {
		lead.logger.Warnf("database %q: heartbeat has not completed a tick in over %s, a connection attempt may be stuck", lead.name, threshold)
	}
}

// WaitReady implements wait_for_initial_connection: block until bootstrap_completed or
// timeout, returning whatever it holds on wake.
func (lead *LeadQueue) WaitReady(ctx context.Context, timeout time.Duration) bool {
	lead.bootstrapMu.Lock()
	if lead.bootstrapCompleted.Load() {
		lead.bootstrapMu.Unlock()

		return true
	}
	wait := lead.bootstrapCond.Wait()
	lead.bootstrapMu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-wait:
	case <-waitCtx.Done():
	}

	return lead.bootstrapCompleted.Load()
}

// IsConnected reports whether the Lead currently holds a live connection.
func (lead *LeadQueue) IsConnected() bool {
	return lead.connected.Load()
}

func (lead *LeadQueue) setConnected(v bool) {
	was := lead.connected.Swap(v)
	if was != v {
		lead.logger.Infof("database %q: connection status changed: connected=%v (%s)", lead.name, v, lead.maskedConnectionString())
	}
}

// maskedConnectionString renders the Lead's connection string with its password masked,
// for inclusion in any log line: every connection-status log must carry this instead of
// the raw connectionString field, per the no-raw-password-in-logs invariant.
func (lead *LeadQueue) maskedConnectionString() string {
	if info, err := engine.ParseConnectionString(lead.connectionString); err == nil {
		return info.Masked()
	}

	return engine.MaskConnectionString(lead.connectionString)
}

// noteConnectionLost is called by a worker (or the Lead's own execute path) when an
// engine call reports the connection itself as unusable, so the next heartbeat tick
// reconnects rather than waiting a full interval on a stale handle.
func (lead *LeadQueue) noteConnectionLost(err error) {
	lead.setConnected(false)
	lead.logger.Warnf("database %q: connection lost: %s", lead.name, err)
}

// queryCacheOrNil returns the frozen QTC, or nil before bootstrap has populated one.
func (lead *LeadQueue) queryCacheOrNil() *querycache.Cache {
	return lead.queryCache.Load()
}

// LatestLoadedMigration returns the highest migration ref seen with type 1000.
func (lead *LeadQueue) LatestLoadedMigration() int64 {
	return lead.latestLoadedMigration.Load()
}

// LatestAppliedMigration returns the highest migration ref seen with type 1003.
func (lead *LeadQueue) LatestAppliedMigration() int64 {
	return lead.latestAppliedMigration.Load()
}

// EmptyDatabase reports whether the bootstrap result was empty.
func (lead *LeadQueue) EmptyDatabase() bool {
	return lead.emptyDatabase.Load()
}

// spawnChild creates a non-Lead queue sharing this Lead's connection, per
// spec.md §4.6 spawn_child_queue. The child-queue-count accounting is fixed per the
// §9 REDESIGN note: a failed spawn always decrements the count it provisionally took.
func (lead *LeadQueue) spawnChild(ctx context.Context, class QueueClass) (*WorkerQueue, error) {
	lead.childrenMu.Lock()
	if lead.childCounts[class] >= lead.maxChildQueues {
		lead.childrenMu.Unlock()

		return nil, capacityError("max child queues per class reached")
	}
	lead.childCounts[class]++
	lead.nextQueueNum++
	queueNumber := lead.nextQueueNum
	lead.childrenMu.Unlock()

	if ctx.Err() != nil {
		lead.childrenMu.Lock()
		lead.childCounts[class]--
		lead.childrenMu.Unlock()

		return nil, ctx.Err()
	}

	childLogger := lead.logger.GetChildLogger(class.String())
	q := newQueue(lead.name, lead.connectionString, class, queueNumber, childLogger, lead.opts, lead.engineOpts, lead.publish)
	child := newWorkerQueue(q)
	child.lead = lead
	child.Start(ctx)

	lead.childrenMu.Lock()
	lead.children = append(lead.children, child)
	lead.childrenMu.Unlock()

	return child, nil
}

// shutdownChild stops and unregisters child. Idempotent: returns false if child is not
// (or is no longer) one of this Lead's children.
func (lead *LeadQueue) shutdownChild(child *WorkerQueue) bool {
	lead.childrenMu.Lock()
	idx := -1
	for i, c := range lead.children {
		if c == child {
			idx = i

			break
		}
	}
	if idx < 0 {
		lead.childrenMu.Unlock()

		return false
	}
	lead.children = append(lead.children[:idx], lead.children[idx+1:]...)
	lead.childCounts[child.queueClass]--
	lead.childrenMu.Unlock()

	child.Stop()

	return true
}

// childSnapshot returns a snapshot of the current child queues, for Stats/shutdown.
func (lead *LeadQueue) childSnapshot() []*WorkerQueue {
	lead.childrenMu.Lock()
	defer lead.childrenMu.Unlock()

	out := make([]*WorkerQueue, len(lead.children))
	copy(out, lead.children)

	return out
}

// shutdown tears the Lead down: children first, then its own worker, then the engine
// handle — per spec.md §5 "destroy children before closing persistent_connection".
func (lead *LeadQueue) shutdown() error {
	lead.shutdownRequested.Store(true)

	if lead.heartbeatStopper != nil {
		lead.heartbeatStopper.Stop()
	}

	// Children are independent workers borrowing the same connection; stopping them
	// concurrently is safe and bounds shutdown latency by the slowest one rather than
	// their sum, per spec.md §5's "destroy children before closing persistent_connection".
	var g errgroup.Group
	for _, c := range lead.childSnapshot() {
		c := c
		g.Go(func() error {
			lead.shutdownChild(c)

			return nil
		})
	}
	_ = g.Wait()

	lead.WorkerQueue.Stop()

	var err error

	lead.connMu.Lock()
	if lead.conn != nil {
		if closeErr := lead.conn.Close(); closeErr != nil {
			err = multierr.Append(err, closeErr)
		}
		lead.conn = nil
	}
	lead.connMu.Unlock()

	_ = lead.bootstrapCond.Close()

	return err
}
