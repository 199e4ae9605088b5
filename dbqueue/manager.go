package dbqueue

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/philement/dbqueue/engine"
)

// Manager is the Queue Manager (C7): it owns every database's LeadQueue, routes
// submitted requests to the right queue (spec.md §4.7), and correlates published
// results back to the caller that called Submit.
type Manager struct {
	opts   Options
	logger Logger

	// engineSelect is injected at construction time rather than resolved through
	// engine.Select directly, so that a test can substitute a fake Engine for a Kind
	// without linking against a mock driver library.
	engineSelect engine.Selector

	mu        sync.RWMutex
	databases map[string]*LeadQueue

	resultsMu sync.Mutex
	results   map[string]chan QueryResult

	ctx       context.Context
	cancel    context.CancelFunc
	destroyed atomic.Bool
}

// NewManager creates a Manager bound to opts and logger, selecting engines via
// engine.Select. The Manager's own context governs every LeadQueue it starts; it is
// cancelled by Destroy.
func NewManager(opts Options, logger Logger) *Manager {
	return NewManagerWithEngineSelector(opts, logger, engine.Select)
}

// NewManagerWithEngineSelector is like NewManager, but resolves every database's
// engine.Kind through the given Selector instead of the built-in registry. This is the
// manager-construction-time injection point for substituting a fake Engine in tests -
// e.g. one whose Connect/Ping fails on demand to exercise disconnect handling - without
// linking against a mock driver library.
func NewManagerWithEngineSelector(opts Options, logger Logger, engineSelect engine.Selector) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		opts:         opts,
		logger:       logger,
		engineSelect: engineSelect,
		databases:    make(map[string]*LeadQueue),
		results:      make(map[string]chan QueryResult),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// AddDatabase registers and starts a new database queue, per spec.md §4.2/§4.6.
// bootstrapQuery may be empty, in which case the Lead falls back to defaultBootstrapQuery.
func (m *Manager) AddDatabase(name, connectionString, bootstrapQuery string) error {
	if m.destroyed.Load() {
		return ErrShutdownInProgress
	}

	m.mu.Lock()
	if len(m.databases) >= m.opts.MaxDatabases {
		m.mu.Unlock()

		return capacityError("max databases reached")
	}
	if _, exists := m.databases[name]; exists {
		m.mu.Unlock()

		return configError(errors.New("database already registered"), name)
	}

	lead := newLeadQueue(name, connectionString, bootstrapQuery, m.logger.GetChildLogger(name),
		m.opts, m.opts.engineOptions(), m.opts.MaxChildQueuesPerClass, m.publish, m.engineSelect)

	m.databases[name] = lead
	m.mu.Unlock()

	lead.Start(m.ctx)

	return nil
}

// lookup returns the named database's Lead, or nil if unknown.
func (m *Manager) lookup(name string) *LeadQueue {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.databases[name]
}

// Submit routes req to a queue on databaseName, per spec.md §4.7's child-selection
// algorithm, and registers a correlation channel for Take to consume.
func (m *Manager) Submit(ctx context.Context, databaseName string, req QueryRequest) error {
	if m.destroyed.Load() {
		return ErrShutdownInProgress
	}

	lead := m.lookup(databaseName)
	if lead == nil {
		return configError(errors.New("unknown database"), databaseName)
	}

	if req.QueryID == "" {
		return configError(errors.New("query id must not be empty"), databaseName)
	}

	m.resultsMu.Lock()
	if _, exists := m.results[req.QueryID]; exists {
		m.resultsMu.Unlock()

		return configError(errors.New("duplicate query id"), req.QueryID)
	}
	m.results[req.QueryID] = make(chan QueryResult, 1)
	m.resultsMu.Unlock()

	target := selectWorkerQueue(lead, req.QueueClassHint)

	if err := target.Submit(req); err != nil {
		m.resultsMu.Lock()
		delete(m.results, req.QueryID)
		m.resultsMu.Unlock()

		return err
	}

	return nil
}

// selectWorkerQueue implements spec.md §4.7: among children whose queue_class matches
// hint, the one with the smallest depth (ties broken by queue_number); failing that any
// MEDIUM child; failing that the Lead's own underlying queue.
func selectWorkerQueue(lead *LeadQueue, hint QueueClass) *WorkerQueue {
	children := lead.childSnapshot()

	var best *WorkerQueue
	for _, c := range children {
		if c.QueueClass() != hint {
			continue
		}
		if best == nil || c.Depth() < best.Depth() ||
			(c.Depth() == best.Depth() && c.QueueNumber() < best.QueueNumber()) {
			best = c
		}
	}
	if best != nil {
		return best
	}

	for _, c := range children {
		if c.QueueClass() == Medium {
			return c
		}
	}

	return lead.WorkerQueue
}

// WaitReady blocks until databaseName's Lead has completed bootstrap or ctx/the
// configured initial-connection-timeout elapses, whichever is sooner.
func (m *Manager) WaitReady(ctx context.Context, databaseName string) (bool, error) {
	lead := m.lookup(databaseName)
	if lead == nil {
		return false, configError(errors.New("unknown database"), databaseName)
	}

	return lead.WaitReady(ctx, m.opts.InitialConnectionTimeout()), nil
}

// Take blocks until queryID's result is published or ctx is done. The correlation
// channel is consumed and removed on a successful receive only, so a caller that times
// out may retry Take later with a fresh context.
func (m *Manager) Take(ctx context.Context, queryID string) (QueryResult, error) {
	m.resultsMu.Lock()
	ch, ok := m.results[queryID]
	m.resultsMu.Unlock()

	if !ok {
		return QueryResult{}, configError(errors.New("unknown or already-taken query id"), queryID)
	}

	select {
	case result := <-ch:
		m.resultsMu.Lock()
		delete(m.results, queryID)
		m.resultsMu.Unlock()

		return result, nil
	case <-ctx.Done():
		return QueryResult{}, ctx.Err()
	}
}

// publish is the correlation callback wired into every LeadQueue/WorkerQueue this
// Manager creates. It never blocks: the channel is always buffered by one.
func (m *Manager) publish(queryID string, result QueryResult) {
	m.resultsMu.Lock()
	ch, ok := m.results[queryID]
	m.resultsMu.Unlock()

	if !ok {
		return
	}

	select {
	case ch <- result:
	default:
	}
}

// Stats returns one DatabaseStats entry per queue (the Lead's own plus every child),
// per spec.md §4.7's reporting surface.
func (m *Manager) Stats() []DatabaseStats {
	m.mu.RLock()
	leads := make([]*LeadQueue, 0, len(m.databases))
	for _, lead := range m.databases {
		leads = append(leads, lead)
	}
	m.mu.RUnlock()

	var out []DatabaseStats
	for _, lead := range leads {
		connected := lead.IsConnected()
		loaded := lead.LatestLoadedMigration()
		applied := lead.LatestAppliedMigration()

		out = append(out, DatabaseStats{
			DatabaseName:           lead.Name(),
			QueueClass:             lead.QueueClass(),
			Depth:                  lead.Depth(),
			IsConnected:            connected,
			LatestLoadedMigration:  loaded,
			LatestAppliedMigration: applied,
		})

		for _, child := range lead.childSnapshot() {
			out = append(out, DatabaseStats{
				DatabaseName:           lead.Name(),
				QueueClass:             child.QueueClass(),
				Depth:                  child.Depth(),
				IsConnected:            connected,
				LatestLoadedMigration:  loaded,
				LatestAppliedMigration: applied,
			})
		}
	}

	return out
}

// WriteStats renders Stats() as human-readable lines, one queue per line.
func (m *Manager) WriteStats(w io.Writer) (int64, error) {
	var written int64

	for _, s := range m.Stats() {
		n, err := fmt.Fprintf(w, "%s\t%s\tdepth=%d\tconnected=%v\tloaded=%d\tapplied=%d\n",
			s.DatabaseName, s.QueueClass, s.Depth, s.IsConnected,
			s.LatestLoadedMigration, s.LatestAppliedMigration)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}

	return written, nil
}

// Destroy shuts down every database's Lead (and its children), in no particular order,
// aggregating their errors. Any query submitted but never taken by the time Destroy runs
// is reported as lost, per the "lost-request accounting at shutdown" behavior.
func (m *Manager) Destroy() error {
	if !m.destroyed.CompareAndSwap(false, true) {
		return ErrShutdownInProgress
	}

	m.cancel()

	m.mu.Lock()
	leads := make([]*LeadQueue, 0, len(m.databases))
	for _, lead := range m.databases {
		leads = append(leads, lead)
	}
	m.databases = make(map[string]*LeadQueue)
	m.mu.Unlock()

	// Databases share nothing but the Manager's bookkeeping, so they shut down
	// concurrently; errors from every Lead are still collected, not just the first.
	var (
		g      errgroup.Group
		errMu  sync.Mutex
		errAgg error
	)
	for _, lead := range leads {
		lead := lead
		g.Go(func() error {
			if shutdownErr := lead.shutdown(); shutdownErr != nil {
				errMu.Lock()
				errAgg = multierr.Append(errAgg, shutdownErr)
				errMu.Unlock()
			}

			return nil
		})
	}
	_ = g.Wait()

	err := errAgg

	m.resultsMu.Lock()
	lost := len(m.results)
	m.results = make(map[string]chan QueryResult)
	m.resultsMu.Unlock()

	if lost > 0 {
		m.logger.Warnf("shutdown: %d submitted request(s) never taken", lost)
	}

	return err
}
