package dbqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/philement/dbqueue/engine"
	"github.com/philement/dbqueue/querycache"
)

// classifyEngineErr translates an engine-layer sentinel into this package's own, per
// the design that callers only need to know about dbqueue's error kinds regardless of
// which engine produced the failure.
func classifyEngineErr(err error) error {
	switch {
	case errors.Is(err, engine.ErrUnavailable):
		return errors.Wrap(ErrEngineUnavailable, err.Error())
	case errors.Is(err, engine.ErrConnect):
		return errors.Wrap(ErrConnect, err.Error())
	default:
		return err
	}
}

// defaultBootstrapQuery is used when a database is added without an explicit
// bootstrap_query, per spec.md §4.6 step 4. It is a convention, not a standard: a
// deployment is expected to supply its own bootstrap_query unless its schema happens to
// provide this view.
const defaultBootstrapQuery = "SELECT type, ref, query, name, queue, timeout FROM dbqueue_bootstrap"

// migration row types, per spec.md §6 "Bootstrap result format".
const (
	migrationAvailableType = 1000
	migrationInstalledType = 1003
)

// bootstrapRow is one element of the bootstrap query's result JSON, per spec.md §6.
type bootstrapRow struct {
	Type    int    `json:"type"`
	Ref     int    `json:"ref"`
	Query   string `json:"query"`
	Name    string `json:"name"`
	Queue   any    `json:"queue"`
	Timeout int    `json:"timeout"`
}

// heartbeatTick performs one iteration of spec.md §4.6's heartbeat: reconnect-and-
// bootstrap when disconnected, or a health check when connected.
func (lead *LeadQueue) heartbeatTick(ctx context.Context) {
	now := time.Now()
	lead.lastHeartbeat.Store(now.UnixNano())

	if !lead.IsConnected() {
		lead.connectAndBootstrap(ctx)

		return
	}

	conn := lead.currentConn()
	if conn == nil || conn.Ping(ctx) != nil {
		lead.setConnected(false)

		return
	}
}

func (lead *LeadQueue) currentConn() engine.Handle {
	lead.connMu.Lock()
	defer lead.connMu.Unlock()

	return lead.conn
}

// connectAndBootstrap implements spec.md §4.6 "Initial connection and bootstrap" and
// is re-entered on every subsequent disconnected heartbeat tick as the reconnect path.
func (lead *LeadQueue) connectAndBootstrap(ctx context.Context) {
	lead.lastConnectionAttempt.Store(time.Now().UnixNano())

	info, err := engine.ParseConnectionString(lead.connectionString)
	if err != nil {
		lead.logger.Errorf("can't parse connection string for %q (%s): %s", lead.name, engine.MaskConnectionString(lead.connectionString), err)

		return
	}

	eng, err := lead.engineSelect(info.Kind)
	if err != nil {
		lead.logger.Errorf("database %q (%s): %s", lead.name, info.Masked(), classifyEngineErr(err))

		return
	}

	handle, err := eng.Connect(ctx, info, lead.engineOpts)
	if err != nil {
		lead.logger.Warnf("database %q: can't connect to %s: %s", lead.name, info.Masked(), classifyEngineErr(err))

		return
	}

	lead.connMu.Lock()
	if lead.conn != nil {
		_ = lead.conn.Close()
	}
	lead.conn = handle
	lead.connMu.Unlock()

	lead.setConnected(true)
	lead.runBootstrap(ctx, handle)
}

// runBootstrap executes the bootstrap query and processes its result, per
// spec.md §4.6 steps 4-7. Bootstrap always ends with bootstrap_completed=true once the
// connection has been established, whether or not the query itself succeeds.
func (lead *LeadQueue) runBootstrap(ctx context.Context, handle engine.Handle) {
	query := lead.bootstrapQuery
	if query == "" {
		query = defaultBootstrapQuery
	}

	cache := querycache.Create()

	res, err := handle.ExecuteQuery(ctx, query, "")
	if err != nil || !res.Success {
		if err != nil {
			lead.logger.Warnf("database %q: bootstrap query failed: %s", lead.name, err)
		} else {
			lead.logger.Warnf("database %q: bootstrap query failed: %s", lead.name, res.ErrorMessage)
		}

		lead.finishBootstrap(true, 0, 0, cache)

		return
	}

	var rows []bootstrapRow
	if err := json.Unmarshal([]byte(res.DataJSON), &rows); err != nil {
		lead.logger.Errorf("database %q: can't parse bootstrap result: %s", lead.name, err)
		lead.finishBootstrap(true, 0, 0, cache)

		return
	}

	if len(rows) == 0 {
		lead.finishBootstrap(true, 0, 0, cache)

		return
	}

	var loaded, applied int64
	for _, row := range rows {
		switch row.Type {
		case migrationAvailableType:
			if int64(row.Ref) > loaded {
				loaded = int64(row.Ref)
			}
		case migrationInstalledType:
			if int64(row.Ref) > applied {
				applied = int64(row.Ref)
			}
		}

		if row.Query == "" {
			// Migration-tracking row, consumed above but not cached.
			continue
		}

		entry := querycache.Entry{
			QueryRef:       row.Ref,
			QueryType:      row.Type,
			SQLTemplate:    row.Query,
			Description:    row.Name,
			QueueClass:     queueClassFromAny(row.Queue).String(),
			TimeoutSeconds: row.Timeout,
		}
		if err := cache.AddStrict(entry); err != nil {
			lead.logger.Warnf("database %q: rejected bootstrap cache entry: %s", lead.name, err)
		}
	}

	lead.finishBootstrap(false, loaded, applied, cache)
}

// queueClassFromAny accepts either a numeric queue_class or its lowercase name, per
// spec.md §6's `"queue": <int|name>`.
func queueClassFromAny(v any) QueueClass {
	switch t := v.(type) {
	case float64:
		return QueueClass(int(t))
	case string:
		return SelectQueueClass(t)
	default:
		return Medium
	}
}

// finishBootstrap performs the one-way bootstrap_completed transition under
// bootstrap_lock, broadcasting bootstrap_cond on the same transition, per
// spec.md §3's invariant that this happens at most once.
func (lead *LeadQueue) finishBootstrap(empty bool, loaded, applied int64, cache *querycache.Cache) {
	if lead.bootstrapCompleted.Load() {
		// Bootstrap only runs again on reconnect; the QTC and migration counters from
		// the first successful bootstrap remain authoritative.
		return
	}

	cache.Freeze()
	lead.queryCache.Store(cache)
	lead.emptyDatabase.Store(empty)
	lead.latestLoadedMigration.Store(loaded)
	lead.latestAppliedMigration.Store(applied)

	lead.bootstrapMu.Lock()
	lead.bootstrapCompleted.Store(true)
	lead.bootstrapMu.Unlock()

	lead.bootstrapCond.Broadcast()
}
