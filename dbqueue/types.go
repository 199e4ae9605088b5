// Package dbqueue implements the multi-tenant database queue subsystem: a queue
// manager fronting heterogeneous SQL engines behind a uniform asynchronous submission
// interface, with per-database Lead/Worker queues, bootstrap, and heartbeat/reconnect.
package dbqueue

import "time"

// QueueClass is a latency-routing hint for a QueryRequest.
type QueueClass int

const (
	Slow QueueClass = iota
	Medium
	Fast
	Cache
)

// String renders the lowercase form used in logs and stats, or "unknown" for any value
// outside the enumerated set.
func (c QueueClass) String() string {
	switch c {
	case Slow:
		return "slow"
	case Medium:
		return "medium"
	case Fast:
		return "fast"
	case Cache:
		return "cache"
	default:
		return "unknown"
	}
}

// SelectQueueClass parses s into a QueueClass. An empty string defaults to Medium;
// matching is case-sensitive, so "SLOW" also defaults to Medium rather than Slow.
func SelectQueueClass(s string) QueueClass {
	switch s {
	case "slow":
		return Slow
	case "medium":
		return Medium
	case "fast":
		return Fast
	case "cache":
		return Cache
	default:
		return Medium
	}
}

// QueryRequest is submitted by a caller and transferred into a queue. QueryID must be
// unique within a Manager for the lifetime of its result.
type QueryRequest struct {
	QueryID         string
	SQLTemplate     string
	ParameterJSON   string
	QueueClassHint  QueueClass
	SubmittedAt     time.Time
	RetryCount      int
}

// QueryResult is produced by a worker and consumed exactly once by the waiter that
// calls Manager.Take with the matching QueryID.
type QueryResult struct {
	Success         bool
	DataJSON        string
	RowCount        int
	ColumnCount     int
	AffectedRows    int64
	ErrorMessage    string
	ExecutionTimeMs int64
}

// DatabaseStats is one line of Manager.Stats()/WriteStats() output.
type DatabaseStats struct {
	DatabaseName           string
	QueueClass             QueueClass
	Depth                  int
	IsConnected            bool
	LatestLoadedMigration  int64
	LatestAppliedMigration int64
}

// Logger is the log callback contract of spec.md §6 ("the core calls out to a logging
// interface that the caller supplies; the core never chooses its own log sink"),
// satisfied by *logging.Logger without hard-depending on zap at this package's API
// boundary.
type Logger interface {
	Debugf(template string, args ...any)
	Infof(template string, args ...any)
	Warnf(template string, args ...any)
	Errorf(template string, args ...any)

	// GetChildLogger returns a Logger scoped to a nested subsystem name, mirroring
	// *logging.Logger.GetChildLogger's "parent:child" naming.
	GetChildLogger(name string) Logger
}
