// Package engine implements the uniform database-engine contract (C1) and the
// connection-string parser (C2) that drives engine selection.
package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/philement/dbqueue/config"
)

// Kind enumerates the supported database engines. The set is closed: callers select an
// engine by Kind, there is no runtime-open plugin registry.
type Kind string

const (
	Postgres Kind = "postgresql"
	MySQL    Kind = "mysql"
	SQLite   Kind = "sqlite"
	DB2      Kind = "db2"
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}

// Sentinel errors returned by Engine implementations. dbqueue wraps ErrUnavailable and
// ErrConnect into its own ErrEngineUnavailable/ErrConnect so that callers only need to
// know about one set of error kinds regardless of which package actually produced the failure.
var (
	// ErrParse is returned by ParseConnectionString for empty or malformed input.
	ErrParse = errors.New("can't parse connection string")

	// ErrUnavailable is returned by Connect when the engine's driver library is missing
	// or otherwise cannot be loaded (e.g. a CGO-dependent driver built without CGO).
	ErrUnavailable = errors.New("engine unavailable")

	// ErrConnect is returned by Connect for network/authentication failures.
	ErrConnect = errors.New("can't connect")
)

// ConnectionInfo is the parsed form of a connection string.
//
// String() renders Password in clear; use Masked() for any value that may be logged.
type ConnectionInfo struct {
	Kind     Kind
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// Result is the outcome of ExecuteQuery.
//
// For SELECT statements DataJSON is a JSON array of row objects and AffectedRows is 0.
// For DML, RowCount and ColumnCount are 0 and AffectedRows is authoritative.
type Result struct {
	Success      bool
	DataJSON     string
	RowCount     int
	ColumnCount  int
	AffectedRows int64
	ErrorMessage string
	Elapsed      time.Duration

	// Deadlock is set when Success is false and the failure was a serialization
	// failure (MySQL 1205/1213, PostgreSQL 40001/40P01) rather than a genuine
	// constraint or syntax error, so that callers can choose to resubmit the query
	// instead of surfacing it as a permanent failure.
	Deadlock bool
}

// Transaction tracks one active transaction on a Handle. Nested transactions are not
// supported: a Handle may have at most one active Transaction at a time.
type Transaction struct {
	ID             string
	IsolationLevel sql.IsolationLevel
	StartedAt      time.Time
	Active         bool
	tx             *sql.Tx
}

// PreparedHandle is an opaque, engine-owned prepared statement.
type PreparedHandle interface {
	// Close releases the prepared statement. Idempotent.
	Close() error
}

// Handle is an opaque per-engine connection, exclusively owned by one queue at a time
// and guarded by a mutex because most native drivers are not safe for concurrent use by
// more than one goroutine performing a stateful operation (transactions, prepares).
type Handle interface {
	// Ping performs a cheap liveness probe (SELECT 1, PQping, mysql_ping, or a schema
	// probe for SQLite).
	Ping(ctx context.Context) error

	// ExecuteQuery runs sqlText (already resolved from any query-cache template) with
	// the given JSON-encoded parameters and returns a Result. SQL/constraint failures
	// are reported as Result{Success: false}, never as an error; an error return means
	// the handle itself is unusable.
	ExecuteQuery(ctx context.Context, sqlText string, parameterJSON string) (Result, error)

	// Prepare returns a cached or newly created PreparedHandle for sqlText.
	Prepare(ctx context.Context, name, sqlText string, paramTypes []string) (PreparedHandle, error)

	// Begin starts a Transaction at the given isolation level.
	Begin(ctx context.Context, isolation sql.IsolationLevel) (*Transaction, error)

	// Commit commits tx. Returns false if tx is not active.
	Commit(tx *Transaction) (bool, error)

	// Rollback rolls back tx. Returns false if tx is not active.
	Rollback(tx *Transaction) (bool, error)

	// EscapeString escapes input for safe inline use by this engine's SQL dialect.
	EscapeString(input string) string

	// Close disconnects. Idempotent, best-effort.
	Close() error
}

// Options configures engine connection establishment, shared across all Kinds.
type Options struct {
	// PreparedStatementCacheSize bounds the per-Handle LRU of prepared statements.
	PreparedStatementCacheSize int `yaml:"prepared_statement_cache_size" env:"PREPARED_STATEMENT_CACHE_SIZE" default:"256"`

	// QueryParameterCap bounds the number of parameters accepted by ExecuteQuery.
	QueryParameterCap int `yaml:"query_parameter_cap" env:"QUERY_PARAMETER_CAP" default:"100"`

	// MaxOpenConns/MaxIdleConns configure the underlying *sql.DB pool. Since this core
	// borrows one Handle per database rather than pooling per worker, these default to
	// small values; callers with different concurrency needs may override them.
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS" default:"4"`
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS" default:"2"`

	// TLS configures TLS for engines that support it (Postgres, MySQL). Ignored by
	// SQLite and DB2.
	TLS config.TLS `yaml:",inline"`
}

// Engine implements the per-Kind connection factory.
type Engine interface {
	Kind() Kind

	// Connect establishes a Handle for info. Returns ErrUnavailable if the driver
	// library cannot be loaded, ErrConnect for network/authentication failures.
	Connect(ctx context.Context, info ConnectionInfo, opts Options) (Handle, error)
}
