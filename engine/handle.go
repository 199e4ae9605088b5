package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/philement/dbqueue/retry"
	"github.com/philement/dbqueue/utils"
)

// preparedHandle wraps a *sql.Stmt to satisfy PreparedHandle.
type preparedHandle struct {
	stmt *sql.Stmt
}

func (p *preparedHandle) Close() error {
	return p.stmt.Close()
}

// sqlHandle is the shared database/sql-backed Handle implementation used by all four
// engines. Engines differ only in how they build a *sqlx.DB and in EscapeString.
type sqlHandle struct {
	kind   Kind
	db     *sqlx.DB
	opts   Options
	escape func(string) string

	mu       sync.Mutex
	prepared *lru.Cache[string, *preparedHandle]
	tx       *Transaction
}

func newSQLHandle(kind Kind, db *sqlx.DB, opts Options, escape func(string) string) (*sqlHandle, error) {
	size := opts.PreparedStatementCacheSize
	if size <= 0 {
		size = 1
	}

	cache, err := lru.NewWithEvict[string, *preparedHandle](size, func(_ string, p *preparedHandle) {
		_ = p.Close()
	})
	if err != nil {
		return nil, errors.Wrap(err, "can't create prepared statement cache")
	}

	return &sqlHandle{kind: kind, db: db, opts: opts, escape: escape, prepared: cache}, nil
}

func (h *sqlHandle) Ping(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.db.PingContext(ctx)
}

// isSelectLike reports whether sqlText is a row-returning statement, by leading keyword.
func isSelectLike(sqlText string) bool {
	trimmed := strings.ToUpper(strings.TrimSpace(sqlText))
	for _, kw := range []string{"SELECT", "WITH", "SHOW", "EXPLAIN", "PRAGMA", "VALUES"} {
		if strings.HasPrefix(trimmed, kw) {
			return true
		}
	}

	return false
}

// decodeParameters parses a QueryRequest's parameter_json array, rejecting it if it
// carries more than cap entries.
func decodeParameters(parameterJSON string, paramCap int) ([]any, error) {
	if parameterJSON == "" {
		return nil, nil
	}

	var params []any
	if err := json.Unmarshal([]byte(parameterJSON), &params); err != nil {
		return nil, errors.Wrap(err, "can't parse query parameters")
	}

	if paramCap > 0 && len(params) > paramCap {
		return nil, errors.Errorf("query carries %d parameters, exceeding the cap of %d", len(params), paramCap)
	}

	return params, nil
}

// normalizeRow converts []byte values (as returned by most drivers for text/blob
// columns) to plain strings so that json.Marshal produces readable JSON rather than
// base64.
func normalizeRow(row map[string]any) {
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
		}
	}
}

// classifyExecErr maps a driver error to ErrConnect if it looks like a connection-level
// fault (per retry.Retryable's classification), or nil if it is an ordinary SQL/
// constraint failure that should be carried in Result.ErrorMessage instead. An error
// reported by a MySQL or PostgreSQL server always counts as the latter, even though
// retry.Retryable treats every such error as retryable.
func classifyExecErr(err error) error {
	var mye *mysql.MySQLError
	var pqe *pq.Error
	if errors.As(err, &mye) || errors.As(err, &pqe) {
		return nil
	}

	if retry.Retryable(err) {
		return errors.Wrap(ErrConnect, err.Error())
	}

	return nil
}

// queryFailure builds the Result for a query/exec error that classifyExecErr did not
// promote to a connection fault, flagging it as a serialization failure when
// utils.IsDeadlock recognizes its driver-specific code.
func queryFailure(err error) Result {
	return Result{Success: false, ErrorMessage: err.Error(), Deadlock: utils.IsDeadlock(err)}
}

func (h *sqlHandle) ExecuteQuery(ctx context.Context, sqlText string, parameterJSON string) (Result, error) {
	params, err := decodeParameters(parameterJSON, h.opts.QueryParameterCap)
	if err != nil {
		return Result{Success: false, ErrorMessage: err.Error()}, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	start := time.Now()

	if isSelectLike(sqlText) {
		rows, err := h.db.QueryxContext(ctx, sqlText, params...)
		if err != nil {
			return queryFailure(err), classifyExecErr(err)
		}
		defer func() { _ = rows.Close() }()

		cols, err := rows.Columns()
		if err != nil {
			return queryFailure(err), classifyExecErr(err)
		}

		out := make([]map[string]any, 0)
		for rows.Next() {
			row := make(map[string]any, len(cols))
			if err := rows.MapScan(row); err != nil {
				return queryFailure(err), classifyExecErr(err)
			}

			normalizeRow(row)
			out = append(out, row)
		}
		if err := rows.Err(); err != nil {
			return queryFailure(err), classifyExecErr(err)
		}

		data, err := json.Marshal(out)
		if err != nil {
			return Result{}, errors.Wrap(err, "can't marshal result rows")
		}

		return Result{
			Success:     true,
			DataJSON:    string(data),
			RowCount:    len(out),
			ColumnCount: len(cols),
			Elapsed:     time.Since(start),
		}, nil
	}

	res, err := h.db.ExecContext(ctx, sqlText, params...)
	if err != nil {
		return queryFailure(err), classifyExecErr(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		// Not every driver supports RowsAffected (e.g. some DDL statements); this is
		// not a failure of the statement itself.
		affected = 0
	}

	return Result{
		Success:      true,
		AffectedRows: affected,
		Elapsed:      time.Since(start),
	}, nil
}

func (h *sqlHandle) Prepare(ctx context.Context, name, sqlText string, paramTypes []string) (PreparedHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if p, ok := h.prepared.Get(sqlText); ok {
		return p, nil
	}

	stmt, err := h.db.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, classifyExecErr(err)
	}

	p := &preparedHandle{stmt: stmt}
	h.prepared.Add(sqlText, p)

	return p, nil
}

func (h *sqlHandle) Begin(ctx context.Context, isolation sql.IsolationLevel) (*Transaction, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.tx != nil && h.tx.Active {
		return nil, errors.New("a transaction is already active on this handle")
	}

	tx, err := h.db.BeginTxx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return nil, classifyExecErr(err)
	}

	t := &Transaction{
		ID:             uuid.NewString(),
		IsolationLevel: isolation,
		StartedAt:      time.Now(),
		Active:         true,
		tx:             tx.Tx,
	}
	h.tx = t

	return t, nil
}

func (h *sqlHandle) Commit(tx *Transaction) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if tx == nil || !tx.Active || tx.tx == nil {
		return false, nil
	}

	err := tx.tx.Commit()
	tx.Active = false
	if h.tx == tx {
		h.tx = nil
	}

	return err == nil, err
}

func (h *sqlHandle) Rollback(tx *Transaction) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if tx == nil || !tx.Active || tx.tx == nil {
		return false, nil
	}

	err := tx.tx.Rollback()
	tx.Active = false
	if h.tx == tx {
		h.tx = nil
	}

	return err == nil, err
}

func (h *sqlHandle) EscapeString(input string) string {
	if h.escape != nil {
		return h.escape(input)
	}

	return input
}

func (h *sqlHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.prepared.Purge()

	return h.db.Close()
}
