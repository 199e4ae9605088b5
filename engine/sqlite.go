package engine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	// Pure-Go SQLite driver, so dbqueue never requires CGO to reach the default
	// fallback engine (see ParseConnectionString's unknown-scheme behavior).
	_ "modernc.org/sqlite"
)

type sqliteEngine struct{}

func newSQLiteEngine() Engine {
	return sqliteEngine{}
}

func (sqliteEngine) Kind() Kind {
	return SQLite
}

func (sqliteEngine) Connect(ctx context.Context, info ConnectionInfo, opts Options) (Handle, error) {
	path := info.Database
	if path == "" {
		return nil, errors.Wrap(ErrConnect, "no database file path given")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(ErrConnect, err.Error())
	}

	// SQLite has no server-side connection concurrency; a single connection avoids
	// "database is locked" errors under the writer-per-handle model this core uses.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	sqlxDB := sqlx.NewDb(db, "sqlite")
	if err := sqlxDB.PingContext(ctx); err != nil {
		_ = sqlxDB.Close()
		return nil, errors.Wrap(ErrConnect, err.Error())
	}

	return newSQLHandle(SQLite, sqlxDB, opts, sqliteEscapeString)
}

// sqliteEscapeString escapes a string literal for inline use in SQLite SQL text by
// doubling single quotes, SQLite's only quoting rule for string literals.
func sqliteEscapeString(input string) string {
	return strings.ReplaceAll(input, "'", "''")
}
