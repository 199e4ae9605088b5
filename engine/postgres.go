package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

type postgresEngine struct{}

func newPostgresEngine() Engine {
	return postgresEngine{}
}

func (postgresEngine) Kind() Kind {
	return Postgres
}

func (postgresEngine) Connect(ctx context.Context, info ConnectionInfo, opts Options) (Handle, error) {
	sslmode := "disable"
	if opts.TLS.Enable {
		sslmode = "require"
		if opts.TLS.Insecure {
			sslmode = "allow"
		}
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		info.Host, info.Port, info.User, info.Password, info.Database, sslmode,
	)

	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, errors.Wrap(ErrConnect, err.Error())
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(maxOrDefault(opts.MaxOpenConns, 4))
	db.SetMaxIdleConns(maxOrDefault(opts.MaxIdleConns, 2))

	sqlxDB := sqlx.NewDb(db, "postgres")
	if err := sqlxDB.PingContext(ctx); err != nil {
		_ = sqlxDB.Close()
		return nil, errors.Wrap(ErrConnect, err.Error())
	}

	return newSQLHandle(Postgres, sqlxDB, opts, pqEscapeString)
}

func maxOrDefault(v, def int) int {
	if v <= 0 {
		return def
	}

	return v
}

// pqEscapeString escapes a string literal for inline use in PostgreSQL SQL text,
// doubling single quotes and backslashes per PostgreSQL's standard_conforming_strings
// escaping rules.
func pqEscapeString(input string) string {
	var b strings.Builder
	for _, r := range input {
		if r == '\'' || r == '\\' {
			b.WriteRune(r)
		}
		b.WriteRune(r)
	}

	return b.String()
}
