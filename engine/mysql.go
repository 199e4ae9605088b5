package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type mysqlEngine struct{}

func newMySQLEngine() Engine {
	return mysqlEngine{}
}

func (mysqlEngine) Kind() Kind {
	return MySQL
}

func (mysqlEngine) Connect(ctx context.Context, info ConnectionInfo, opts Options) (Handle, error) {
	cfg := mysql.NewConfig()
	cfg.User = info.User
	cfg.Passwd = info.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", info.Host, orDefaultPort(info.Port, 3306))
	cfg.DBName = info.Database
	cfg.ParseTime = true

	if opts.TLS.Enable {
		tlsConfig, err := opts.TLS.MakeConfig(info.Host)
		if err != nil {
			return nil, errors.Wrap(ErrConnect, err.Error())
		}

		tlsName := "dbqueue-" + info.Database
		if err := mysql.RegisterTLSConfig(tlsName, tlsConfig); err != nil {
			return nil, errors.Wrap(ErrConnect, err.Error())
		}
		cfg.TLSConfig = tlsName
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, errors.Wrap(ErrConnect, err.Error())
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(maxOrDefault(opts.MaxOpenConns, 4))
	db.SetMaxIdleConns(maxOrDefault(opts.MaxIdleConns, 2))

	sqlxDB := sqlx.NewDb(db, "mysql")
	if err := sqlxDB.PingContext(ctx); err != nil {
		_ = sqlxDB.Close()
		return nil, errors.Wrap(ErrConnect, err.Error())
	}

	return newSQLHandle(MySQL, sqlxDB, opts, mysqlEscapeString)
}

func orDefaultPort(port, def int) int {
	if port <= 0 {
		return def
	}

	return port
}

// mysqlEscapeString escapes a string literal for inline use in MySQL SQL text. Prefer
// parameterized queries; this exists only to satisfy the engine contract's
// escape_string operation for callers building dynamic SQL.
func mysqlEscapeString(input string) string {
	var b strings.Builder
	for _, r := range input {
		switch r {
		case '\'', '"', '\\', 0, '\n', '\r':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}

	return b.String()
}
