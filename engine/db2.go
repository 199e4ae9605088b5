package engine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	_ "github.com/ibmdb/go_ibm_db"
)

type db2Engine struct{}

func newDB2Engine() Engine {
	return db2Engine{}
}

func (db2Engine) Kind() Kind {
	return DB2
}

// unavailableSubstrings are driver/native-library load failures go_ibm_db surfaces when
// the IBM Data Server Driver shared libraries aren't installed on the host. This is the
// canonical way the EngineUnavailable condition arises in practice: the Go driver loads
// fine, but its cgo-linked native dependency doesn't.
var unavailableSubstrings = []string{
	"cannot open shared object file",
	"no such file or directory",
	"undefined symbol",
	"unknown driver",
	"clidriver",
}

func classifyConnectErr(err error) error {
	msg := strings.ToLower(err.Error())
	for _, s := range unavailableSubstrings {
		if strings.Contains(msg, s) {
			return errors.Wrap(ErrUnavailable, err.Error())
		}
	}

	return errors.Wrap(ErrConnect, err.Error())
}

func (db2Engine) Connect(ctx context.Context, info ConnectionInfo, opts Options) (Handle, error) {
	dsn := info.render(info.Password)

	db, err := sql.Open("go_ibm_db", dsn)
	if err != nil {
		return nil, classifyConnectErr(err)
	}

	db.SetMaxOpenConns(maxOrDefault(opts.MaxOpenConns, 4))
	db.SetMaxIdleConns(maxOrDefault(opts.MaxIdleConns, 2))

	sqlxDB := sqlx.NewDb(db, "go_ibm_db")
	if err := sqlxDB.PingContext(ctx); err != nil {
		_ = sqlxDB.Close()
		return nil, classifyConnectErr(err)
	}

	return newSQLHandle(DB2, sqlxDB, opts, db2EscapeString)
}

// db2EscapeString escapes a string literal for inline use in DB2 SQL text by doubling
// single quotes, DB2's quoting rule for string literals.
func db2EscapeString(input string) string {
	return strings.ReplaceAll(input, "'", "''")
}
