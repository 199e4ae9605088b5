package engine

import "github.com/pkg/errors"

// Selector resolves a Kind to an Engine. Select is the production Selector, backed by
// the closed-set registry below; callers that need to substitute a fake Engine for
// testing (rather than linking against a mock driver library) inject their own Selector
// instead of calling Select directly.
type Selector func(Kind) (Engine, error)

// registry is the closed-set dispatch table built once at package init. Engine
// selection is by Kind only; there is no runtime-open plugin mechanism.
var registry map[Kind]Engine

func init() {
	registry = map[Kind]Engine{
		Postgres: newPostgresEngine(),
		MySQL:    newMySQLEngine(),
		SQLite:   newSQLiteEngine(),
		DB2:      newDB2Engine(),
	}
}

// Select returns the Engine for kind. kind must be one of the four enumerated values;
// anything else is a configuration error, not an unavailable-engine condition.
func Select(kind Kind) (Engine, error) {
	e, ok := registry[kind]
	if !ok {
		return nil, errors.Errorf("unknown engine kind %q", kind)
	}

	return e, nil
}
