package dbqueue

import "github.com/pkg/errors"

// Sentinel errors realizing spec.md §7's closed error-kind enumeration. Errors returned
// by this package wrap one of them with context (errors.Wrap/Wrapf, directly or through
// configError/capacityError) and are matched with errors.Is.
var (
	// ErrConfig is returned for a bad connection string, unknown engine, or duplicate
	// database name on AddDatabase.
	ErrConfig = errors.New("configuration error")

	// ErrEngineUnavailable wraps engine.ErrUnavailable: the driver library is missing
	// or the handle is invalid. It prevents the affected database's Lead from ever
	// completing bootstrap but does not affect other databases.
	ErrEngineUnavailable = errors.New("engine unavailable")

	// ErrConnect wraps engine.ErrConnect: a network/authentication failure, recoverable
	// by the heartbeat's reconnect attempts.
	ErrConnect = errors.New("can't connect")

	// ErrQuery marks a SQL/constraint failure. It is carried inside QueryResult and
	// never aborts a queue; it exists as a sentinel only for callers inspecting errors
	// returned alongside a QueryResult (e.g. from Take after a queue-level failure).
	ErrQuery = errors.New("query failed")

	// ErrCapacity is returned synchronously when a manager or child-queue limit would
	// be exceeded.
	ErrCapacity = errors.New("capacity exceeded")

	// ErrShutdownInProgress is returned by Submit after Destroy has been called.
	ErrShutdownInProgress = errors.New("shutdown in progress")
)

// configError wraps err as ErrConfig with additional context.
func configError(err error, context string) error {
	return errors.Wrapf(ErrConfig, "%s: %s", context, err)
}

// capacityError builds an ErrCapacity with context, with no underlying error to wrap.
func capacityError(context string) error {
	return errors.Wrap(ErrCapacity, context)
}
