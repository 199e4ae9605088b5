package dbqueue

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/philement/dbqueue/engine"
)

func TestClassifyEngineErr(t *testing.T) {
	require.ErrorIs(t, classifyEngineErr(errors.Wrap(engine.ErrUnavailable, "no driver")), ErrEngineUnavailable)
	require.ErrorIs(t, classifyEngineErr(errors.Wrap(engine.ErrConnect, "refused")), ErrConnect)

	other := errors.New("something else")
	require.Equal(t, other, classifyEngineErr(other))
}

func TestQueueClassFromAny(t *testing.T) {
	require.Equal(t, Fast, queueClassFromAny("fast"))
	require.Equal(t, Medium, queueClassFromAny("SLOW")) // case-sensitive: falls back to Medium.
	require.Equal(t, QueueClass(2), queueClassFromAny(float64(2)))
	require.Equal(t, Medium, queueClassFromAny(nil))
}
