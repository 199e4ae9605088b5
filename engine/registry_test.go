package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelect_KnownKinds(t *testing.T) {
	for _, k := range []Kind{Postgres, MySQL, SQLite, DB2} {
		eng, err := Select(k)
		require.NoError(t, err)
		require.Equal(t, k, eng.Kind())
	}
}

func TestSelect_UnknownKind(t *testing.T) {
	_, err := Select(Kind("oracle"))
	require.Error(t, err)
}
