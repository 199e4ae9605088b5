package querycache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCache_AddLookup(t *testing.T) {
	c := Create()

	require.True(t, c.Add(Entry{QueryRef: 1, SQLTemplate: "SELECT 1", QueueClass: "FAST"}))

	entry, ok := c.Lookup(1)
	require.True(t, ok)
	require.Equal(t, "SELECT 1", entry.SQLTemplate)

	_, ok = c.Lookup(2)
	require.False(t, ok)

	require.Equal(t, 1, c.EntryCount())
}

func TestCache_DuplicateRefRejected(t *testing.T) {
	c := Create()

	require.True(t, c.Add(Entry{QueryRef: 1, SQLTemplate: "SELECT 1"}))
	require.False(t, c.Add(Entry{QueryRef: 1, SQLTemplate: "SELECT 2"}))

	entry, ok := c.Lookup(1)
	require.True(t, ok)
	require.Equal(t, "SELECT 1", entry.SQLTemplate)

	require.ErrorIs(t, c.AddStrict(Entry{QueryRef: 1, SQLTemplate: "SELECT 3"}), ErrDuplicateRef)
}

func TestCache_FrozenRejectsAdd(t *testing.T) {
	c := Create()
	require.True(t, c.Add(Entry{QueryRef: 1}))

	c.Freeze()
	require.True(t, c.Frozen())

	require.False(t, c.Add(Entry{QueryRef: 2}))
	require.Error(t, c.AddStrict(Entry{QueryRef: 2}))

	_, ok := c.Lookup(1)
	require.True(t, ok)
}

func TestCache_EntryCount(t *testing.T) {
	c := Create()
	require.Equal(t, 0, c.EntryCount())

	for i := 0; i < 5; i++ {
		require.True(t, c.Add(Entry{QueryRef: i}))
	}

	require.Equal(t, 5, c.EntryCount())
}
