package dbqueue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectQueueClass(t *testing.T) {
	cases := []struct {
		in   string
		want QueueClass
	}{
		{"slow", Slow},
		{"medium", Medium},
		{"fast", Fast},
		{"cache", Cache},
		{"", Medium},
		{"SLOW", Medium}, // case-sensitive: the uppercase form does not match Slow.
		{"bogus", Medium},
	}

	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			require.Equal(t, c.want, SelectQueueClass(c.in))
		})
	}
}

func TestQueueClass_String(t *testing.T) {
	require.Equal(t, "slow", Slow.String())
	require.Equal(t, "medium", Medium.String())
	require.Equal(t, "fast", Fast.String())
	require.Equal(t, "cache", Cache.String())
	require.Equal(t, "unknown", QueueClass(99).String())
}
