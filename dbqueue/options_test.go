package dbqueue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validOptions() Options {
	return Options{
		HeartbeatIntervalSeconds:        30,
		MaxChildQueuesPerClass:          20,
		MaxDatabases:                    64,
		InitialConnectionTimeoutSeconds: 30,
		PreparedStatementCacheSize:      256,
		QueryParameterCap:               100,
		MaxOpenConns:                    4,
		MaxIdleConns:                    2,
	}
}

func TestOptions_Validate(t *testing.T) {
	require.NoError(t, validOptions().Validate())
}

func TestOptions_Validate_RejectsNonPositiveFields(t *testing.T) {
	cases := []func(*Options){
		func(o *Options) { o.HeartbeatIntervalSeconds = 0 },
		func(o *Options) { o.MaxChildQueuesPerClass = 0 },
		func(o *Options) { o.MaxDatabases = 0 },
		func(o *Options) { o.InitialConnectionTimeoutSeconds = 0 },
		func(o *Options) { o.PreparedStatementCacheSize = 0 },
		func(o *Options) { o.QueryParameterCap = 0 },
		func(o *Options) { o.MaxOpenConns = 0 },
	}

	for _, mutate := range cases {
		o := validOptions()
		mutate(&o)
		require.Error(t, o.Validate())
	}
}

func TestOptions_Durations(t *testing.T) {
	o := validOptions()
	require.Equal(t, int64(30*1e9), int64(o.HeartbeatInterval()))
	require.Equal(t, int64(30*1e9), int64(o.InitialConnectionTimeout()))
}
