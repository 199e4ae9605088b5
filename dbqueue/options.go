package dbqueue

import (
	"time"

	"github.com/pkg/errors"

	"github.com/philement/dbqueue/config"
	"github.com/philement/dbqueue/engine"
)

// Options configures a Manager's queue-subsystem tunables, loaded via
// github.com/caarlos0/env/v11 and defaulted via github.com/creasty/defaults.
type Options struct {
	// HeartbeatIntervalSeconds is both the Lead worker's semaphore wait timeout and
	// the period between reconnect/health_check attempts.
	HeartbeatIntervalSeconds int `yaml:"heartbeat_interval_seconds" env:"HEARTBEAT_INTERVAL_SECONDS" default:"30"`

	// MaxChildQueuesPerClass bounds spawn_child_queue per queue class per database.
	MaxChildQueuesPerClass int `yaml:"max_child_queues_per_class" env:"MAX_CHILD_QUEUES_PER_CLASS" default:"20"`

	// MaxDatabases bounds the number of Leads a Manager will accept.
	MaxDatabases int `yaml:"max_databases" env:"MAX_DATABASES" default:"64"`

	// InitialConnectionTimeoutSeconds caps how long Manager.WaitReady waits; a sooner
	// deadline on the caller's context ends the wait first.
	InitialConnectionTimeoutSeconds int `yaml:"initial_connection_timeout_seconds" env:"INITIAL_CONNECTION_TIMEOUT_SECONDS" default:"30"`

	// PreparedStatementCacheSize and QueryParameterCap are forwarded to every engine.Handle
	// this Manager opens; they are configured once here rather than per database.
	PreparedStatementCacheSize int `yaml:"prepared_statement_cache_size" env:"PREPARED_STATEMENT_CACHE_SIZE" default:"256"`
	QueryParameterCap          int `yaml:"query_parameter_cap" env:"QUERY_PARAMETER_CAP" default:"100"`

	// MaxOpenConns/MaxIdleConns are forwarded to engine.Options for every database.
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS" default:"4"`
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS" default:"2"`

	// TLS is forwarded to engine.Options for engines that support it.
	TLS config.TLS `yaml:",inline"`
}

// engineOptions projects the fields relevant to engine.Connect out of Options.
func (o Options) engineOptions() engine.Options {
	return engine.Options{
		PreparedStatementCacheSize: o.PreparedStatementCacheSize,
		QueryParameterCap:          o.QueryParameterCap,
		MaxOpenConns:               o.MaxOpenConns,
		MaxIdleConns:               o.MaxIdleConns,
		TLS:                        o.TLS,
	}
}

// HeartbeatInterval returns HeartbeatIntervalSeconds as a time.Duration.
func (o Options) HeartbeatInterval() time.Duration {
	return time.Duration(o.HeartbeatIntervalSeconds) * time.Second
}

// InitialConnectionTimeout returns InitialConnectionTimeoutSeconds as a time.Duration.
func (o Options) InitialConnectionTimeout() time.Duration {
	return time.Duration(o.InitialConnectionTimeoutSeconds) * time.Second
}

// Validate implements config.Validator.
func (o Options) Validate() error {
	if o.HeartbeatIntervalSeconds <= 0 {
		return errors.New("heartbeat_interval_seconds must be positive")
	}
	if o.MaxChildQueuesPerClass <= 0 {
		return errors.New("max_child_queues_per_class must be positive")
	}
	if o.MaxDatabases <= 0 {
		return errors.New("max_databases must be positive")
	}
	if o.InitialConnectionTimeoutSeconds <= 0 {
		return errors.New("initial_connection_timeout_seconds must be positive")
	}
	if o.PreparedStatementCacheSize <= 0 {
		return errors.New("prepared_statement_cache_size must be positive")
	}
	if o.QueryParameterCap <= 0 {
		return errors.New("query_parameter_cap must be positive")
	}
	if o.MaxOpenConns <= 0 {
		return errors.New("max_open_conns must be positive")
	}

	return nil
}
