package logging

import (
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Valid values for Config.Output.
const (
	CONSOLE = "console"
	JOURNAL = "journal"
)

// Logger wraps a *zap.SugaredLogger scoped to one subsystem name.
//
// The subsystem name is both the zap logger name (so log lines carry it) and the key
// looked up in Options to determine this logger's effective level.
type Logger struct {
	*zap.SugaredLogger

	logging  *Logging
	name     string
	interval time.Duration
}

// Interval returns the periodic-summary-logging interval configured for this logger.
func (l *Logger) Interval() time.Duration {
	return l.interval
}

// Name returns the subsystem name this logger was scoped to.
func (l *Logger) Name() string {
	return l.name
}

// GetChildLogger returns the Logger for the subsystem nested under this one, named
// "<parent>:<name>". Its effective level is the Options entry for exactly the full
// child name if there is one, otherwise the root level.
func (l *Logger) GetChildLogger(name string) *Logger {
	return l.logging.GetLogger(l.name + ":" + name)
}

// Logging creates and caches Loggers sharing one zapcore.Core and one Options table of
// per-subsystem level overrides.
type Logging struct {
	core     zapcore.Core
	interval time.Duration
	options  Options

	mu      sync.Mutex
	loggers map[string]*Logger
}

// NewLogging constructs a Logging scoped to root subsystem name, configured by cfg.
//
// cfg.Output selects the sink: CONSOLE writes human-readable lines to os.Stderr,
// JOURNAL sends structured entries to systemd-journald via NewJournaldCore.
func NewLogging(name string, cfg Config) (*Logging, error) {
	if err := AssertOutput(cfg.Output); err != nil {
		return nil, errors.WithStack(err)
	}

	enabler := zap.NewAtomicLevelAt(cfg.Level)

	var core zapcore.Core
	switch cfg.Output {
	case JOURNAL:
		core = NewJournaldCore(name, enabler)
	default:
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		core = zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderCfg),
			zapcore.Lock(zapcore.AddSync(os.Stderr)),
			enabler,
		)
	}

	l := &Logging{
		core:     &subsystemLevelCore{Core: core, options: cfg.Options, root: name},
		interval: cfg.Interval,
		options:  cfg.Options,
		loggers:  make(map[string]*Logger),
	}
	l.loggers[name] = &Logger{
		SugaredLogger: zap.New(l.core).Named(name).Sugar(),
		logging:       l,
		name:          name,
		interval:      cfg.Interval,
	}

	return l, nil
}

// GetLogger returns the Logger for the given subsystem name, creating it on first use.
func (l *Logging) GetLogger(name string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lg, ok := l.loggers[name]; ok {
		return lg
	}

	lg := &Logger{
		SugaredLogger: zap.New(l.core).Named(name).Sugar(),
		logging:       l,
		name:          name,
		interval:      l.interval,
	}
	l.loggers[name] = lg

	return lg
}

// subsystemLevelCore wraps a zapcore.Core, consulting a per-subsystem Options table to
// override the base level enabler for whichever logger name an entry carries.
type subsystemLevelCore struct {
	zapcore.Core
	options Options
	root    string
}

func (c *subsystemLevelCore) With(fields []zapcore.Field) zapcore.Core {
	cc := *c
	cc.Core = c.Core.With(fields)

	return &cc
}

func (c *subsystemLevelCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	name := ent.LoggerName
	if name == "" {
		name = c.root
	}

	if override, ok := c.options[name]; ok {
		if ent.Level >= override {
			return ce.AddCore(ent, c)
		}

		return ce
	}

	return c.Core.Check(ent, ce)
}
