package dbqueue

import "github.com/philement/dbqueue/logging"

// loggerAdapter adapts *logging.Logger to the Logger interface, translating
// GetChildLogger's concrete *logging.Logger return into another adapted Logger.
type loggerAdapter struct {
	*logging.Logger
}

// NewLogger wraps l as a Logger, the default construction path's logging sink.
func NewLogger(l *logging.Logger) Logger {
	return loggerAdapter{Logger: l}
}

func (a loggerAdapter) GetChildLogger(name string) Logger {
	return NewLogger(a.Logger.GetChildLogger(name))
}
