package logging

import (
	"fmt"
	"log/slog"
)

// PrintfAdapter adapts an slog.Logger to the printf-style logger the MCP
// transport expects.
type PrintfAdapter struct {
	logger *slog.Logger
}

// NewPrintfAdapter wraps logger. If logger is nil, slog.Default() is used.
func NewPrintfAdapter(logger *slog.Logger) *PrintfAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &PrintfAdapter{logger: logger}
}

// Infof logs a formatted message at info level.
func (a *PrintfAdapter) Infof(format string, v ...any) {
	a.logger.Info(fmt.Sprintf(format, v...))
}

// Errorf logs a formatted message at error level.
func (a *PrintfAdapter) Errorf(format string, v ...any) {
	a.logger.Error(fmt.Sprintf(format, v...))
}

// Logger returns the underlying slog.Logger.
func (a *PrintfAdapter) Logger() *slog.Logger {
	return a.logger
}
