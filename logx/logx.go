// Package logx provides the logger abstraction shared across mcphost.
package logx

import (
	"fmt"
	"log"
	"log/slog"
	"os"
)

// Logger defines the interface for logging.
type Logger interface {
	Debug(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
}

// DefaultLogger provides a basic logger implementation using the standard log package.
type DefaultLogger struct {
	logger *log.Logger
}

// NewDefaultLogger creates a new logger writing to stderr with standard flags.
func NewDefaultLogger() *DefaultLogger {
	return &DefaultLogger{
		logger: log.New(os.Stderr, "[mcphost] ", log.LstdFlags|log.Lmsgprefix),
	}
}

func (l *DefaultLogger) Debug(msg string, args ...interface{}) {
	l.logger.Printf("DEBUG: "+msg, args...)
}
func (l *DefaultLogger) Info(msg string, args ...interface{}) { l.logger.Printf("INFO: "+msg, args...) }
func (l *DefaultLogger) Warn(msg string, args ...interface{}) { l.logger.Printf("WARN: "+msg, args...) }
func (l *DefaultLogger) Error(msg string, args ...interface{}) {
	l.logger.Printf("ERROR: "+msg, args...)
}

var _ Logger = (*DefaultLogger)(nil)

// SlogAdapter adapts a structured slog.Logger to the Logger interface.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a Logger that wraps an slog.Logger. A nil logger
// falls back to a text handler on stderr.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &SlogAdapter{logger: logger}
}

func (a *SlogAdapter) Debug(format string, v ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, v...))
}
func (a *SlogAdapter) Info(format string, v ...interface{}) {
	a.logger.Info(fmt.Sprintf(format, v...))
}
func (a *SlogAdapter) Warn(format string, v ...interface{}) {
	a.logger.Warn(fmt.Sprintf(format, v...))
}
func (a *SlogAdapter) Error(format string, v ...interface{}) {
	a.logger.Error(fmt.Sprintf(format, v...))
}

var _ Logger = (*SlogAdapter)(nil)

// NopLogger discards everything. Useful as a default in tests.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}

var _ Logger = NopLogger{}
