// Package logger provides the logging abstraction used around statement
// execution. It ships a no-op logger and an adapter for log/slog.
package logger

import "log/slog"

// Logger is a leveled, structured logger taking alternating key-value args.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NoopLogger discards everything. It is the default.
type NoopLogger struct{}

func (n *NoopLogger) Debug(_ string, _ ...any) {}
func (n *NoopLogger) Info(_ string, _ ...any)  {}
func (n *NoopLogger) Warn(_ string, _ ...any)  {}
func (n *NoopLogger) Error(_ string, _ ...any) {}

// SlogAdapter wraps a *slog.Logger.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter wraps l. The logger must not be nil.
func NewSlogAdapter(l *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: l}
}

// FromSlog returns an adapter for l, or a NoopLogger when l is nil.
func FromSlog(l *slog.Logger) Logger {
	if l == nil {
		return &NoopLogger{}
	}
	return NewSlogAdapter(l)
}

func (a *SlogAdapter) Debug(msg string, args ...any) { a.logger.Debug(msg, args...) }
func (a *SlogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *SlogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *SlogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
