package obs

import "github.com/yanun0323/logs"

// Logger is the broker's only cold-path logging seam: driver parse failures
// and protocol errors are reported through it rather than a direct logs
// call, so a caller that wants every such event routed somewhere else (a
// test, an alternate sink) can supply its own implementation. Never called
// from the book-mutation hot path itself, only at packet/connection
// boundaries.
type Logger interface {
	Warn(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// NoopLogger discards everything. It is not a default anywhere: an unset
// Logger is replaced by DefaultLogger.
func NoopLogger() Logger { return noopLogger{} }

type defaultLogger struct{}

func (defaultLogger) Warn(format string, args ...any) { logs.Warnf(format, args...) }

// DefaultLogger routes through the structured cold-path logger used
// throughout the rest of the broker.
func DefaultLogger() Logger { return defaultLogger{} }
