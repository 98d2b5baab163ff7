package logger

// Noop is a Logger that discards everything. Tests swap the package-level loggers to this
// to keep output quiet without changing call sites.
var Noop Logger = noopLogger{}

type noopLogger struct{}

func (noopLogger) Debug(args ...any) {}
func (noopLogger) Info(args ...any)  {}
func (noopLogger) Warn(args ...any)  {}
func (noopLogger) Error(args ...any) {}

func (noopLogger) Debugf(format string, args ...any) {}
func (noopLogger) Infof(format string, args ...any)  {}
func (noopLogger) Warnf(format string, args ...any)  {}
func (noopLogger) Errorf(format string, args ...any) {}

func (noopLogger) Debugw(msg string, kv ...any) {}
func (noopLogger) Infow(msg string, kv ...any)  {}
func (noopLogger) Warnw(msg string, kv ...any)  {}
func (noopLogger) Errorw(msg string, kv ...any) {}

func (n noopLogger) With(fields ...string) Logger { return n }
func (n noopLogger) WithAlias(alias string) Logger { return n }
func (n noopLogger) WithPhase(phase string) Logger { return n }
