// Package logger provides the structured logging surface used across the pool, adapter,
// registry and odm packages. It is a trimmed generalization of forbearing-gst's
// logger/zap package: the same With/structured-logging shape, built on go.uber.org/zap,
// with the gin/controller-specific context extraction removed since this module has no
// HTTP layer.
package logger

import (
	"go.uber.org/zap"
)

// Logger is the logging interface every package in this module logs through. It never logs
// directly against *zap.Logger so that a caller embedding this module can supply their own
// implementation (tests use a no-op implementation to keep output quiet).
type Logger interface {
	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)

	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)

	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)

	// With returns a derived logger carrying the given string key/value pairs on every
	// subsequent call. An odd number of fields is padded with an empty string value.
	With(fields ...string) Logger
	// WithAlias is shorthand for With("alias", alias).
	WithAlias(alias string) Logger
	// WithPhase is shorthand for With("phase", phase).
	WithPhase(phase string) Logger
}

// Package-level loggers, one per core component, mirroring forbearing-gst's
// logger.Database/logger.Cache/... package variables. Callers may reassign these (e.g. in
// tests, to a no-op implementation) before using any other package in this module.
var (
	Pool     Logger = New("pool")
	Adapter  Logger = New("adapter")
	Registry Logger = New("registry")
	ODM      Logger = New("odm")
	Cache    Logger = New("cache")
)

type zapLogger struct {
	l *zap.SugaredLogger
}

var _ Logger = (*zapLogger)(nil)

// New builds a Logger backed by a production zap.Logger, tagged with a "component" field.
func New(component string) Logger {
	zl, err := zap.NewProduction()
	if err != nil {
		zl = zap.NewNop()
	}
	return &zapLogger{l: zl.Sugar().With("component", component)}
}

func (z *zapLogger) Debug(args ...any) { z.l.Debug(args...) }
func (z *zapLogger) Info(args ...any)  { z.l.Info(args...) }
func (z *zapLogger) Warn(args ...any)  { z.l.Warn(args...) }
func (z *zapLogger) Error(args ...any) { z.l.Error(args...) }

func (z *zapLogger) Debugf(format string, args ...any) { z.l.Debugf(format, args...) }
func (z *zapLogger) Infof(format string, args ...any)  { z.l.Infof(format, args...) }
func (z *zapLogger) Warnf(format string, args ...any)  { z.l.Warnf(format, args...) }
func (z *zapLogger) Errorf(format string, args ...any) { z.l.Errorf(format, args...) }

func (z *zapLogger) Debugw(msg string, kv ...any) { z.l.Debugw(msg, kv...) }
func (z *zapLogger) Infow(msg string, kv ...any)  { z.l.Infow(msg, kv...) }
func (z *zapLogger) Warnw(msg string, kv ...any)  { z.l.Warnw(msg, kv...) }
func (z *zapLogger) Errorw(msg string, kv ...any) { z.l.Errorw(msg, kv...) }

// With mirrors forbearing-gst's logger/zap.Logger.With: pairs of string key/values, odd
// trailing field padded with an empty string, empty-first-field calls are no-ops.
func (z *zapLogger) With(fields ...string) Logger {
	if len(fields) == 0 {
		return z
	}
	if len(fields) == 1 && len(fields[0]) == 0 {
		return z
	}
	if len(fields)%2 != 0 {
		fields = append(fields, "")
	}
	args := make([]any, 0, len(fields))
	for i := 0; i < len(fields); i += 2 {
		if len(fields[i]) == 0 {
			continue
		}
		args = append(args, fields[i], fields[i+1])
	}
	return &zapLogger{l: z.l.With(args...)}
}

func (z *zapLogger) WithAlias(alias string) Logger { return z.With("alias", alias) }
func (z *zapLogger) WithPhase(phase string) Logger { return z.With("phase", phase) }

// Sync flushes buffered log entries for all package-level loggers. Call during process
// shutdown.
func Sync() {
	for _, l := range []Logger{Pool, Adapter, Registry, ODM, Cache} {
		if zl, ok := l.(*zapLogger); ok {
			_ = zl.l.Sync()
		}
	}
}
