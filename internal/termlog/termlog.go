// Package termlog provides the leveled, structured terminal logger every
// variant of this tool carries: informational records to stdout, warnings
// and errors to stderr, level gated by a verbosity count.
//
// The original mussh split stdout/stderr slog.Logger instances, raising
// the stdout logger's level with each "-v" on the command line (error by
// default, then info, then debug). log/slog is the stdlib's native
// equivalent of that leveled-logger shape and is used here instead of
// reaching for an external structured-logging library, since no example
// repo in the corpus settles on one particular non-stdlib leveled logger
// for this kind of tool.
package termlog

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps two slog.Logger instances, one per stream, sharing a level.
type Logger struct {
	stdout *slog.Logger
	stderr *slog.Logger
	level  *slog.LevelVar
}

// New builds a Logger at the level implied by verbosity: 0 is Warn
// (matching the original's error-level default raised one notch so
// selection warnings are visible without any -v at all), 1 is Info,
// 2+ is Debug.
func New(verbosity int) *Logger {
	level := new(slog.LevelVar)
	level.Set(levelForVerbosity(verbosity))

	opts := &slog.HandlerOptions{Level: level}
	l := &Logger{
		stdout: slog.New(slog.NewTextHandler(os.Stdout, opts)),
		stderr: slog.New(slog.NewTextHandler(os.Stderr, opts)),
		level:  level,
	}
	return l
}

func levelForVerbosity(v int) slog.Level {
	switch {
	case v <= 0:
		return slog.LevelWarn
	case v == 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// SetVerbosity adjusts the shared level in place.
func (l *Logger) SetVerbosity(v int) {
	l.level.Set(levelForVerbosity(v))
}

func (l *Logger) Debug(msg string, args ...any) { l.stdout.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.stdout.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.stderr.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.stderr.Error(msg, args...) }

// WriteError adapts Logger for use as a hostlog.Sink onWriteError callback
// or any other "report this best-effort failure" hook.
func (l *Logger) WriteError(context string) func(error) {
	return func(err error) {
		l.stderr.Warn("write failed", "context", context, "error", err)
	}
}

// ctxKey is unexported; FromContext/WithContext let deep call chains
// (executors, the selector) log without threading *Logger through every
// signature.
type ctxKey struct{}

// WithContext returns a context carrying l.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the Logger stored by WithContext, or a fresh
// default (verbosity 0) logger if none was set.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return New(0)
}
