// Package logging provides the structured component logger used across
// taskctl. It wraps log/slog with a small interface so call sites never
// depend on slog directly and never need to nil-check before logging.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Logger is the minimal structured-logging surface every component depends
// on. Implementations format like fmt.Sprintf, not like slog's key/value
// pairs — this matches how the rest of the codebase calls it.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
	With(component string) Logger
}

type slogLogger struct {
	base      *slog.Logger
	component string
}

// New builds a Logger backed by log/slog writing JSON lines to w at the
// given level ("debug", "info", "warn", "error"; defaults to "info").
func New(w io.Writer, level string) Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return &slogLogger{base: slog.New(handler)}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *slogLogger) log(level slog.Level, format string, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	if l.component != "" {
		l.base.Log(context.Background(), level, msg, slog.String("component", l.component))
		return
	}
	l.base.Log(context.Background(), level, msg)
}

func (l *slogLogger) Debug(format string, args ...any) { l.log(slog.LevelDebug, format, args...) }
func (l *slogLogger) Info(format string, args ...any)  { l.log(slog.LevelInfo, format, args...) }
func (l *slogLogger) Warn(format string, args ...any)  { l.log(slog.LevelWarn, format, args...) }
func (l *slogLogger) Error(format string, args ...any) { l.log(slog.LevelError, format, args...) }

func (l *slogLogger) With(component string) Logger {
	return &slogLogger{base: l.base, component: component}
}

// NewComponentLogger returns the process-wide default logger (JSON to
// stderr, info level) scoped to component. Most constructors in this repo
// take a Logger directly; this helper is for call sites (CLI wiring, tests)
// that just want a quick named logger.
func NewComponentLogger(component string) Logger {
	return New(os.Stderr, "info").With(component)
}

// nopLogger discards everything. Used by OrNop so callers never need to
// nil-check a Logger before using it.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any)  {}
func (nopLogger) Info(string, ...any)   {}
func (nopLogger) Warn(string, ...any)   {}
func (nopLogger) Error(string, ...any)  {}
func (nopLogger) With(string) Logger    { return nopLogger{} }

// Nop is a shared no-op Logger.
var Nop Logger = nopLogger{}

// IsNil reports whether logger is nil or a typed-nil pointer masquerading
// as a non-nil interface value (the classic Go interface-nil trap: a *T(nil)
// assigned to an interface is itself non-nil).
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	if l, ok := logger.(*slogLogger); ok {
		return l == nil
	}
	return false
}

// OrNop returns logger unchanged unless it is nil (including a typed-nil
// pointer), in which case it returns Nop.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop
	}
	return logger
}
