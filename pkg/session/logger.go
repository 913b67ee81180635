package session

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards every record; Enabled is false so nothing is formatted
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger configures the package logger. Sessions are silent by default.
// Pass nil to restore the silent default.
//
// Levels used:
//   - [slog.LevelDebug]: image loads, discarded stale responses, gestures committed
//   - [slog.LevelInfo]: dataset opened, annotations saved
//   - [slog.LevelWarn]: image load and save failures
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the package logger
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
