// Package logx holds the logger shared by the wafel packages.
// By default nothing is logged; the application shell installs a handler.
package logx

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards every record. Enabled reports false so callers skip
// formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger installs l for all wafel packages. Passing nil restores the
// silent default. Safe for concurrent use.
//
// Levels:
//   - [slog.LevelDebug]: per-panel and per-curve diagnostics
//   - [slog.LevelInfo]: job lifecycle (evaluated, program written)
//   - [slog.LevelWarn]: recovered geometry anomalies, skipped snippets
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the active logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// ParseLevel maps a level name ("debug", "info", "warn", "error") to a
// slog level. Unknown names yield info.
func ParseLevel(name string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
