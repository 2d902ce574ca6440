package pixelrts

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler drops every record. Enabled reports false, so callers never
// build the attributes of a disabled message.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var (
	silent    = slog.New(nopHandler{})
	loggerPtr atomic.Pointer[slog.Logger]
)

func init() {
	loggerPtr.Store(silent)
}

// SetLogger installs the logger shared by pixelrts, rtsfile, isa and vm.
// Nothing is logged until it is called; nil restores the silent default.
// It may be called at any time from any goroutine.
//
// Levels:
//   - [slog.LevelDebug]: grid orders, texture cache activity, pipeline setup
//   - [slog.LevelInfo]: adapter selection, finished runs
//   - [slog.LevelWarn]: degraded decodes, integrity failures in lenient
//     mode, runs stopped by a fault or the step limit
//
// Example:
//
//	pixelrts.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = silent
	}
	loggerPtr.Store(l)
}

// Logger returns the logger installed with SetLogger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
