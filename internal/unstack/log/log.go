// Package log configures the application logger used by the command line
// and recovers panics in its goroutines.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

var (
	initOnce    sync.Once
	initialized atomic.Bool
)

// Setup installs the default slog logger. Output goes to logFile when it
// is set and can be opened, otherwise to stderr. Only the first call has
// any effect.
func Setup(logFile string, debug bool) {
	initOnce.Do(func() {
		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}

		var out io.Writer = os.Stderr
		if logFile != "" {
			f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
			if err == nil {
				out = f
			}
		}

		handler := slog.NewTextHandler(out, &slog.HandlerOptions{
			Level:     level,
			AddSource: debug,
		})

		slog.SetDefault(slog.New(handler))
		initialized.Store(true)
	})
}

func Initialized() bool {
	return initialized.Load()
}

// RecoverPanic must be deferred. It logs a panic with its stack and runs
// cleanup; the panic is not re-raised.
func RecoverPanic(name string, cleanup func()) {
	if r := recover(); r != nil {
		if Initialized() {
			slog.Error(fmt.Sprintf("Panic in %s", name),
				"panic", r,
				"stack", string(debug.Stack()))
		}
		if cleanup != nil {
			cleanup()
		}
	}
}
