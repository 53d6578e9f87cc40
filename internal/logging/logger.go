// Package logging provides the structured logger used for library-level
// tracing. It is configured from environment variables and can write to a
// file instead of stderr.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// LoggerCloser wraps a logger and provides a Close method for cleanup
type LoggerCloser struct {
	*log.Logger
	closer io.Closer
}

// Close closes the underlying writer if it's closeable
func (lc *LoggerCloser) Close() error {
	if lc.closer != nil {
		return lc.closer.Close()
	}
	return nil
}

// ParseLevel maps a level name to a log level, defaulting to info.
func ParseLevel(name string) log.Level {
	switch strings.ToLower(name) {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// NewLoggerWithWriter creates a new logger with the provided writer
func NewLoggerWithWriter(w io.Writer) *LoggerCloser {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
	lg.SetLevel(ParseLevel(os.Getenv("UNSTACK_LOG_LEVEL")))

	prefix := os.Getenv("UNSTACK_LOG_PREFIX")
	if prefix == "" {
		prefix = "unstack "
	}

	// Stderr is shared; only files opened for this logger are closed.
	var closer io.Closer
	if c, ok := w.(io.Closer); ok && w != os.Stderr && w != os.Stdout {
		closer = c
	}

	return &LoggerCloser{
		Logger: lg.WithPrefix(prefix),
		closer: closer,
	}
}

// NewLogger creates a new logger based on environment variables
// UNSTACK_LOG_LEVEL: debug, info, warn, error (default: info)
// UNSTACK_LOG_PREFIX: prefix for log messages (default: "unstack ")
// UNSTACK_LOG_TO_FILE: when set to "1", logs to a timestamped file instead of stderr
func NewLogger() *LoggerCloser {
	output := io.Writer(os.Stderr)

	if os.Getenv("UNSTACK_LOG_TO_FILE") == "1" {
		timestamp := time.Now().Format("20060102-150405")
		logFile := fmt.Sprintf("unstack-%s-debug.log", timestamp)

		f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err == nil {
			output = f
		}
		// If file creation fails, fall back to stderr
	}

	return NewLoggerWithWriter(output)
}

// IsDebug returns true if debug logging is enabled
func IsDebug() bool {
	return strings.EqualFold(os.Getenv("UNSTACK_LOG_LEVEL"), "debug")
}
