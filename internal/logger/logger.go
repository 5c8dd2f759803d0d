// Package logger provides structured logging setup for SwarmForge.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/Strob0t/SwarmForge/internal/config"
)

// New creates a *slog.Logger from the given Logging config together with a
// Closer that flushes the async handler. Output is JSON to stdout with a
// "service" attribute on every record.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	level := parseLevel(cfg.Level)

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	closer := Closer(nopCloser{})
	if cfg.Async {
		size := cfg.BufferSize
		if size <= 0 {
			size = 1024
		}
		ah := NewAsyncHandler(handler, size, 1)
		handler = ah
		closer = ah
	}

	return slog.New(handler).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
