// Package observability provides structured logging construction and
// Prometheus metrics for the control plane.
package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/calder-ai/steward/internal/config"
)

// NewLogger builds a slog.Logger from the logging configuration. Unknown
// levels fall back to info; unknown formats fall back to text.
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	return NewLoggerTo(os.Stderr, cfg)
}

// NewLoggerTo builds a slog.Logger writing to w. Split out for tests.
func NewLoggerTo(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
