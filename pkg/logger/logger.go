// Package logger holds the structured logging helpers shared by the service:
// handler construction, value masking and the credential audit trail.
package logger

import (
	"io"
	"log/slog"
	"strings"
)

// New returns a JSON slog logger writing to w at the given level.
// Unknown levels fall back to info.
func New(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}

// ParseLevel maps a LOG_LEVEL string onto a slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
