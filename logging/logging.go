// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init sets the default slog logger. Release mode logs JSON, anything else
// logs human-readable text. Both write to stderr.
func Init(release bool, level slog.Level) {
	slog.SetDefault(New(os.Stderr, release, level))
}

// New builds a logger writing to w.
func New(w io.Writer, release bool, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if release {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel converts "debug", "info", "warn" or "error" to a slog.Level.
// Unknown strings default to LevelInfo.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
