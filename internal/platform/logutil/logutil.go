// Package logutil provides nil-safe logger helpers.
package logutil

import (
	"io"
	"log/slog"
)

// noop is a package-level discard logger, created once.
var noop = slog.New(slog.NewTextHandler(io.Discard, nil))

// Noop returns a logger that discards all output.
func Noop() *slog.Logger { return noop }

// NoopIfNil returns l when non-nil, otherwise a discard logger.
// Intended as the first line in constructors that accept *slog.Logger.
func NoopIfNil(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return noop
}

// ParseLevel maps a config level string to a slog.Level.
// Unrecognized values fall back to info.
func ParseLevel(s string) slog.Level {
	switch s {
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
