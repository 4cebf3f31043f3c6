// Package logging provides structured logging setup using log/slog.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// DebugEnv is the environment variable that enables debug logging when set
// to "1".
const DebugEnv = "NETMON_DEBUG"

// Level represents the logging verbosity level.
type Level int

const (
	// LevelInfo is the default logging level for normal operation.
	LevelInfo Level = iota
	// LevelDebug enables verbose debug output.
	LevelDebug
)

// Format selects the log output encoding.
type Format int

const (
	// FormatText writes logfmt-style lines, used by the CLI.
	FormatText Format = iota
	// FormatJSON writes one JSON object per line, used by the daemon.
	FormatJSON
)

// New builds a logger writing to w.
func New(w io.Writer, level Level, format Format) *slog.Logger {
	slogLevel := slog.LevelInfo
	if level == LevelDebug {
		slogLevel = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}

	var handler slog.Handler
	switch format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Setup initializes the global slog logger on stderr.
// Call this once at application startup.
func Setup(level Level, format Format) {
	slog.SetDefault(New(os.Stderr, level, format))
}

// LevelFromEnv returns LevelDebug when NETMON_DEBUG=1.
func LevelFromEnv() Level {
	if os.Getenv(DebugEnv) == "1" {
		return LevelDebug
	}
	return LevelInfo
}

// ResolveLevel returns LevelDebug when debug is set, and the level from the
// environment otherwise.
func ResolveLevel(debug bool) Level {
	if debug {
		return LevelDebug
	}
	return LevelFromEnv()
}
