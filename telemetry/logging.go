package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel maps LOG_LEVEL (DEBUG, INFO, WARN, ERROR) to a slog level. Default: INFO.
func LogLevel(lookup func(string) (string, bool)) slog.Level {
	level, _ := lookup("LOG_LEVEL")
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a logger writing to w.
//
// LOG_FORMAT selects the handler:
//   - "json" (default)
//   - "text"
func NewLogger(lookup func(string) (string, bool), w io.Writer) *slog.Logger {
	level := LogLevel(lookup)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if format, _ := lookup("LOG_FORMAT"); format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// SetupLogger builds a stdout logger and installs it as the slog default.
func SetupLogger(lookup func(string) (string, bool)) *slog.Logger {
	logger := NewLogger(lookup, os.Stdout)
	slog.SetDefault(logger)

	return logger
}
