// Package log builds the slog loggers quill injects through constructors.
//
// There is no global logger wiring beyond slog.SetDefault at startup: every
// component receives a Logger and narrows it with With("component", ...),
// so one request can be followed across api, chat, and blog log lines.
package log

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger aliases *slog.Logger so components depend on the standard type
// directly instead of a package-local interface.
type Logger = *slog.Logger

// ErrUnknownLevel is returned by ParseLevel for unrecognized level names.
var ErrUnknownLevel = errors.New("unknown log level")

// Config controls handler construction.
type Config struct {
	Level     slog.Level // minimum level, default slog.LevelInfo
	JSON      bool       // JSON handler instead of text
	AddSource bool       // annotate records with file:line
}

// ParseLevel maps a configuration string ("debug", "info", "warn", "error",
// case-insensitive) to a slog.Level. The empty string means info, so an
// unset log_level key falls through to the default.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
}

// New creates a logger writing to stderr.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a logger writing to w. Tests use it to capture
// output in a buffer.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewNop returns a logger that discards everything. Test-only; production
// callers go through New so operators keep their logs.
func NewNop() Logger {
	return slog.New(slog.DiscardHandler)
}
