// Package logging provides structured logging for the scribal tools.
//
// Output goes to stderr by default, following CLI conventions: stdout is
// reserved for reports, graphs and traces. Library packages return values
// and never log; only long-running commands (watch, simulations) write
// through this package.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls logger construction.
type Config struct {
	// Level is the minimum level emitted; defaults to info.
	Level slog.Level
	// Service tags every record, useful when several tools share a log.
	Service string
	// Writer receives the output; defaults to stderr.
	Writer io.Writer
	// JSON switches from the human text handler to JSON records.
	JSON bool
}

// New builds a logger from the config.
func New(cfg Config) *slog.Logger {
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service)
	}
	return logger
}

// Default returns a stderr text logger at info level.
func Default() *slog.Logger {
	return New(Config{})
}

// ParseLevel reads a level name from configuration or flags.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}
