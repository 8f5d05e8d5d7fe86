// Package logging provides structured logging setup with colored
// terminal output (via tint) and a runtime-adjustable log level.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Level is the global atomic log level, driven by config.json's
// system.logLevel field. It can be changed at runtime without restarting.
var Level = new(slog.LevelVar) // default: INFO

// Options controls Setup's choice of handler.
type Options struct {
	// ForceStdout routes logs to stdout instead of stderr, matching
	// config.json's system.logSTDOUT flag (spec.md §5).
	ForceStdout bool
}

// Setup initializes the global slog logger. When the destination is a
// TTY it uses tint for colored output; otherwise it falls back to
// JSON for structured log aggregation.
func Setup(opts Options) {
	w := os.Stderr
	if opts.ForceStdout {
		w = os.Stdout
	}
	var handler slog.Handler
	if isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd()) {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      Level,
			TimeFormat: time.TimeOnly,
		})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: Level,
		})
	}
	slog.SetDefault(slog.New(handler))
}

// SetLevel changes the global log level.
func SetLevel(l slog.Level) {
	Level.Set(l)
}

// GetLevel returns the current global log level.
func GetLevel() slog.Level {
	return Level.Level()
}

// ParseLevel converts a string like "debug", "info", "warn", "error"
// to the corresponding slog.Level. It is case-insensitive.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(strings.ToUpper(s)))
	return l, err
}
