// Package logging builds the structured slog logger shared by the server and
// recorder binaries.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Khalid-000-ME/Trio/internal/config"
)

// New creates and configures the structured logger based on configuration.
// The returned closer releases a log file when one was opened.
func New(cfg config.LoggingConfig) (*slog.Logger, io.Closer) {
	level := ParseLevel(cfg.Level)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output io.Writer
	var closer io.Closer = nopCloser{}
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
			closer = file
		}
	}

	return slog.New(NewHandler(output, cfg.Format, opts)), closer
}

// NewHandler returns a JSON or text handler; anything but "json" is text.
func NewHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ParseLevel maps a config level name to a slog level, defaulting to info
func ParseLevel(name string) slog.Level {
	switch name {
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

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
