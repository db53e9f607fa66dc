// Package logging builds the process-wide slog logger. Components
// scope their own logger off of it with .With("component", ...).
package logging

import (
	"log/slog"
	"os"

	"github.com/certproxy/certproxy/internal/config"
)

// New builds a *slog.Logger for the given format: "json" uses
// slog.NewJSONHandler, "pretty" uses slog.NewTextHandler.
func New(format config.LogFormat) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}

	var handler slog.Handler
	switch format {
	case config.LogFormatPretty:
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
