// Package logger builds the process-wide slog logger.
package logger

import (
	"log/slog"
	"os"
)

// New returns a structured logger. JSON output for production, text for
// development, selected by the LOG_FORMAT env handled in config.
func New(format string) *slog.Logger {
	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, nil)
	default:
		handler = slog.NewJSONHandler(os.Stdout, nil)
	}
	return slog.New(handler)
}
