package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger. JSON output so log shippers can index
// the structured attrs emitted by services.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
