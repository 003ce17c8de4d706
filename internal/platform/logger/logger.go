package logger

import (
	"log/slog"
	"os"
)

// New returns a structured JSON logger using slog.
// Setting BATISECURE_LOG_DEBUG=true lowers the level to Debug.
func New() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("BATISECURE_LOG_DEBUG") == "true" {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
