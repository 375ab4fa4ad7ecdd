// Package logger builds the daemon-wide slog logger. Everything the
// circulation engine emits goes through it as structured JSON.
package logger

import (
	"log/slog"
	"os"
)

func New(env string) *slog.Logger {
	level := slog.LevelInfo
	if env == "dev" {
		level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("service", "circulationd", "env", env)
}
