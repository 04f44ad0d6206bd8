// Package logger configures the process-wide slog default handler.
package logger

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// Configure installs the default slog handler. Dev environments get
// colorized output via tint, everything else gets JSON.
func Configure(levelStr string, env string) {
	level := parseLogLevel(levelStr)

	var handler slog.Handler
	switch env {
	case "dev", "development":
		handler = tint.NewHandler(os.Stdout, &tint.Options{Level: level})
	default:
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
