package logging

import (
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a LOG_LEVEL value to a slog level, returning fallback for
// empty or unknown values.
func ParseLevel(value string, fallback slog.Level) slog.Level {
	switch strings.ToLower(value) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	}
	return fallback
}

// Init installs a text handler on stderr as the default logger and returns
// it. The level comes from LOG_LEVEL, falling back to fallback.
func Init(fallback slog.Level) *slog.Logger {
	level := ParseLevel(os.Getenv("LOG_LEVEL"), fallback)

	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
	return logger
}
