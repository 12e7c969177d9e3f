package logging

import (
	"log/slog"
	"os"
)

// Init installs the default slog logger. LOG_LEVEL overrides fallback.
func Init(fallback slog.Level) {
	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: LevelFromEnv(fallback),
		}),
	)
	slog.SetDefault(logger)
}

// LevelFromEnv reads LOG_LEVEL, returning fallback when it is unset or
// unrecognized.
func LevelFromEnv(fallback slog.Level) slog.Level {
	l, ok := os.LookupEnv("LOG_LEVEL")
	if !ok {
		return fallback
	}
	return ParseLevel(l, fallback)
}

func ParseLevel(l string, fallback slog.Level) slog.Level {
	switch l {
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
