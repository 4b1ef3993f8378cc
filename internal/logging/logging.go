package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pion/logging"
)

// Init installs the default slog logger. fallback is used when LOG_LEVEL is unset.
func Init(fallback slog.Level) {
	level := Level(fallback)

	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
}

// Level resolves LOG_LEVEL, returning fallback when it is unset or unknown.
func Level(fallback slog.Level) slog.Level {
	l, ok := os.LookupEnv("LOG_LEVEL")
	if !ok {
		return fallback
	}

	switch strings.ToLower(strings.TrimSpace(l)) {
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

// PionFactory returns a pion LoggerFactory whose verbosity follows LOG_LEVEL.
func PionFactory(fallback slog.Level, w io.Writer) logging.LoggerFactory {
	f := logging.NewDefaultLoggerFactory()
	f.Writer = w

	switch lvl := Level(fallback); {
	case lvl <= slog.LevelDebug:
		f.DefaultLogLevel = logging.LogLevelDebug
	case lvl <= slog.LevelInfo:
		f.DefaultLogLevel = logging.LogLevelInfo
	case lvl <= slog.LevelWarn:
		f.DefaultLogLevel = logging.LogLevelWarn
	default:
		f.DefaultLogLevel = logging.LogLevelError
	}
	return f
}
