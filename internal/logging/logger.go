package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds a JSON logger for one of the careride binaries.
// Every line carries the service name so the tracker and API logs can
// share a sink without losing attribution.
func NewLogger(service, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     levelFromString(level),
		AddSource: true,
	}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler).With("service", service)
}

// Component returns a child logger tagged with the subsystem name, so
// hub, dispatcher and scheduler lines are separable in one stream.
func Component(log *slog.Logger, name string) *slog.Logger {
	return log.With("component", name)
}

func levelFromString(level string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
