package runtime

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the shared JSON logger. Every record carries the service
// name so logs from all services can be aggregated into one stream. LOG_LEVEL
// (debug, info, warn, error) tunes verbosity; unknown values fall back to info.
func NewLogger(service string) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(Getenv("LOG_LEVEL", "info")),
	})
	return slog.New(h).With("service", service)
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
