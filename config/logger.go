package config

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a JSON slog.Logger writing to out and, when a log file
// is configured, to a rotating file as well. The returned closer releases
// the file; it is a no-op without one.
func NewLogger(cfg *Config, out io.Writer) (*slog.Logger, io.Closer) {
	var closer io.Closer = nopCloser{}
	writer := out

	if cfg.Logging.File != "" {
		fileLogger := &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    cfg.Logging.MaxSizeMB, // Megabytes
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAgeDays, // Days
			Compress:   cfg.Logging.Compress,
		}
		closer = fileLogger
		writer = io.MultiWriter(out, fileLogger)
	}

	opts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.Logging.Level),
	}
	return slog.New(slog.NewJSONHandler(writer, opts)), closer
}

// ParseLevel maps a configured level name to slog; unknown names are info.
func ParseLevel(level string) slog.Level {
	switch level {
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

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
