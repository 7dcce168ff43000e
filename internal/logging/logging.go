// Package logging builds the process logger: JSON records, written to
// stdout and a size-rotated file.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mesh-gateway/meshgw/internal/config"
)

// New builds the root logger from config. The returned closer flushes the
// rotated file; callers must Close it on shutdown.
func New(cfg config.LoggingConfig) (*slog.Logger, io.Closer) {
	rotated := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}

	handler := slog.NewJSONHandler(io.MultiWriter(os.Stdout, rotated), &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})
	return slog.New(handler), rotated
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
