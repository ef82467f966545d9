// Package logging builds the process slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultLogFileName = "engine.log"

type Options struct {
	Format     string // "json" or "text"
	Level      string
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New returns the logger and installs it as the slog default. With Dir set,
// output is also written to a rotated file.
func New(opts Options) (*slog.Logger, error) {
	level := ParseLevel(opts.Level)
	var writer io.Writer = os.Stdout
	toFile := strings.TrimSpace(opts.Dir) != ""

	if toFile {
		if opts.MaxSizeMB <= 0 || opts.MaxBackups <= 0 || opts.MaxAgeDays <= 0 {
			return nil, fmt.Errorf("invalid log rotation config: size=%d backups=%d age_days=%d",
				opts.MaxSizeMB, opts.MaxBackups, opts.MaxAgeDays)
		}
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir failed: %w", err)
		}
		writer = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, defaultLogFileName),
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		})
	}

	logger := slog.New(NewHandler(writer, opts.Format, level, toFile))
	slog.SetDefault(logger)
	return logger, nil
}

// NewHandler picks the tint console handler for "text" and JSON otherwise.
func NewHandler(w io.Writer, format string, level slog.Level, noColor bool) slog.Handler {
	if strings.EqualFold(format, "text") {
		return tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
			NoColor:    noColor,
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

func ParseLevel(level string) slog.Level {
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
