package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logFileName       = "aleph.log"
	logFileMaxSizeMB  = 10
	logFileMaxBackups = 3
	logFileMaxAgeDays = 14
)

type Logger interface {
	Info(msg string, keyvals ...interface{})

	Warn(msg string, keyvals ...interface{})

	Error(msg string, keyvals ...interface{})

	Debug(msg string, keyvals ...interface{})
}

type Options struct {
	// Level is one of debug, info, warn or error. Anything else means info.
	Level string
	// Dir enables a rotating log file next to stderr output when non-empty.
	Dir string
}

func New(opts Options) Logger {
	handlerOpts := &slog.HandlerOptions{
		Level:     parseLevel(opts.Level), // minimum log level
		AddSource: true,                   // include file + line number
	}

	var out io.Writer = os.Stderr
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err == nil {
			out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
				Filename:   filepath.Join(opts.Dir, logFileName),
				MaxSize:    logFileMaxSizeMB,
				MaxBackups: logFileMaxBackups,
				MaxAge:     logFileMaxAgeDays,
				Compress:   true,
			})
		}
	}

	handler := slog.NewJSONHandler(out, handlerOpts)
	return slog.New(handler)
}

// Discard returns a logger that drops everything. Handy in tests that do not care about output.
func Discard() Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func parseLevel(level string) slog.Level {
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
