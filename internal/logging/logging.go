// Package logging sets up the daemon's structured logger, grounded
// verbatim on the teacher's internal/logger/logger.go Init(level, logFile)
// pattern (renamed here to avoid collision with this repo's own eventlog
// package, which owns JSONL record parsing, not logging).
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Log is the process-wide logger set by Init.
var Log *slog.Logger

// Init configures the global logger: a slog.TextHandler at level, writing
// to stdout and, if logFile is non-empty, also appending to that file.
func Init(level string, logFile string) error {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var writers []io.Writer
	writers = append(writers, os.Stdout)

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		writers = append(writers, f)
	}

	multiWriter := io.MultiWriter(writers...)

	handler := slog.NewTextHandler(multiWriter, &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String("time", a.Value.Time().Format("15:04:05"))
			}
			return a
		},
	})

	Log = slog.New(handler)
	slog.SetDefault(Log)

	return nil
}

// Debug logs at debug level on the global logger.
func Debug(msg string, args ...any) { Log.Debug(msg, args...) }

// Info logs at info level on the global logger.
func Info(msg string, args ...any) { Log.Info(msg, args...) }

// Warn logs at warn level on the global logger.
func Warn(msg string, args ...any) { Log.Warn(msg, args...) }

// Error logs at error level on the global logger.
func Error(msg string, args ...any) { Log.Error(msg, args...) }
