package utils

import (
	"errors"
	"io"
	"log/slog"
	"os"
)

// Configure the default slog logger with a log level and an optional
// output file.
//
// Valid log levels are "none", "error", "warn", "info", "debug"; any
// other value returns an error. An empty logFile sends text logs to
// stderr — stderr rather than stdout, because in stream output mode
// stdout carries the encoded bitstream and must stay clean. A non-empty
// logFile switches to JSON logs written to that path.
//
// Returns the *os.File slog writes to (nil for stderr) so the caller can
// close it on the way out:
//
//	logFilePointer, err := utils.ConfigureDefaultLogger(level, path)
//	if logFilePointer != nil {
//		defer logFilePointer.Close()
//	}
func ConfigureDefaultLogger(logLevel string, logFile string) (*os.File, error) {
	if logLevel == "none" {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return nil, nil
	}

	level, err := parseLogLevel(logLevel)
	if err != nil {
		return nil, err
	}
	options := slog.HandlerOptions{Level: level}

	if logFile == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &options)))
		return nil, nil
	}

	logFilePointer, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(logFilePointer, &options)))
	return logFilePointer, nil
}

func parseLogLevel(logLevel string) (slog.Level, error) {
	switch logLevel {
	case "error":
		return slog.LevelError, nil
	case "warn":
		return slog.LevelWarn, nil
	case "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	default:
		return 0, errors.New("unexpected log level")
	}
}
