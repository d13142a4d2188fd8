// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

// Package logging configures the process slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
)

// Setup builds a logger writing to w in text (tint) or json format and installs it as default.
// If logOutputDir is non-empty, logs are also written as JSON to a timestamped file there.
// The returned close function releases the log file.
func Setup(w io.Writer, levelStr, format, logOutputDir string) (*slog.Logger, func() error, error) {
	level := ParseLevel(levelStr)

	var consoleHandler slog.Handler
	if format == "json" {
		consoleHandler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		consoleHandler = tint.NewHandler(w, &tint.Options{Level: level, TimeFormat: time.TimeOnly})
	}

	closeFn := func() error { return nil }
	handler := consoleHandler

	if logOutputDir != "" {
		logDir := os.ExpandEnv(logOutputDir)
		if err := os.MkdirAll(logDir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("failed to create log output directory: %w", err)
		}

		logFilePath := filepath.Join(logDir, fmt.Sprintf("pakmgr_%s.log", time.Now().Format("20060102_150405")))
		logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create log file: %w", err)
		}

		fileHandler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level})
		handler = slogmulti.Fanout(consoleHandler, fileHandler)
		closeFn = logFile.Close
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger, closeFn, nil
}

// ParseLevel converts a string log level to slog.Level. Unknown values map to info.
func ParseLevel(levelStr string) slog.Level {
	switch levelStr {
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
