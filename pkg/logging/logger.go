// Copyright (C) 2025 Flowmesh Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging is the structured logger shared by every topology engine
// component: a thin log/slog wrapper that attaches a service name and lets
// callers derive request/run-scoped children via With.
//
//	logger := logging.Default()
//	logger.Info("run starting", "run_id", runID, "nodes", len(dag.Nodes))
//	runLogger := logger.With("run_id", runID)
//	runLogger.Warn("node errored", "node", name, "error", err)
package logging

import (
	"log/slog"
	"os"
)

// Level is a log severity, ordered Debug < Info < Warn < Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config configures a Logger. A zero-value Config logs Debug+ to stderr with
// no service attribute.
type Config struct {
	// Level filters out messages below it. The zero value is LevelDebug;
	// Default() uses LevelInfo.
	Level Level

	// Service is attached to every log entry as the "service" attribute,
	// e.g. "scheduler", "runner", "eventbus".
	Service string
}

// Logger wraps slog.Logger with the engine's Level type and a fixed set of
// methods the scheduler and node runner call directly (no level filtering
// decisions outside of Config).
type Logger struct {
	slog *slog.Logger
}

// New builds a Logger that writes text-formatted records to stderr.
func New(config Config) *Logger {
	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	}
	return &Logger{slog: slog.New(handler)}
}

// Default returns a Logger at Info level with service "topology".
func Default() *Logger {
	return New(Config{Level: LevelInfo, Service: "topology"})
}

// Debug logs a development-troubleshooting message.
func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }

// Info logs a normal operational event.
func (l *Logger) Info(msg string, args ...any) { l.slog.Info(msg, args...) }

// Warn logs a recoverable problem.
func (l *Logger) Warn(msg string, args ...any) { l.slog.Warn(msg, args...) }

// Error logs an operation failure that does not stop the engine.
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a child Logger carrying args on every subsequent call,
// without mutating the receiver.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}
