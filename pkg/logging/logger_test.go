// Copyright (C) 2025 Flowmesh Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevelToSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(99), slog.LevelInfo}, // unrecognized levels fall back to Info
	}
	for _, tt := range tests {
		if got := tt.level.toSlogLevel(); got != tt.want {
			t.Errorf("Level(%d).toSlogLevel() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestDefaultLogsInfoAndAboveWithServiceAttr(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	orig := os.Stderr
	os.Stderr = w
	defer func() { os.Stderr = orig }()

	logger := Default()
	logger.Debug("should be filtered", "x", 1)
	logger.Info("run starting", "run_id", "r-1")

	w.Close()
	var buf bytes.Buffer
	buf.ReadFrom(r)
	out := buf.String()

	if strings.Contains(out, "should be filtered") {
		t.Fatalf("expected Debug message to be filtered at Info level, got: %s", out)
	}
	if !strings.Contains(out, "run starting") || !strings.Contains(out, "run_id=r-1") {
		t.Fatalf("expected Info message with run_id attr, got: %s", out)
	}
	if !strings.Contains(out, "service=topology") {
		t.Fatalf("expected service=topology attribute, got: %s", out)
	}
}

func TestNewWithoutServiceOmitsServiceAttr(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	orig := os.Stderr
	os.Stderr = w
	defer func() { os.Stderr = orig }()

	logger := New(Config{Level: LevelInfo})
	logger.Info("node completed", "node", "fetch")

	w.Close()
	var buf bytes.Buffer
	buf.ReadFrom(r)
	out := buf.String()

	if strings.Contains(out, "service=") {
		t.Fatalf("expected no service attribute, got: %s", out)
	}
}

func TestWithAddsAttributesWithoutMutatingParent(t *testing.T) {
	var buf bytes.Buffer
	parent := &Logger{slog: slog.New(slog.NewTextHandler(&buf, nil))}
	child := parent.With("node", "attachments")

	parent.Info("parent event")
	child.Info("child event")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %v", len(lines), lines)
	}
	if strings.Contains(lines[0], "node=attachments") {
		t.Fatalf("expected parent log to omit child's attrs, got: %s", lines[0])
	}
	if !strings.Contains(lines[1], "node=attachments") {
		t.Fatalf("expected child log to include node attr, got: %s", lines[1])
	}
}
