// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
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
		{Level(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Level: LevelWarn, Exporter: exporter})

	logger.Debug("too quiet")
	logger.Info("still too quiet")
	logger.Warn("heard")
	logger.Error("also heard")

	entries := exporter.Entries()
	if len(entries) != 2 {
		t.Fatalf("exported %d entries, want 2", len(entries))
	}
	if entries[0].Level != "WARN" || entries[1].Level != "ERROR" {
		t.Errorf("levels = %q, %q", entries[0].Level, entries[1].Level)
	}
}

func TestLogger_ExporterReceivesFields(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Level: LevelInfo, Service: "assistant", Exporter: exporter})

	logger.Info("turn complete", "session_id", "s-1", "hops", 4)

	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("exported %d entries, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Message != "turn complete" || entry.Service != "assistant" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Fields["session_id"] != "s-1" {
		t.Errorf("fields = %v", entry.Fields)
	}
	if time.Since(entry.Timestamp) > time.Minute {
		t.Errorf("stale timestamp: %v", entry.Timestamp)
	}
}

func TestLogger_FileOutputIsJSON(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Level: LevelInfo, LogDir: dir, Service: "testsvc"})

	logger.Info("written to file", "key", "value")
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "testsvc_*.log"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("log file matches = %v (err=%v)", matches, err)
	}

	f, err := os.Open(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("log file is empty")
	}
	var record map[string]any
	if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if record["msg"] != "written to file" || record["key"] != "value" {
		t.Errorf("record = %v", record)
	}
}

func TestLogger_UnwritableDirDegrades(t *testing.T) {
	// A regular file where the directory should be makes MkdirAll fail.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0640); err != nil {
		t.Fatal(err)
	}

	logger := New(Config{Level: LevelInfo, LogDir: blocker})
	logger.Info("still works")
	if err := logger.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestLogger_With(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Level: LevelInfo, Exporter: exporter})

	child := logger.With("component", "graph")
	child.Info("hello")

	// The derived logger keeps the exporter and level.
	if len(exporter.Entries()) != 1 {
		t.Errorf("exported %d entries, want 1", len(exporter.Entries()))
	}
	child.Debug("filtered")
	if len(exporter.Entries()) != 1 {
		t.Error("derived logger lost the level filter")
	}
}

func TestBufferedExporter_CloseDrops(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Level: LevelInfo, Exporter: exporter})

	logger.Info("one")
	if err := exporter.Close(); err != nil {
		t.Fatal(err)
	}
	if n := len(exporter.Entries()); n != 0 {
		t.Errorf("entries after close = %d", n)
	}
}

func TestWriterExporter(t *testing.T) {
	var sb strings.Builder
	logger := New(Config{Level: LevelInfo, Exporter: NewWriterExporter(&sb)})

	logger.Info("shipped", "n", 1)

	if !strings.Contains(sb.String(), "INFO shipped") {
		t.Errorf("writer output = %q", sb.String())
	}
}

func TestArgsToMap(t *testing.T) {
	got := argsToMap([]any{"a", 1, "b", "two", 3, true, "dangling"})
	if got["a"] != 1 || got["b"] != "two" || got["3"] != true {
		t.Errorf("argsToMap = %v", got)
	}
	if _, ok := got["dangling"]; ok {
		t.Error("dangling key must be dropped")
	}
	if argsToMap(nil) != nil {
		t.Error("empty args must map to nil")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory in this environment")
	}
	if got := expandPath("~/logs"); got != filepath.Join(home, "logs") {
		t.Errorf("expandPath = %q", got)
	}
	if got := expandPath("/var/log"); got != "/var/log" {
		t.Errorf("expandPath mangled an absolute path: %q", got)
	}
}
