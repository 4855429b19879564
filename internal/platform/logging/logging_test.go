package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewWritesJSONWithServiceField(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Format: "json", Service: "intelligence", Output: &buf})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	logger.Info("server listening")
	logger.Debug("hidden")
	_ = logger.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line at info level, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["msg"] != "server listening" {
		t.Fatalf("msg = %v", entry["msg"])
	}
	if entry["service"] != "intelligence" {
		t.Fatalf("service = %v", entry["service"])
	}
	if entry["level"] != "info" {
		t.Fatalf("level = %v", entry["level"])
	}
}

func TestNewConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "debug", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Debug("loading model")
	_ = logger.Sync()

	if !strings.Contains(buf.String(), "DEBUG") || !strings.Contains(buf.String(), "loading model") {
		t.Fatalf("unexpected console output %q", buf.String())
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{" WARN ", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}
	for _, tc := range tests {
		got, err := ParseLevel(tc.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("parse %q: expected %v, got %v", tc.in, tc.want, got)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
