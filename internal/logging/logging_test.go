package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelWarn {
		t.Errorf("Expected default level %s, got %s", LevelWarn, cfg.Level)
	}
	if cfg.Format != FormatText {
		t.Errorf("Expected default format %s, got %s", FormatText, cfg.Format)
	}
	if cfg.Output != "stderr" {
		t.Errorf("Expected default output stderr, got %s", cfg.Output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		level    LogLevel
		expected slog.Level
	}{
		{"debug", LevelDebug, slog.LevelDebug},
		{"info", LevelInfo, slog.LevelInfo},
		{"warn", LevelWarn, slog.LevelWarn},
		{"warning alias", "WARNING", slog.LevelWarn},
		{"error", LevelError, slog.LevelError},
		{"unknown falls back to info", "chatty", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.level); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelDebug, Format: FormatJSON}, &buf)

	logger.WithScanID("abc").DebugProbe("probe finished", "10.0.0.1", 22, "status", "open")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", buf.String(), err)
	}
	if record["scan_id"] != "abc" {
		t.Errorf("Expected scan_id abc, got %v", record["scan_id"])
	}
	if record["target"] != "10.0.0.1" {
		t.Errorf("Expected target 10.0.0.1, got %v", record["target"])
	}
	if record["port"] != float64(22) {
		t.Errorf("Expected port 22, got %v", record["port"])
	}
	if record["status"] != "open" {
		t.Errorf("Expected status open, got %v", record["status"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelWarn, Format: FormatText}, &buf)

	logger.DebugProbe("hidden", "10.0.0.1", 80)
	logger.InfoScan("hidden too")
	logger.WarnResolve("lookup failed", "nope.invalid", errors.New("no such host"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected debug and info records to be filtered, got %q", out)
	}
	if !strings.Contains(out, "input=nope.invalid") {
		t.Errorf("Expected warn record with input field, got %q", out)
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelInfo}, &buf).WithComponent("api").WithTarget("example.com")

	logger.Info("hello")

	out := buf.String()
	if !strings.Contains(out, "component=api") || !strings.Contains(out, "target=example.com") {
		t.Errorf("Expected component and target fields, got %q", out)
	}
	if logger.Config().Level != LevelInfo {
		t.Errorf("Expected config to be carried through With helpers")
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "quickscope.log")

	logger, err := New(Config{Level: LevelInfo, Format: FormatText, Output: path})
	if err != nil {
		t.Fatalf("Expected file logger, got error: %v", err)
	}
	logger.ErrorScan("scan failed", errors.New("boom"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "error=boom") {
		t.Errorf("Expected error field in log file, got %q", string(data))
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Failed to stat log file: %v", err)
	}
	if info.Mode().Perm() != logFilePerm {
		t.Errorf("Expected file permissions %o, got %o", logFilePerm, info.Mode().Perm())
	}
}

func TestSetAndGetDefault(t *testing.T) {
	original := Default()
	defer SetDefault(original)

	var buf bytes.Buffer
	SetDefault(NewWithWriter(Config{Level: LevelDebug}, &buf))

	Debug("d")
	Info("i")
	Warn("w")
	Error("e")

	out := buf.String()
	for _, msg := range []string{"msg=d", "msg=i", "msg=w", "msg=e"} {
		if !strings.Contains(out, msg) {
			t.Errorf("Expected %q in default logger output %q", msg, out)
		}
	}
}
