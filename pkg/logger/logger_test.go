package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"heatnet/pkg/config"
)

func TestInit(t *testing.T) {
	levels := []string{"debug", "info", "warn", "error", "unknown"}
	for _, level := range levels {
		Init(level)
		if Log == nil {
			t.Errorf("Init(%s) should set Log", level)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%s) = %v, want %v", in, got, want)
		}
	}
}

func TestInitWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, Config{Level: "info", Format: "json"})

	WithComponent("solver").Info("solved", "snapshots", 3)
	Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if entry["component"] != "solver" {
		t.Errorf("expected component=solver, got %v", entry["component"])
	}
	if entry["snapshots"] != float64(3) {
		t.Errorf("expected snapshots=3, got %v", entry["snapshots"])
	}
}

func TestInitWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, Config{Level: "debug", Format: "text"})

	WithRun("run-1").Debug("stored")
	WithNetwork("abc").Warn("cache miss")
	WithRequestID("req-9").Error("failed")

	out := buf.String()
	for _, want := range []string{"run_id=run-1", "network_hash=abc", "request_id=req-9"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q does not contain %s", out, want)
		}
	}
}

func TestInitWithConfig_FileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "test.log")

	InitWithConfig(Config{
		Level:    "info",
		Format:   "json",
		Output:   "file",
		FilePath: logPath,
	})

	if Log == nil {
		t.Fatal("Log should not be nil")
	}
	Log.Info("test message")
}

func TestFromConfig(t *testing.T) {
	c := FromConfig(config.LogConfig{Level: "warn", Format: "text", Output: "stderr", MaxSize: 5, Compress: true})
	if c.Level != "warn" || c.Format != "text" || c.Output != "stderr" || c.MaxSize != 5 || !c.Compress {
		t.Errorf("unexpected config %+v", c)
	}
}

func TestLoggingFunctions(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, Config{Level: "debug", Format: "text"})

	Debug("debug message", "key", "value")
	Info("info message", "key", "value")
	Warn("warn message", "key", "value")
	Error("error message", "key", "value")

	if got := strings.Count(buf.String(), "key=value"); got != 4 {
		t.Errorf("expected 4 entries, got %d", got)
	}
}
