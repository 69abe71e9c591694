package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"heatnet/pkg/config"
	"heatnet/pkg/logger"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.AuditConfig
		want    string
		wantErr bool
	}{
		{"disabled", config.AuditConfig{Enabled: false, Output: OutputFile}, "noop", false},
		{"log", config.AuditConfig{Enabled: true, Output: OutputLog}, "slog", false},
		{"file", config.AuditConfig{Enabled: true, Output: OutputFile, FilePath: filepath.Join(t.TempDir(), "a.jsonl")}, "file", false},
		{"file without path", config.AuditConfig{Enabled: true, Output: OutputFile}, "", true},
		{"unknown", config.AuditConfig{Enabled: true, Output: "kafka"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer l.Close()

			var got string
			switch l.(type) {
			case NoopLogger:
				got = "noop"
			case *SlogLogger:
				got = "slog"
			case *FileLogger:
				got = "file"
			}
			if got != tt.want {
				t.Errorf("New() = %T, want %s", l, tt.want)
			}
		})
	}
}

func TestSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, logger.Config{Level: "info", Format: "json"})
	t.Cleanup(func() { logger.Init("error") })

	l := NewSlogLogger(nil)
	entry := NewEntry().
		Method("/heatnet.v1.HeatingService/BuildNetwork").
		Action(ActionBuild).
		Outcome(OutcomeFailure).
		Error("DISCONNECTED_NETWORK", "2 components").
		Build()

	if err := l.Log(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log line is not json: %v (%q)", err, buf.String())
	}
	if rec["level"] != "WARN" {
		t.Errorf("failures are logged at WARN, got %v", rec["level"])
	}
	if rec["action"] != "BUILD" || rec["error_code"] != "DISCONNECTED_NETWORK" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "audit.jsonl")
	l, err := NewFileLogger(path)
	if err != nil {
		t.Fatal(err)
	}

	for _, a := range []Action{ActionImport, ActionSolve} {
		entry := NewEntry().Action(a).Outcome(OutcomeSuccess).Build()
		if err := l.Log(context.Background(), entry); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var actions []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		actions = append(actions, string(e.Action))
	}
	if got := strings.Join(actions, ","); got != "IMPORT,SOLVE" {
		t.Errorf("unexpected actions %s", got)
	}
}

func TestMemoryLogger_Query(t *testing.T) {
	l := NewMemoryLogger()
	ctx := context.Background()

	_ = l.Log(ctx, NewEntry().Action(ActionSolve).Outcome(OutcomeSuccess).Resource("run", "r1").Build())
	_ = l.Log(ctx, NewEntry().Action(ActionSolve).Outcome(OutcomeFailure).Resource("run", "r2").Build())
	_ = l.Log(ctx, NewEntry().Action(ActionRead).Outcome(OutcomeSuccess).Resource("run", "r1").Build())

	if got := l.Query(QueryFilter{Action: ActionSolve}); len(got) != 2 {
		t.Errorf("expected 2 solve entries, got %d", len(got))
	}
	if got := l.Query(QueryFilter{ResourceID: "r1", Limit: 1}); len(got) != 1 || got[0].Action != ActionSolve {
		t.Errorf("limit must keep the first match, got %v", got)
	}
	if got := l.Query(QueryFilter{Outcome: OutcomeDenied}); got != nil {
		t.Errorf("expected no entries, got %d", len(got))
	}
}

func TestNoopLogger(t *testing.T) {
	var l Logger = NoopLogger{}
	if err := l.Log(context.Background(), NewEntry().Build()); err != nil {
		t.Error(err)
	}
	if err := l.Close(); err != nil {
		t.Error(err)
	}
}
