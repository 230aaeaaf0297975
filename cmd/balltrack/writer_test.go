package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"balltrack/internal/accuracy"
	"balltrack/internal/config"
	"balltrack/internal/report"
)

func TestNewWritersPrintOnly(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "127.0.0.1:4001")
	w, cleanup, err := newWriters(writerOptions{printOnly: true})
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	cleanup()
	if _, ok := w.(*report.JSONStdoutWriter); !ok {
		t.Fatalf("expected *report.JSONStdoutWriter, got %T", w)
	}
}

func TestNewWritersGreptimeFallback(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	w, cleanup, err := newWriters(writerOptions{})
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	cleanup()
	if _, ok := w.(*report.JSONStdoutWriter); !ok {
		t.Fatalf("expected *report.JSONStdoutWriter, got %T", w)
	}
}

func TestNewWritersLogFiles(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	dir := t.TempDir()
	jsonl := filepath.Join(dir, "accuracy.jsonl")
	raw := filepath.Join(dir, "accuracy.cbor")
	w, cleanup, err := newWriters(writerOptions{printOnly: true, logFile: jsonl, rawLog: raw})
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	mw, ok := w.(*report.MultiWriter)
	if !ok {
		t.Fatalf("expected *report.MultiWriter, got %T", w)
	}
	if n := len(mw.Writers()); n != 3 {
		t.Fatalf("expected 3 writers, got %d", n)
	}
	row := accuracy.Row{SessionID: "s", FrameNo: 3000, Matched: true, Timestamp: time.Now()}
	if err := w.Write(row); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	cleanup()
	for _, p := range []string{jsonl, raw} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat failed: %v", err)
		}
		if info.Size() == 0 {
			t.Fatalf("expected %s to be non-empty", p)
		}
	}
}

func TestNewWritersBadLogPath(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	_, _, err := newWriters(writerOptions{printOnly: true, logFile: filepath.Join(t.TempDir(), "missing", "a.jsonl")})
	if err == nil {
		t.Fatalf("expected error for unwritable log path")
	}
}

func TestLoadConfigMissingDefaultFile(t *testing.T) {
	t.Setenv("SERVER_HOST", "10.0.0.7")
	t.Setenv("SERVER_PORT", "4321")
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "none.yaml"), "schemas/session.cue", false, config.RoleClient)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Endpoint() != "10.0.0.7:4321" {
		t.Fatalf("endpoint = %s", cfg.Endpoint())
	}
	if cfg.FPS != config.Default().FPS {
		t.Fatalf("expected defaults, got fps %d", cfg.FPS)
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "none.yaml"), "schemas/session.cue", true, config.RoleServe)
	if err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestCommandTree(t *testing.T) {
	want := map[string]bool{"serve": false, "client": false, "replay": false, "dashboard": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("missing %s command", name)
		}
	}
	for _, flag := range []string{"print-only", "tui", "log-file", "raw-log", "zmq"} {
		if serveCmd.Flags().Lookup(flag) == nil {
			t.Fatalf("serve is missing --%s", flag)
		}
	}
	if clientCmd.Flags().Lookup("save-frames") == nil || clientCmd.Flags().Lookup("discover") == nil {
		t.Fatalf("client flags missing")
	}
}
