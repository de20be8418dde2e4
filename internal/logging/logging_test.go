package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_WritesFileAndConsole(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", DefaultFile)
	var console bytes.Buffer

	log, closeFn, err := New(Options{File: file, Console: &console})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Debugw("hidden on console", "k", 1)
	log.Infow("source fetched", "source", "stats", "attempts", 2)
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if strings.Contains(console.String(), "hidden on console") {
		t.Fatalf("debug entry leaked to console without verbose: %q", console.String())
	}
	if !strings.Contains(console.String(), "source fetched") {
		t.Fatalf("console missing info entry: %q", console.String())
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 file entries, got %d: %q", len(lines), raw)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil {
		t.Fatalf("file entry is not JSON: %v", err)
	}
	if entry["msg"] != "source fetched" || entry["source"] != "stats" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNew_VerboseJSONConsole(t *testing.T) {
	var console bytes.Buffer
	log, closeFn, err := New(Options{Format: "JSON", Verbose: true, Console: &console})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Debug("details")
	_ = closeFn()

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(console.Bytes()), &entry); err != nil {
		t.Fatalf("console entry is not JSON: %v (%q)", err, console.String())
	}
	if entry["level"] != "debug" {
		t.Fatalf("level = %v, want debug", entry["level"])
	}
}

func TestNew_RejectsUnknownFormat(t *testing.T) {
	if _, _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestNew_QuietWithoutFileIsNop(t *testing.T) {
	log, closeFn, err := New(Options{Quiet: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("nothing")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
