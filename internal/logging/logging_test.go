package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "scout.log")

	sink, err := New(Options{File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	sink.Logger("sync").Printf("WARNING: Failed to push report %s: %v", "r1", "offline")
	sink.Logger("ledger").Println("hello")

	if err := sink.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "[sync] ") || !strings.Contains(out, "Failed to push report r1: offline") {
		t.Errorf("missing sync line in %q", out)
	}
	if !strings.Contains(out, "[ledger] ") {
		t.Errorf("missing ledger line in %q", out)
	}
}

func TestNew_Defaults(t *testing.T) {
	sink, err := New(Options{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if sink.Writer() != os.Stderr {
		t.Error("empty Options should log to stderr")
	}
	if err := sink.Close(); err != nil {
		t.Errorf("Close() on stderr sink: %v", err)
	}

	quiet, err := New(Options{Quiet: true, File: "ignored.log"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if quiet.Writer() != io.Discard {
		t.Error("Quiet should discard output")
	}
}
