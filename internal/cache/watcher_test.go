package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestWatcher_ExternalWriteMarksUnsynced(t *testing.T) {
	s := testStore(t)

	w, err := NewWatcher(s)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer w.Stop()

	if !w.IsRunning() {
		t.Error("IsRunning() = false after Start()")
	}

	// The store's own write must not be reported
	if err := s.PutReport(testReport("own", "u1"), true); err != nil {
		t.Fatalf("PutReport() failed: %v", err)
	}

	data, _ := json.Marshal(testReport("ext", "u1"))
	if err := os.WriteFile(filepath.Join(s.Reports.Dir(), "ext.json"), data, 0644); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if ev.ID == "own" {
				t.Fatalf("own write reported as external: %+v", ev)
			}
			if ev.ID != "ext" || ev.Op != OpWrite {
				continue
			}
			if !slices.Contains(s.UnsyncedIDs(), "ext") {
				t.Errorf("UnsyncedIDs() = %v, want ext", s.UnsyncedIDs())
			}
			if slices.Contains(s.UnsyncedIDs(), "own") {
				t.Errorf("own synced report became unsynced")
			}
			ids, _ := s.Reports.IDs()
			if !slices.Contains(ids, "ext") {
				t.Errorf("external record not adopted into index: %v", ids)
			}
			return
		case err := <-w.Errors():
			t.Fatalf("watcher error: %v", err)
		case <-timeout:
			t.Fatal("timed out waiting for external write event")
		}
	}
}

func TestWatcher_StartTwice(t *testing.T) {
	s := testStore(t)
	w, err := NewWatcher(s)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := w.Start(); err == nil {
		t.Error("second Start() should fail")
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() failed: %v", err)
	}
	if w.IsRunning() {
		t.Error("IsRunning() = true after Stop()")
	}
}

func TestEventOp_String(t *testing.T) {
	if OpWrite.String() != "write" || OpRemove.String() != "remove" || EventOp(9).String() != "unknown" {
		t.Error("unexpected EventOp strings")
	}
}
