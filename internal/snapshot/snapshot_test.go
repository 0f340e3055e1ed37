package snapshot

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCaptureAndReplayRestoresEditedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("before"), 0644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	r := New()
	if err := r.Capture(path, 2); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if err := os.WriteFile(path, []byte("after edit"), 0644); err != nil {
		t.Fatalf("simulate edit: %v", err)
	}

	if errs := r.Replay(2); len(errs) != 0 {
		t.Fatalf("Replay errors: %v", errs)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read after replay: %v", err)
	}
	if string(got) != "before" {
		t.Fatalf("content = %q, want %q", got, "before")
	}
}

func TestCaptureOfNewFileIsDeletedOnReplay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "new.txt")

	r := New()
	if err := r.Capture(path, 1); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if err := os.WriteFile(path, []byte("created by tool"), 0644); err != nil {
		t.Fatalf("simulate create: %v", err)
	}

	if errs := r.Replay(1); len(errs) != 0 {
		t.Fatalf("Replay errors: %v", errs)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file to be removed, stat err = %v", err)
	}
}

func TestReplayOnlyAffectsSnapshotsAtOrAfterCutoff(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keep.txt")
	if err := os.WriteFile(path, []byte("v0"), 0644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	r := New()
	if err := r.Capture(path, 0); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if err := os.WriteFile(path, []byte("v1 from turn 0"), 0644); err != nil {
		t.Fatalf("edit: %v", err)
	}

	// Rewinding to index 1 (after the turn-0 edit) must not touch the
	// file: the only capture is at index 0, strictly before the cutoff.
	if errs := r.Replay(1); len(errs) != 0 {
		t.Fatalf("Replay errors: %v", errs)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "v1 from turn 0" {
		t.Fatalf("content changed unexpectedly: %q", got)
	}
}

func TestSecondCaptureSameTurnIsIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dup.txt")
	if err := os.WriteFile(path, []byte("original"), 0644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	r := New()
	if err := r.Capture(path, 0); err != nil {
		t.Fatalf("first Capture: %v", err)
	}
	if err := os.WriteFile(path, []byte("first edit"), 0644); err != nil {
		t.Fatalf("edit: %v", err)
	}
	// A second tool call against the same file in the same turn must
	// not overwrite the recorded pre-edit state with the already-edited
	// content.
	if err := r.Capture(path, 0); err != nil {
		t.Fatalf("second Capture: %v", err)
	}
	if err := os.WriteFile(path, []byte("second edit"), 0644); err != nil {
		t.Fatalf("edit: %v", err)
	}

	if errs := r.Replay(0); len(errs) != 0 {
		t.Fatalf("Replay errors: %v", errs)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "original" {
		t.Fatalf("content = %q, want %q", got, "original")
	}
}

func TestReset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	os.WriteFile(path, []byte("v0"), 0644)

	r := New()
	r.Capture(path, 0)
	r.Reset()
	os.WriteFile(path, []byte("v1"), 0644)

	if errs := r.Replay(0); len(errs) != 0 {
		t.Fatalf("Replay errors: %v", errs)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "v1" {
		t.Fatalf("content = %q, want %q (Reset should have dropped the capture)", got, "v1")
	}
}

func TestCaptureEmptyPathIsNoop(t *testing.T) {
	r := New()
	if err := r.Capture("", 0); err != nil {
		t.Fatalf("Capture(\"\"): %v", err)
	}
	if errs := r.Replay(0); len(errs) != 0 {
		t.Fatalf("Replay errors: %v", errs)
	}
}
