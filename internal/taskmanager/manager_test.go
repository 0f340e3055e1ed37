package taskmanager

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestBackgroundCurrentTaskInvokesMostRecentHandler(t *testing.T) {
	m := New(nil)
	var fired []string
	m.RegisterForeground("first", func() { fired = append(fired, "first") })
	m.RegisterForeground("second", func() { fired = append(fired, "second") })

	id, ok := m.BackgroundCurrentTask()
	if !ok || id != "second" {
		t.Fatalf("expected second (most recent) to background, got %q ok=%v", id, ok)
	}
	if len(fired) != 1 || fired[0] != "second" {
		t.Fatalf("expected only second's handler to fire, got %v", fired)
	}
}

func TestBackgroundCurrentTaskWithNoForegroundReturnsFalse(t *testing.T) {
	m := New(nil)
	if _, ok := m.BackgroundCurrentTask(); ok {
		t.Fatal("expected false with no foreground tasks registered")
	}
}

// S4 — a long-running bash command is backgrounded and later queried.
func TestStartShellAndGetOutputBlocking(t *testing.T) {
	m := New(nil)
	id, err := m.StartShell(context.Background(), "echo hello; sleep 0.1; echo world", 5*time.Second)
	if err != nil {
		t.Fatalf("StartShell: %v", err)
	}

	snap, reason := m.GetOutputBlocking(context.Background(), id, "", 3*time.Second)
	if reason != "" {
		t.Fatalf("unexpected block reason: %s", reason)
	}
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", snap.Status)
	}
	if !strings.Contains(snap.Stdout, "hello") || !strings.Contains(snap.Stdout, "world") {
		t.Fatalf("unexpected stdout: %q", snap.Stdout)
	}
}

func TestStopTaskKillsRunningShell(t *testing.T) {
	m := New(nil)
	id, err := m.StartShell(context.Background(), "sleep 30", 60*time.Second)
	if err != nil {
		t.Fatalf("StartShell: %v", err)
	}
	// Let it actually start before killing.
	time.Sleep(50 * time.Millisecond)

	if err := m.StopTask(id); err != nil {
		t.Fatalf("StopTask: %v", err)
	}
	snap, _ := m.GetOutput(id, "")
	if snap.Status != StatusKilled {
		t.Fatalf("expected killed, got %s", snap.Status)
	}
}

func TestGetOutputFiltersByRegex(t *testing.T) {
	m := New(nil)
	id, err := m.StartShell(context.Background(), "echo keep-this; echo drop-that", 5*time.Second)
	if err != nil {
		t.Fatalf("StartShell: %v", err)
	}
	m.GetOutputBlocking(context.Background(), id, "", 3*time.Second)

	snap, ok := m.GetOutput(id, "keep")
	if !ok {
		t.Fatal("expected task found")
	}
	if strings.Contains(snap.Stdout, "drop-that") {
		t.Fatalf("expected filtered stdout to exclude non-matching lines, got %q", snap.Stdout)
	}
	if !strings.Contains(snap.Stdout, "keep-this") {
		t.Fatalf("expected filtered stdout to include matching line, got %q", snap.Stdout)
	}
}

func TestAdoptSubAgentAndFinish(t *testing.T) {
	m := New(nil)
	id := m.AdoptSubAgent("sub-1")
	m.FinishSubAgent(id, "final answer", false)

	snap, ok := m.GetOutput(id, "")
	if !ok {
		t.Fatal("expected task found")
	}
	if snap.Status != StatusCompleted || snap.Stdout != "final answer" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestGetAllTasksReturnsEverything(t *testing.T) {
	m := New(nil)
	id1, _ := m.StartShell(context.Background(), "echo a", 5*time.Second)
	id2 := m.AdoptSubAgent("sub-2")

	all := m.GetAllTasks()
	if len(all) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(all))
	}
	seen := map[string]bool{}
	for _, s := range all {
		seen[s.ID] = true
	}
	if !seen[id1] || !seen[id2] {
		t.Fatalf("expected both ids present, got %+v", all)
	}
}
