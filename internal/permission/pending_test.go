package permission

import (
	"context"
	"testing"
	"time"
)

func TestRequestBlocksUntilResolved(t *testing.T) {
	r := NewPendingRegistry()
	done := make(chan PermissionDecision, 1)

	go func() {
		done <- r.Request(context.Background(), ToolPermissionContext{ToolName: "Bash"})
	}()

	var id string
	for i := 0; i < 10000; i++ {
		if pending := r.List(); len(pending) == 1 {
			id = pending[0].ID
			break
		}
		time.Sleep(time.Microsecond)
	}
	if id == "" {
		t.Fatal("request never became visible via List")
	}

	if err := r.Resolve(id, PermissionDecision{Behavior: "allow"}); err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	select {
	case d := <-done:
		if d.Behavior != "allow" {
			t.Errorf("Behavior = %q, want allow", d.Behavior)
		}
	case <-time.After(time.Second):
		t.Fatal("Request never returned after Resolve")
	}

	if len(r.List()) != 0 {
		t.Error("resolved request should be removed from the pending list")
	}
}

func TestResolveUnknownIDErrors(t *testing.T) {
	r := NewPendingRegistry()
	if err := r.Resolve("nonexistent", PermissionDecision{Behavior: "allow"}); err == nil {
		t.Fatal("expected an error resolving an unknown request id")
	}
}

func TestContextCancellationResolvesDenyAborted(t *testing.T) {
	r := NewPendingRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan PermissionDecision, 1)
	go func() { done <- r.Request(ctx, ToolPermissionContext{ToolName: "Bash"}) }()

	for i := 0; i < 10000 && len(r.List()) == 0; i++ {
		time.Sleep(time.Microsecond)
	}
	cancel()

	select {
	case d := <-done:
		if d.Behavior != "deny" || d.Message != "aborted" {
			t.Errorf("decision = %+v, want deny/aborted", d)
		}
	case <-time.After(time.Second):
		t.Fatal("Request never returned after ctx cancellation")
	}
}

func TestClearForceDeniesEveryOutstandingRequest(t *testing.T) {
	r := NewPendingRegistry()
	done1 := make(chan PermissionDecision, 1)
	done2 := make(chan PermissionDecision, 1)

	go func() { done1 <- r.Request(context.Background(), ToolPermissionContext{ToolName: "Bash"}) }()
	go func() { done2 <- r.Request(context.Background(), ToolPermissionContext{ToolName: "Edit"}) }()

	for i := 0; i < 10000 && len(r.List()) < 2; i++ {
		time.Sleep(time.Microsecond)
	}
	r.Clear()

	for _, done := range []chan PermissionDecision{done1, done2} {
		select {
		case d := <-done:
			if d.Behavior != "deny" || d.Message != "cleared" {
				t.Errorf("decision = %+v, want deny/cleared", d)
			}
		case <-time.After(time.Second):
			t.Fatal("Request never returned after Clear")
		}
	}
}
