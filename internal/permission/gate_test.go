package permission

import (
	"context"
	"encoding/json"
	"testing"
)

func TestBypassPermissionsAlwaysAllows(t *testing.T) {
	g := New(ModeBypassPermissions, nil)
	d := g.Check(context.Background(), "s1", "Bash", nil)
	if !d.Allow {
		t.Fatal("expected allow under bypassPermissions")
	}
}

func TestSafeToolsAlwaysAllowed(t *testing.T) {
	g := New(ModeDefault, func(ctx context.Context, tpc ToolPermissionContext) PermissionDecision {
		t.Fatal("safe tools must not reach the host callback")
		return PermissionDecision{}
	})
	for _, name := range []string{"Read", "Grep", "Glob", "LS", "TaskOutput"} {
		d := g.Check(context.Background(), "s1", name, nil)
		if !d.Allow {
			t.Fatalf("expected %s to be auto-allowed", name)
		}
	}
}

func TestAllowedToolsWhitelistShortCircuits(t *testing.T) {
	g := New(ModeDefault, func(ctx context.Context, tpc ToolPermissionContext) PermissionDecision {
		return PermissionDecision{Behavior: "deny", Message: "should not be reached"}
	})
	g.SetAllowedTools([]string{"Bash"})
	d := g.Check(context.Background(), "s1", "Bash", nil)
	if !d.Allow {
		t.Fatal("expected allow via allowed-tools whitelist")
	}
}

func TestAcceptEditsAutoAllowsFileEdits(t *testing.T) {
	g := New(ModeAcceptEdits, nil)
	d := g.Check(context.Background(), "s1", "Edit", nil)
	if !d.Allow {
		t.Fatal("expected Edit to be auto-allowed under acceptEdits")
	}
	// Non-edit tools still fall through to the (absent) callback -> deny.
	d2 := g.Check(context.Background(), "s1", "Bash", nil)
	if d2.Allow {
		t.Fatal("expected Bash to still require a handler under acceptEdits")
	}
}

func TestPlanModeDeniesOutsidePlanFileMutation(t *testing.T) {
	g := New(ModeDefault, nil)
	g.EnterPlanMode("/tmp/proj")
	g.SetPlanFileChecker(func(toolName string, args json.RawMessage) bool { return toolName == "Write" })
	d := g.Check(context.Background(), "s1", "Write", nil)
	if d.Allow {
		t.Fatal("expected plan mode to deny writes outside the plan file")
	}
}

// S2 — Single-tool turn: host allows via canUseTool.
func TestCanUseToolAllow(t *testing.T) {
	g := New(ModeDefault, func(ctx context.Context, tpc ToolPermissionContext) PermissionDecision {
		return PermissionDecision{Behavior: "allow"}
	})
	d := g.Check(context.Background(), "s1", "Bash", []byte(`{"command":"echo ok"}`))
	if !d.Allow {
		t.Fatal("expected allow from canUseTool")
	}
}

// S3 — Permission deny: host denies with a message; no subprocess spawned
// is an engine-level guarantee, but the gate's contract is that the
// message becomes the tool's error content.
func TestCanUseToolDeny(t *testing.T) {
	g := New(ModeDefault, func(ctx context.Context, tpc ToolPermissionContext) PermissionDecision {
		return PermissionDecision{Behavior: "deny", Message: "no shell"}
	})
	d := g.Check(context.Background(), "s1", "Bash", []byte(`{"command":"echo ok"}`))
	if d.Allow || d.Message != "no shell" {
		t.Fatalf("expected deny with message %q, got %+v", "no shell", d)
	}
}

func TestNoHandlerDeniesWithReason(t *testing.T) {
	g := New(ModeDefault, nil)
	d := g.Check(context.Background(), "s1", "Bash", nil)
	if d.Allow || d.Message != "no handler" {
		t.Fatalf("expected deny %q, got %+v", "no handler", d)
	}
}

func TestPlanModeExitRestoresPriorMode(t *testing.T) {
	approved := true
	g := New(ModeDefault, func(ctx context.Context, tpc ToolPermissionContext) PermissionDecision {
		if approved {
			return PermissionDecision{Behavior: "allow"}
		}
		return PermissionDecision{Behavior: "deny", Message: "rejected"}
	})
	g.EnterPlanMode("/tmp/proj")
	if g.Mode() != ModePlan {
		t.Fatal("expected plan mode after EnterPlanMode")
	}
	ed := g.ConfirmExit(context.Background(), "s1", "do the thing")
	if !ed.Approved || g.Mode() != ModeDefault {
		t.Fatalf("expected approved exit restoring default mode, got %+v mode=%v", ed, g.Mode())
	}
}
