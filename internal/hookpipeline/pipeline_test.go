package hookpipeline

import (
	"context"
	"testing"
)

// S5 — UserPromptSubmit injection: exit 0 with stdout appended as context.
func TestUserPromptSubmitInjectsContextOnExit0(t *testing.T) {
	p := New([]Config{
		{Event: UserPromptSubmit, Command: []string{"/bin/sh", "-c", "echo -n 'CONTEXT: remember X'"}},
	}, t.TempDir(), "/tmp/transcript.json")

	out := p.Run(context.Background(), UserPromptSubmit, Input{UserPrompt: "hi"})
	if out.Kind != OutcomeSuccess || out.StdoutForContext != "CONTEXT: remember X" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

// S6 — PreToolUse blocking: exit 2 with stderr blocks the tool.
func TestPreToolUseBlocksOnExit2(t *testing.T) {
	p := New([]Config{
		{Event: PreToolUse, Matcher: "Bash", Command: []string{"/bin/sh", "-c", "echo -n blocked 1>&2; exit 2"}},
	}, t.TempDir(), "/tmp/transcript.json")

	out := p.Run(context.Background(), PreToolUse, Input{ToolName: "Bash", ToolInput: []byte(`{"command":"rm -rf /"}`)})
	if out.Kind != OutcomeBlocked || out.StderrForModel != "blocked" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestPreToolUseMatcherGlobFiltersByToolName(t *testing.T) {
	p := New([]Config{
		{Event: PreToolUse, Matcher: "Edit", Command: []string{"/bin/sh", "-c", "exit 2"}},
	}, t.TempDir(), "/tmp/transcript.json")

	out := p.Run(context.Background(), PreToolUse, Input{ToolName: "Bash"})
	if out.Kind != OutcomeSuccess {
		t.Fatalf("expected non-matching tool to skip the hook, got %+v", out)
	}
}

func TestNonBlockingExitCodeIsWarningAndChainContinues(t *testing.T) {
	p := New([]Config{
		{Event: PostToolUse, Command: []string{"/bin/sh", "-c", "echo -n warn 1>&2; exit 7"}},
		{Event: PostToolUse, Command: []string{"/bin/sh", "-c", "exit 0"}},
	}, t.TempDir(), "/tmp/transcript.json")

	out := p.Run(context.Background(), PostToolUse, Input{ToolName: "Bash"})
	if out.Kind != OutcomeSuccess || len(out.Warnings) != 1 || out.Warnings[0] != "warn" {
		t.Fatalf("expected success with one warning, got %+v", out)
	}
}

func TestJSONOutputOverridesExitCodeSemantics(t *testing.T) {
	p := New([]Config{
		{Event: PreToolUse, Command: []string{"/bin/sh", "-c", `echo '{"hookSpecificOutput":{"permissionDecision":"deny","permissionDecisionReason":"nope"}}'; exit 0`}},
	}, t.TempDir(), "/tmp/transcript.json")

	out := p.Run(context.Background(), PreToolUse, Input{ToolName: "Bash"})
	if out.Kind != OutcomeBlocked || out.PermissionDecisionReason != "nope" {
		t.Fatalf("expected JSON output to override exit 0, got %+v", out)
	}
}

func TestMixedOutputToleratesLeadingLogLines(t *testing.T) {
	_, ok := extractJSON("some log line\nanother line\n{\"continue\":false,\"stopReason\":\"x\"}\ntrailing\n")
	if !ok {
		t.Fatal("expected to extract balanced JSON object from mixed stdout")
	}
}

func TestMalformedJSONFallsBackToExitCode(t *testing.T) {
	_, ok := extractJSON("{not valid json")
	if ok {
		t.Fatal("expected extraction to fail gracefully on malformed JSON")
	}
}

func TestHookTimeoutIsNonBlockingWarning(t *testing.T) {
	p := New([]Config{
		{Event: Stop, Command: []string{"/bin/sh", "-c", "sleep 2"}, Timeout: 1},
	}, t.TempDir(), "/tmp/transcript.json")
	// The hook's 1s timeout fires before its 2s sleep ends; the outcome
	// must be a non-blocking warning, never a hang or crash.
	out := p.Run(context.Background(), Stop, Input{})
	if out.Kind != OutcomeWarning {
		t.Fatalf("expected timeout to be a warning, got %+v", out)
	}
}
