package subagent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/waveforge/wave/internal/engine"
	"github.com/waveforge/wave/internal/events"
	"github.com/waveforge/wave/internal/hookpipeline"
	"github.com/waveforge/wave/internal/permission"
	"github.com/waveforge/wave/internal/taskmanager"
	"github.com/waveforge/wave/internal/toolregistry"
	"github.com/waveforge/wave/internal/transcript"
	"github.com/waveforge/wave/pkg/block"
)

// textCompleter is a minimal engine.Completer that always answers with a
// single fixed text response, sufficient to drive a sub-agent turn to
// completion without any tool calls.
type textCompleter struct{ text string }

func (c *textCompleter) Stream(ctx context.Context, req engine.Request) (<-chan engine.StreamEvent, error) {
	ch := make(chan engine.StreamEvent, 2)
	ch <- engine.StreamEvent{Kind: engine.EventText, TextDelta: c.text}
	ch <- engine.StreamEvent{Kind: engine.EventDone}
	close(ch)
	return ch, nil
}

type readOnlyTool struct{}

func (readOnlyTool) Name() string            { return "Read" }
func (readOnlyTool) Schema() json.RawMessage { return nil }
func (readOnlyTool) Prompt() string          { return "" }
func (readOnlyTool) Execute(args json.RawMessage, tc *toolregistry.ToolContext) (*toolregistry.ToolResult, error) {
	return &toolregistry.ToolResult{Success: true, Content: "read ok"}, nil
}
func (readOnlyTool) FormatCompactParams(args json.RawMessage, tc *toolregistry.ToolContext) string {
	return ""
}

type writeTool struct{}

func (writeTool) Name() string            { return "Write" }
func (writeTool) Schema() json.RawMessage { return nil }
func (writeTool) Prompt() string          { return "" }
func (writeTool) Execute(args json.RawMessage, tc *toolregistry.ToolContext) (*toolregistry.ToolResult, error) {
	return &toolregistry.ToolResult{Success: true, Content: "write ok"}, nil
}
func (writeTool) FormatCompactParams(args json.RawMessage, tc *toolregistry.ToolContext) string {
	return ""
}

func newTestRunner(t *testing.T, completer engine.Completer) (*Runner, *transcript.Store, string) {
	t.Helper()
	parentStore := transcript.New()
	parentMsgID := parentStore.AppendAssistantMessage()

	base := toolregistry.NewRegistry()
	if err := base.Register(readOnlyTool{}); err != nil {
		t.Fatal(err)
	}
	if err := base.Register(writeTool{}); err != nil {
		t.Fatal(err)
	}

	r := &Runner{
		ParentTranscript: parentStore,
		ParentDispatcher: events.New(events.Callbacks{}, nil),
		BaseRegistry:     base,
		ExecutorConfig:   toolregistry.DefaultExecutorConfig(),
		Hooks:            hookpipeline.New(nil, t.TempDir(), ""),
		Tasks:            taskmanager.New(nil),
		Completer:        completer,
		CanUseTool:       nil,
		SessionID:        "parent-session",
		Workdir:          t.TempDir(),
		DefaultModel:     "default-model",
		MaxTokens:        1024,
	}
	return r, parentStore, parentMsgID
}

func TestInvokeHappyPathCompletesAndMirrorsIntoParent(t *testing.T) {
	r, parentStore, parentMsgID := newTestRunner(t, &textCompleter{text: "sub-agent result"})
	cfg := Config{Name: "helper", SystemPrompt: "You help."}

	text, err := r.Invoke(context.Background(), parentMsgID, cfg, "do the thing", permission.ModeBypassPermissions)
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if text != "sub-agent result" {
		t.Errorf("text = %q, want %q", text, "sub-agent result")
	}

	msg := parentStore.Get(parentMsgID)
	if msg == nil {
		t.Fatal("parent message disappeared")
	}
	var sb *block.SubAgentBlock
	for _, b := range msg.Blocks {
		if s, ok := b.(*block.SubAgentBlock); ok {
			sb = s
		}
	}
	if sb == nil {
		t.Fatal("expected a SubAgentBlock opened on the parent message")
	}
	if sb.SubAgentName != "helper" {
		t.Errorf("SubAgentName = %q, want helper", sb.SubAgentName)
	}
	if sb.Status != block.SubAgentCompleted {
		t.Errorf("Status = %q, want completed", sb.Status)
	}
}

func TestInvokeRejectsPastMaxDepth(t *testing.T) {
	r, _, parentMsgID := newTestRunner(t, &textCompleter{text: "unused"})
	r.MaxDepth = 1
	cfg := Config{Name: "helper", SystemPrompt: "You help."}

	ctx := withDepth(context.Background(), 1)
	_, err := r.Invoke(ctx, parentMsgID, cfg, "go deeper", permission.ModeBypassPermissions)
	if err == nil {
		t.Fatal("expected an error once the configured max recursion depth is reached")
	}
}

func TestStartAsyncRegistersAndUnregistersForeground(t *testing.T) {
	r, _, parentMsgID := newTestRunner(t, &textCompleter{text: "done"})
	cfg := Config{Name: "helper", SystemPrompt: "You help."}

	done, subID, err := r.StartAsync(context.Background(), parentMsgID, cfg, "go", permission.ModeBypassPermissions)
	if err != nil {
		t.Fatalf("StartAsync error: %v", err)
	}
	if subID == "" {
		t.Fatal("expected a non-empty sub-agent id")
	}

	select {
	case res := <-done:
		if res.Err != nil {
			t.Fatalf("sub-agent run failed: %v", res.Err)
		}
		if res.Text != "done" {
			t.Errorf("Text = %q, want done", res.Text)
		}
	case <-time.After(time.Second):
		t.Fatal("sub-agent never completed")
	}
}

func TestFilterRegistryRestrictsToAllowedTools(t *testing.T) {
	base := toolregistry.NewRegistry()
	_ = base.Register(readOnlyTool{})
	_ = base.Register(writeTool{})

	restricted := filterRegistry(base, []string{"Read"})
	if _, ok := restricted.Get("Read"); !ok {
		t.Error("expected Read to be present")
	}
	if _, ok := restricted.Get("Write"); ok {
		t.Error("expected Write to be excluded")
	}

	inherited := filterRegistry(base, nil)
	if _, ok := inherited.Get("Write"); !ok {
		t.Error("an empty allow-list should inherit every tool from base")
	}
}
