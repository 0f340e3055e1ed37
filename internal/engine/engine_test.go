package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/waveforge/wave/internal/engineerr"
	"github.com/waveforge/wave/internal/events"
	"github.com/waveforge/wave/internal/hookpipeline"
	"github.com/waveforge/wave/internal/permission"
	"github.com/waveforge/wave/internal/snapshot"
	"github.com/waveforge/wave/internal/taskmanager"
	"github.com/waveforge/wave/internal/toolregistry"
	"github.com/waveforge/wave/internal/transcript"
	"github.com/waveforge/wave/pkg/block"
)

// scriptedCompleter replays one canned StreamEvent slice per Stream
// call, advancing through the script; calls beyond the script's length
// replay its last entry.
type scriptedCompleter struct {
	calls  int
	script [][]StreamEvent
}

func (c *scriptedCompleter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	idx := c.calls
	if idx >= len(c.script) {
		idx = len(c.script) - 1
	}
	c.calls++
	ch := make(chan StreamEvent, len(c.script[idx]))
	for _, ev := range c.script[idx] {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func textEvents(s string) []StreamEvent {
	return []StreamEvent{{Kind: EventText, TextDelta: s}, {Kind: EventDone}}
}

func toolCallEvents(callID, name, args string) []StreamEvent {
	return []StreamEvent{
		{Kind: EventToolCallStart, ToolCallID: callID, ToolCallName: name},
		{Kind: EventToolCallDelta, ToolCallID: callID, ArgsDelta: args},
		{Kind: EventToolCallEnd, ToolCallID: callID},
		{Kind: EventDone},
	}
}

// blockingCompleter blocks Stream until unblock is closed, used to
// observe the engine's non-reentrancy guard mid-turn.
type blockingCompleter struct{ unblock chan struct{} }

func (b *blockingCompleter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	select {
	case <-b.unblock:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	ch := make(chan StreamEvent, 2)
	ch <- StreamEvent{Kind: EventText, TextDelta: "done"}
	ch <- StreamEvent{Kind: EventDone}
	close(ch)
	return ch, nil
}

type echoTool struct{}

func (echoTool) Name() string            { return "Echo" }
func (echoTool) Schema() json.RawMessage { return nil }
func (echoTool) Prompt() string          { return "" }
func (echoTool) Execute(args json.RawMessage, tc *toolregistry.ToolContext) (*toolregistry.ToolResult, error) {
	return &toolregistry.ToolResult{Success: true, Content: "echoed: " + string(args)}, nil
}
func (echoTool) FormatCompactParams(args json.RawMessage, tc *toolregistry.ToolContext) string {
	return string(args)
}

// writeFileTool writes args.Content to args.FilePath, standing in for a
// host-provided file-editing tool so engine_test.go can exercise the
// Reversion Manager without a real Edit/Write tool in this package.
type writeFileTool struct{}

type writeFileArgs struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

func (writeFileTool) Name() string            { return "WriteFile" }
func (writeFileTool) Schema() json.RawMessage { return nil }
func (writeFileTool) Prompt() string          { return "" }
func (writeFileTool) Execute(args json.RawMessage, tc *toolregistry.ToolContext) (*toolregistry.ToolResult, error) {
	var a writeFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return &toolregistry.ToolResult{Success: false, Error: err.Error()}, nil
	}
	if err := os.WriteFile(a.FilePath, []byte(a.Content), 0644); err != nil {
		return &toolregistry.ToolResult{Success: false, Error: err.Error()}, nil
	}
	return &toolregistry.ToolResult{Success: true, Content: "wrote " + a.FilePath, FilePath: a.FilePath}, nil
}
func (writeFileTool) FormatCompactParams(args json.RawMessage, tc *toolregistry.ToolContext) string {
	return string(args)
}

func newTestEngine(t *testing.T, completer Completer) (*Engine, *transcript.Store) {
	t.Helper()
	store := transcript.New()
	registry := toolregistry.NewRegistry()
	if err := registry.Register(echoTool{}); err != nil {
		t.Fatal(err)
	}
	executor := toolregistry.NewExecutor(registry, toolregistry.DefaultExecutorConfig())
	gate := permission.New(permission.ModeBypassPermissions, nil)
	hooks := hookpipeline.New(nil, t.TempDir(), "")
	tasks := taskmanager.New(nil)
	dispatcher := events.New(events.Callbacks{}, nil)

	cfg := Config{SessionID: "s1", Workdir: t.TempDir(), Model: "test-model", MaxTokens: 1024}
	return New(cfg, store, registry, executor, gate, hooks, tasks, dispatcher, completer, nil), store
}

func TestSendMessageNoToolCallsReturnsText(t *testing.T) {
	completer := &scriptedCompleter{script: [][]StreamEvent{textEvents("hello there")}}
	e, _ := newTestEngine(t, completer)

	text, err := e.SendMessage(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("SendMessage error: %v", err)
	}
	if text != "hello there" {
		t.Errorf("text = %q, want %q", text, "hello there")
	}
}

func TestSendMessageRunsToolThenReturnsFinalText(t *testing.T) {
	completer := &scriptedCompleter{script: [][]StreamEvent{
		toolCallEvents("call-1", "Echo", `{"msg":"hi"}`),
		textEvents("done"),
	}}
	e, store := newTestEngine(t, completer)

	text, err := e.SendMessage(context.Background(), "run echo", nil)
	if err != nil {
		t.Fatalf("SendMessage error: %v", err)
	}
	if text != "done" {
		t.Errorf("text = %q, want %q", text, "done")
	}

	var found bool
	for _, m := range store.Snapshot() {
		for _, b := range m.Blocks {
			if tb, ok := b.(*block.ToolBlock); ok && tb.Name == "Echo" {
				found = true
				if tb.Stage != block.StageEnd || !tb.Success {
					t.Errorf("tool block not closed successfully: %+v", tb)
				}
			}
		}
	}
	if !found {
		t.Fatal("expected a closed Echo tool block in the transcript")
	}
}

func TestSendMessageFailsFastWhenReentrant(t *testing.T) {
	unblock := make(chan struct{})
	e, _ := newTestEngine(t, &blockingCompleter{unblock: unblock})

	go func() { _, _ = e.SendMessage(context.Background(), "first", nil) }()
	for i := 0; i < 10000 && !e.IsLoading(); i++ {
		runtime.Gosched()
	}
	if !e.IsLoading() {
		t.Fatal("first turn never marked itself in progress")
	}

	_, err := e.SendMessage(context.Background(), "second", nil)
	if !errors.Is(err, engineerr.ErrNotReentrant) {
		t.Fatalf("err = %v, want ErrNotReentrant", err)
	}
	close(unblock)
}

func TestAbortCancelsInFlightTurn(t *testing.T) {
	unblock := make(chan struct{})
	e, _ := newTestEngine(t, &blockingCompleter{unblock: unblock})
	defer close(unblock)

	done := make(chan error, 1)
	go func() {
		_, err := e.SendMessage(context.Background(), "hi", nil)
		done <- err
	}()
	for i := 0; i < 10000 && !e.IsLoading(); i++ {
		runtime.Gosched()
	}
	e.Abort()

	err := <-done
	if !errors.Is(err, engineerr.ErrAborted) {
		t.Fatalf("err = %v, want an AbortError", err)
	}
}

func TestStopHookRestartsTurnOnce(t *testing.T) {
	completer := &scriptedCompleter{script: [][]StreamEvent{
		textEvents("first pass"),
		textEvents("second pass"),
	}}
	e, _ := newTestEngine(t, completer)

	dir := t.TempDir()
	marker := filepath.Join(dir, "ran")
	script := fmt.Sprintf(`if [ -f %q ]; then exit 0; else touch %q; echo -n "reconsider" 1>&2; exit 2; fi`, marker, marker)
	e.hooks = hookpipeline.New([]hookpipeline.Config{
		{Event: hookpipeline.Stop, Command: []string{"/bin/sh", "-c", script}},
	}, dir, "")

	text, err := e.SendMessage(context.Background(), "go", nil)
	if err != nil {
		t.Fatalf("SendMessage error: %v", err)
	}
	if text != "second pass" {
		t.Errorf("text = %q, want %q", text, "second pass")
	}
	if completer.calls != 2 {
		t.Errorf("completer.calls = %d, want 2 (one restart)", completer.calls)
	}
}

func TestMaybeCompactDropsSummarizedSpanFromComposedRequest(t *testing.T) {
	e, store := newTestEngine(t, &scriptedCompleter{script: [][]StreamEvent{textEvents("unused")}})
	e.fastCompleter = &scriptedCompleter{script: [][]StreamEvent{textEvents("summary of earlier turns")}}
	e.cfg.CompactionTokenThreshold = 1

	store.AppendUserMessage("turn one", nil)
	a1 := store.AppendAssistantMessage()
	tb1, _ := store.OpenBlock(a1, &block.TextBlock{})
	_ = store.AppendText(a1, tb1, "turn one reply, long enough to exceed the tiny threshold")
	_ = store.FreezeText(a1, tb1)

	store.AppendUserMessage("turn two", nil)
	a2 := store.AppendAssistantMessage()
	tb2, _ := store.OpenBlock(a2, &block.TextBlock{})
	_ = store.AppendText(a2, tb2, "turn two reply")
	_ = store.FreezeText(a2, tb2)

	e.maybeCompact(context.Background())

	req := e.composeRequest("")
	if len(req.Messages) == 0 || !strings.Contains(req.Messages[0].Text, "summary of earlier turns") {
		t.Fatalf("expected the first composed message to carry the compaction summary, got %+v", req.Messages)
	}
	for _, m := range req.Messages[1:] {
		if strings.Contains(m.Text, "turn one reply") {
			t.Fatalf("summarized span leaked into composed request: %+v", req.Messages)
		}
	}
	if store.Len() != 5 {
		t.Fatalf("raw transcript should retain every message (rewind needs it), got %d", store.Len())
	}
}

func TestTruncateHistoryReplaysFileSnapshot(t *testing.T) {
	workdir := t.TempDir()
	path := filepath.Join(workdir, "notes.txt")
	if err := os.WriteFile(path, []byte("original"), 0644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	store := transcript.New()
	registry := toolregistry.NewRegistry()
	if err := registry.Register(writeFileTool{}); err != nil {
		t.Fatal(err)
	}
	executor := toolregistry.NewExecutor(registry, toolregistry.DefaultExecutorConfig())
	gate := permission.New(permission.ModeBypassPermissions, nil)
	hooks := hookpipeline.New(nil, workdir, "")
	tasks := taskmanager.New(nil)
	dispatcher := events.New(events.Callbacks{}, nil)

	cfg := Config{SessionID: "s1", Workdir: workdir, Model: "test-model", MaxTokens: 1024}
	e := New(cfg, store, registry, executor, gate, hooks, tasks, dispatcher,
		&scriptedCompleter{script: [][]StreamEvent{
			textEvents("ok"),
			toolCallEvents("call-1", "WriteFile", fmt.Sprintf(`{"file_path":%q,"content":"edited by turn 2"}`, path)),
			textEvents("done"),
		}}, nil)
	e.SetReversion(snapshot.New())

	if _, err := e.SendMessage(context.Background(), "turn one, no edits", nil); err != nil {
		t.Fatalf("turn one: %v", err)
	}
	if _, err := e.SendMessage(context.Background(), "turn two, edit the file", nil); err != nil {
		t.Fatalf("turn two: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read after edit: %v", err)
	}
	if string(got) != "edited by turn 2" {
		t.Fatalf("content = %q, want the tool's edit to have landed", got)
	}

	// Rewind to before turn two (index 1): the edit made during turn two
	// must be undone.
	e.TruncateHistory(1)

	got, err = os.ReadFile(path)
	if err != nil {
		t.Fatalf("read after rewind: %v", err)
	}
	if string(got) != "original" {
		t.Fatalf("content = %q, want %q after rewind restored the pre-edit snapshot", got, "original")
	}
}
