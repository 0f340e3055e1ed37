package toolregistry

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

type fakeTool struct {
	name  string
	delay time.Duration
	fail  bool
}

func (f *fakeTool) Name() string             { return f.name }
func (f *fakeTool) Schema() json.RawMessage  { return nil }
func (f *fakeTool) Prompt() string           { return "" }
func (f *fakeTool) FormatCompactParams(json.RawMessage, *ToolContext) string { return f.name }
func (f *fakeTool) Execute(args json.RawMessage, tc *ToolContext) (*ToolResult, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-tc.Context.Done():
			return &ToolResult{Success: false, Error: "canceled"}, nil
		}
	}
	if f.fail {
		return &ToolResult{Success: false, Error: "boom"}, nil
	}
	return &ToolResult{Success: true, Content: f.name + "-ok"}, nil
}

func TestExecuteAllReturnsResultsInCallOrder(t *testing.T) {
	reg := NewRegistry()
	for _, n := range []string{"slow", "fast", "fail"} {
		delay := time.Duration(0)
		fail := n == "fail"
		if n == "slow" {
			delay = 30 * time.Millisecond
		}
		if err := reg.Register(&fakeTool{name: n, delay: delay, fail: fail}); err != nil {
			t.Fatal(err)
		}
	}
	exec := NewExecutor(reg, DefaultExecutorConfig())

	calls := []Call{
		{Index: 0, CallID: "c0", Name: "slow", Ctx: &ToolContext{Context: context.Background()}},
		{Index: 1, CallID: "c1", Name: "fast", Ctx: &ToolContext{Context: context.Background()}},
		{Index: 2, CallID: "c2", Name: "fail", Ctx: &ToolContext{Context: context.Background()}},
	}
	results := exec.ExecuteAll(context.Background(), calls)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Call.Name != "slow" || results[1].Call.Name != "fast" || results[2].Call.Name != "fail" {
		t.Fatalf("results not in call order: %+v", results)
	}
	if !results[0].Result.Success || !results[1].Result.Success {
		t.Fatalf("expected slow and fast to succeed: %+v %+v", results[0], results[1])
	}
	if results[2].Result.Success {
		t.Fatal("expected fail to fail")
	}
}

func TestExecuteAllTimesOutSlowTool(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&fakeTool{name: "stuck", delay: time.Second}); err != nil {
		t.Fatal(err)
	}
	exec := NewExecutor(reg, ExecutorConfig{Concurrency: 1, PerToolTimeout: 20 * time.Millisecond})

	results := exec.ExecuteAll(context.Background(), []Call{
		{Index: 0, CallID: "c0", Name: "stuck", Ctx: &ToolContext{Context: context.Background()}},
	})
	if !results[0].TimedOut {
		t.Fatalf("expected timeout, got %+v", results[0])
	}
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&fakeTool{name: "dup"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(&fakeTool{name: "dup"}); err == nil {
		t.Fatal("expected duplicate-name registration error")
	}
}

func TestExecuteRejectsOversizedName(t *testing.T) {
	reg := NewRegistry()
	longName := make([]byte, MaxToolNameLength+1)
	for i := range longName {
		longName[i] = 'a'
	}
	res, err := reg.Execute(string(longName), nil, &ToolContext{Context: context.Background()})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("expected failure for oversized tool name")
	}
}
