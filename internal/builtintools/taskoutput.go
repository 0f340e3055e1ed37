package builtintools

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/waveforge/wave/internal/taskmanager"
	"github.com/waveforge/wave/internal/toolregistry"
	"github.com/waveforge/wave/internal/toolschema"
)

type taskOutputArgs struct {
	TaskID    string `json:"task_id" jsonschema:"required,description=ID of the background task to query"`
	Filter    string `json:"filter,omitempty" jsonschema:"description=Optional regex; only matching output lines are returned"`
	BlockSecs int    `json:"block_seconds,omitempty" jsonschema:"description=If set, wait up to this many seconds for the task to finish before returning"`
}

// TaskOutput queries a background shell or sub-agent task's captured
// output, optionally blocking until it finishes.
type TaskOutput struct {
	Tasks *taskmanager.Manager
}

func (t *TaskOutput) Name() string { return "TaskOutput" }

func (t *TaskOutput) Schema() json.RawMessage { return toolschema.For[taskOutputArgs]() }

func (t *TaskOutput) Prompt() string { return "" }

func (t *TaskOutput) FormatCompactParams(args json.RawMessage, tc *toolregistry.ToolContext) string {
	var a taskOutputArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return compactParams(args)
	}
	return a.TaskID
}

func (t *TaskOutput) Execute(args json.RawMessage, tc *toolregistry.ToolContext) (*toolregistry.ToolResult, error) {
	var a taskOutputArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return &toolregistry.ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}
	if a.TaskID == "" {
		return &toolregistry.ToolResult{Success: false, Error: "task_id is required"}, nil
	}

	var snap taskmanager.Snapshot
	if a.BlockSecs > 0 {
		var reason string
		snap, reason = t.Tasks.GetOutputBlocking(tc.Context, a.TaskID, a.Filter, time.Duration(a.BlockSecs)*time.Second)
		if reason == "not found" {
			return &toolregistry.ToolResult{Success: false, Error: fmt.Sprintf("no such task %q", a.TaskID)}, nil
		}
	} else {
		var ok bool
		snap, ok = t.Tasks.GetOutput(a.TaskID, a.Filter)
		if !ok {
			return &toolregistry.ToolResult{Success: false, Error: fmt.Sprintf("no such task %q", a.TaskID)}, nil
		}
	}

	content := fmt.Sprintf("status: %s\ncommand: %s\n\nstdout:\n%s", snap.Status, snap.Command, snap.Stdout)
	if snap.Stderr != "" {
		content += "\n\nstderr:\n" + snap.Stderr
	}
	if snap.Truncated {
		content += "\n\n(output truncated)"
	}
	return &toolregistry.ToolResult{Success: true, Content: content}, nil
}
