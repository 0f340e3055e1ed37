package builtintools

import (
	"encoding/json"
	"fmt"

	"github.com/waveforge/wave/internal/taskmanager"
	"github.com/waveforge/wave/internal/toolregistry"
	"github.com/waveforge/wave/internal/toolschema"
)

type taskStopArgs struct {
	TaskID string `json:"task_id" jsonschema:"required,description=ID of the background task to stop"`
}

// TaskStop sends SIGTERM (escalating to SIGKILL after the grace period)
// to a running background shell task, or marks a backgrounded sub-agent
// task killed; the sub-agent's run itself is not canceled.
type TaskStop struct {
	Tasks *taskmanager.Manager
}

func (t *TaskStop) Name() string { return "TaskStop" }

func (t *TaskStop) Schema() json.RawMessage { return toolschema.For[taskStopArgs]() }

func (t *TaskStop) Prompt() string { return "" }

func (t *TaskStop) FormatCompactParams(args json.RawMessage, tc *toolregistry.ToolContext) string {
	var a taskStopArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return compactParams(args)
	}
	return a.TaskID
}

func (t *TaskStop) Execute(args json.RawMessage, tc *toolregistry.ToolContext) (*toolregistry.ToolResult, error) {
	var a taskStopArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return &toolregistry.ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}
	if a.TaskID == "" {
		return &toolregistry.ToolResult{Success: false, Error: "task_id is required"}, nil
	}
	if err := t.Tasks.StopTask(a.TaskID); err != nil {
		return &toolregistry.ToolResult{Success: false, Error: err.Error()}, nil
	}
	return &toolregistry.ToolResult{Success: true, Content: fmt.Sprintf("task %s stopped", a.TaskID)}, nil
}
