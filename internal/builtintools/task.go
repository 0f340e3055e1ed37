package builtintools

import (
	"encoding/json"
	"fmt"

	"github.com/waveforge/wave/internal/permission"
	"github.com/waveforge/wave/internal/subagent"
	"github.com/waveforge/wave/internal/toolregistry"
	"github.com/waveforge/wave/internal/toolschema"
)

// taskArgs is Task's parameter schema, reflected into JSON-Schema by
// toolschema.For.
type taskArgs struct {
	SubagentType string `json:"subagent_type" jsonschema:"required,description=Name of the sub-agent configuration to delegate to"`
	Description  string `json:"description" jsonschema:"required,description=Short (3-5 word) description of the task"`
	Prompt       string `json:"prompt" jsonschema:"required,description=The task for the sub-agent to perform"`
}

// Task is the engine-dispatched delegate-to-sub-agent tool. It holds a
// name->subagent.Config catalog (populated by the host from
// .wave/agents discovery) and a *subagent.Runner to invoke against.
type Task struct {
	Runner  *subagent.Runner
	Catalog map[string]subagent.Config
}

func (t *Task) Name() string { return "Task" }

func (t *Task) Schema() json.RawMessage { return toolschema.For[taskArgs]() }

func (t *Task) Prompt() string {
	return "Launch a sub-agent to handle a complex, multi-step task autonomously. " +
		"Choose subagent_type from the configured sub-agent catalog; the sub-agent " +
		"runs to completion and its final text becomes this call's result."
}

func (t *Task) FormatCompactParams(args json.RawMessage, tc *toolregistry.ToolContext) string {
	var a taskArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return compactParams(args)
	}
	return fmt.Sprintf("%s(%s)", a.SubagentType, a.Description)
}

func (t *Task) Execute(args json.RawMessage, tc *toolregistry.ToolContext) (*toolregistry.ToolResult, error) {
	var a taskArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return &toolregistry.ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}

	cfg, ok := t.Catalog[a.SubagentType]
	if !ok {
		return &toolregistry.ToolResult{Success: false, Error: fmt.Sprintf("unknown subagent_type %q", a.SubagentType)}, nil
	}

	text, err := t.Runner.Invoke(tc.Context, tc.AssistantMessageID, cfg, a.Prompt, permission.Mode(tc.Mode))
	if err != nil {
		return &toolregistry.ToolResult{Success: false, Error: err.Error()}, nil
	}
	return &toolregistry.ToolResult{Success: true, Content: text}, nil
}
