package builtintools

import (
	"encoding/json"
	"fmt"

	"github.com/waveforge/wave/internal/toolregistry"
	"github.com/waveforge/wave/internal/toolschema"
)

type askUserQuestionArgs struct {
	Question string   `json:"question" jsonschema:"required,description=The question to ask the user"`
	Options  []string `json:"options,omitempty" jsonschema:"description=Suggested answers, presented as quick choices"`
}

// AskUserQuestion calls back into the Permission Gate's host callback
// directly rather than through the engine's static decision procedure
// (per SPEC_FULL.md §4.C, AskUserQuestion is never on the safe list).
// On allow, the decision's message is a JSON object of answers; a
// parse failure is reported as a tool failure rather than silently
// swallowed, matching spec.md's {success:false} contract.
type AskUserQuestion struct{}

func (t *AskUserQuestion) Name() string { return "AskUserQuestion" }

func (t *AskUserQuestion) Schema() json.RawMessage { return toolschema.For[askUserQuestionArgs]() }

func (t *AskUserQuestion) Prompt() string { return "" }

func (t *AskUserQuestion) FormatCompactParams(args json.RawMessage, tc *toolregistry.ToolContext) string {
	var a askUserQuestionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return compactParams(args)
	}
	return a.Question
}

func (t *AskUserQuestion) Execute(args json.RawMessage, tc *toolregistry.ToolContext) (*toolregistry.ToolResult, error) {
	if tc.Permission == nil {
		return &toolregistry.ToolResult{Success: false, Error: "no handler"}, nil
	}

	allow, message := tc.Permission.Ask(tc.Context, t.Name(), args)
	if !allow {
		return &toolregistry.ToolResult{Success: false, Error: message}, nil
	}

	var answers map[string]string
	if err := json.Unmarshal([]byte(message), &answers); err != nil {
		return &toolregistry.ToolResult{Success: false, Error: fmt.Sprintf("malformed answers: %v", err)}, nil
	}

	content, err := json.Marshal(answers)
	if err != nil {
		return &toolregistry.ToolResult{Success: false, Error: err.Error()}, nil
	}
	return &toolregistry.ToolResult{Success: true, Content: string(content)}, nil
}
