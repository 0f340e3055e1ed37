package builtintools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/waveforge/wave/internal/skills"
	"github.com/waveforge/wave/internal/toolregistry"
	"github.com/waveforge/wave/internal/toolschema"
)

type skillArgs struct {
	Name string `json:"name" jsonschema:"required,description=The skill to load, or empty to list every eligible skill"`
}

// Skill loads a `.wave/skills/<name>/SKILL.md` template's content into
// the turn on request. Unlike the six tools the rest of this package
// implements, Skill is an ordinary tool the engine never special-cases
// (per spec.md §4.B, it is documented by contract, not dispatched) —
// with no name given it instead lists every skill currently eligible
// in this environment, so the LLM can discover what is available
// before asking for one by name.
type Skill struct {
	Manager *skills.Manager
}

func (t *Skill) Name() string { return "Skill" }

func (t *Skill) Schema() json.RawMessage { return toolschema.For[skillArgs]() }

func (t *Skill) Prompt() string {
	return "Load a reusable skill template's instructions. Call with no name to list what's available."
}

func (t *Skill) FormatCompactParams(args json.RawMessage, tc *toolregistry.ToolContext) string {
	var a skillArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return compactParams(args)
	}
	return a.Name
}

func (t *Skill) Execute(args json.RawMessage, tc *toolregistry.ToolContext) (*toolregistry.ToolResult, error) {
	if t.Manager == nil {
		return &toolregistry.ToolResult{Success: false, Error: "no skills configured"}, nil
	}

	var a skillArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return &toolregistry.ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}

	if a.Name == "" {
		entries := t.Manager.Eligible()
		if len(entries) == 0 {
			return &toolregistry.ToolResult{Success: true, Content: "no skills available"}, nil
		}
		var b strings.Builder
		for _, e := range entries {
			fmt.Fprintf(&b, "%s: %s\n", e.Name, e.Description)
		}
		return &toolregistry.ToolResult{Success: true, Content: strings.TrimRight(b.String(), "\n")}, nil
	}

	entry, ok := t.Manager.Get(a.Name)
	if !ok {
		return &toolregistry.ToolResult{Success: false, Error: fmt.Sprintf("no such skill %q", a.Name)}, nil
	}
	return &toolregistry.ToolResult{Success: true, Content: entry.Content, ShortResult: entry.Description}, nil
}
