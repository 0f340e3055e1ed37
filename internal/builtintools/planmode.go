package builtintools

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/waveforge/wave/internal/permission"
	"github.com/waveforge/wave/internal/toolregistry"
	"github.com/waveforge/wave/internal/toolschema"
)

// plansDir is where plan-mode plan files live, relative to the
// session's working directory (SPEC_FULL.md §12's plan-mode
// supplement).
const plansDir = ".wave/plans"

type enterPlanModeArgs struct{}

// EnterPlanMode switches the Permission Gate into plan mode and
// allocates a fresh, empty plan file the model writes its plan into
// with ordinary Write/Edit calls before calling ExitPlanMode.
type EnterPlanMode struct {
	Gate *permission.Gate
}

func (t *EnterPlanMode) Name() string { return "EnterPlanMode" }

func (t *EnterPlanMode) Schema() json.RawMessage { return toolschema.For[enterPlanModeArgs]() }

func (t *EnterPlanMode) Prompt() string {
	return "Use EnterPlanMode before making any file edits when the user has asked for a plan, research, or investigation rather than immediate changes."
}

func (t *EnterPlanMode) FormatCompactParams(args json.RawMessage, tc *toolregistry.ToolContext) string {
	return ""
}

func (t *EnterPlanMode) Execute(args json.RawMessage, tc *toolregistry.ToolContext) (*toolregistry.ToolResult, error) {
	dir := filepath.Join(tc.Workdir, plansDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &toolregistry.ToolResult{Success: false, Error: fmt.Sprintf("create plans directory: %v", err)}, nil
	}

	planFile := filepath.Join(dir, uuid.NewString()+".md")
	if err := os.WriteFile(planFile, nil, 0o644); err != nil {
		return &toolregistry.ToolResult{Success: false, Error: fmt.Sprintf("create plan file: %v", err)}, nil
	}

	checker := func(toolName string, args json.RawMessage) bool {
		return mutatesOutsidePlanFile(toolName, args, planFile)
	}
	t.Gate.EnterPlan(planFile, checker)

	return &toolregistry.ToolResult{Success: true, Content: planFile, FilePath: planFile}, nil
}

type exitPlanModeArgs struct {
	Plan string `json:"plan" jsonschema:"required,description=The plan in markdown, presented to the user for approval"`
}

// ExitPlanMode requests confirmation of the accumulated plan through
// the gate's host callback (Approve / Reject-with-feedback) and, on
// approval, restores the mode EnterPlanMode was called from.
type ExitPlanMode struct {
	Gate *permission.Gate
}

func (t *ExitPlanMode) Name() string { return "ExitPlanMode" }

func (t *ExitPlanMode) Schema() json.RawMessage { return toolschema.For[exitPlanModeArgs]() }

func (t *ExitPlanMode) Prompt() string { return "" }

func (t *ExitPlanMode) FormatCompactParams(args json.RawMessage, tc *toolregistry.ToolContext) string {
	return ""
}

func (t *ExitPlanMode) Execute(args json.RawMessage, tc *toolregistry.ToolContext) (*toolregistry.ToolResult, error) {
	var a exitPlanModeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return &toolregistry.ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}

	if tc.Permission == nil {
		return &toolregistry.ToolResult{Success: false, Error: "no handler"}, nil
	}
	allow, message := tc.Permission.Ask(tc.Context, t.Name(), args)
	if !allow {
		return &toolregistry.ToolResult{Success: false, Error: message}, nil
	}

	mode := t.Gate.ExitPlan()
	return &toolregistry.ToolResult{Success: true, Content: fmt.Sprintf("plan approved, resuming in %s mode", mode)}, nil
}

// mutatesOutsidePlanFile is the permission.PlanFileChecker EnterPlanMode
// installs: any tool that isn't one of the known read-only/safe tools
// and whose args don't target the plan file itself counts as a mutation
// outside it.
func mutatesOutsidePlanFile(toolName string, args json.RawMessage, planFile string) bool {
	switch toolName {
	case "Read", "Grep", "Glob", "LS", "TaskList", "TaskGet", "TaskOutput", "EnterPlanMode", "ExitPlanMode", "AskUserQuestion":
		return false
	}

	var target struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(args, &target); err == nil && target.FilePath == planFile {
		return false
	}
	return true
}
