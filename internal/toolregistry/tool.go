// Package toolregistry implements the Tool Registry: the name -> schema
// + execute + compact-formatter mapping the Turn Engine dispatches
// against, plus the concurrent executor used to run a batch of tool
// calls produced by one LLM response.
package toolregistry

import (
	"context"
	"encoding/json"

	"github.com/waveforge/wave/pkg/block"
)

// ToolResult is the value a tool's Execute returns. This is the newer,
// canonical shape from SPEC_FULL.md §9: diff output is not carried on
// the result, it is emitted through ToolContext.AddDiffBlock instead.
type ToolResult struct {
	Success               bool
	Content               string
	ShortResult           string
	Error                 string
	FilePath              string
	Images                []block.Image
	IsManuallyBackgrounded bool
}

// PermissionAsker is the subset of the Permission Gate a tool's context
// needs: AskUserQuestion and plan-mode tools call back into the gate
// directly rather than through the engine's own pre-dispatch check.
type PermissionAsker interface {
	Ask(ctx context.Context, toolName string, args json.RawMessage) (allow bool, message string)
}

// BackgroundRegistrar is the subset of the Task Manager a tool needs to
// hand a running process off into the background registry.
type BackgroundRegistrar interface {
	AdoptProcess(command string, priorStdout, priorStderr string, handle any) (taskID string)
}

// ToolContext is constructed fresh for every tool call by the Turn
// Engine. Tools must not retain it beyond the call.
type ToolContext struct {
	Context      context.Context
	Workdir      string
	Mode         string // current permission mode, informational
	Permission   PermissionAsker
	Background   BackgroundRegistrar
	AddDiffBlock func(filePath, diff string)
	SessionID    string

	// AssistantMessageID is the id of the in-progress assistant message
	// this tool call belongs to, the attachment point the Task tool opens
	// its SubAgentBlock on.
	AssistantMessageID string
}

// Tool is a named, side-effecting capability with JSON-Schema params and
// an execute function.
type Tool interface {
	Name() string
	// Schema returns a JSON-Schema document (as raw JSON) describing the
	// tool's parameters, suitable for the LLM.
	Schema() json.RawMessage
	// Prompt returns optional extra instructional text merged into the
	// system prompt when this tool is enabled. Empty string if none.
	Prompt() string
	Execute(args json.RawMessage, tc *ToolContext) (*ToolResult, error)
	FormatCompactParams(args json.RawMessage, tc *ToolContext) string
}
