// Package engine implements the Turn Engine: the LLM-and-tool loop that
// drives one user-to-quiescence turn, grounded on
// internal/agent/loop.go's AgenticLoop/LoopState/LoopPhase state machine
// and internal/agent/tool_exec.go's concurrent-dispatch executor.
package engine

import (
	"context"
	"encoding/json"

	"github.com/waveforge/wave/pkg/block"
)

// Role is the role of a message handed to a Completer.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolSchema describes one available tool to the model.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// ToolCallRecord is a previously-issued tool call, replayed into a
// follow-up request so the model sees its own prior call.
type ToolCallRecord struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolResultRecord is a previously-computed tool result, replayed into a
// follow-up request.
type ToolResultRecord struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// CompletionMessage is one projected transcript entry in the shape a
// Completer adapter expects.
type CompletionMessage struct {
	Role        Role
	Text        string
	Images      []block.Image
	ToolCalls   []ToolCallRecord
	ToolResults []ToolResultRecord
}

// Request is one LLM completion request.
type Request struct {
	Model     string
	System    string
	MaxTokens int
	Messages  []CompletionMessage
	Tools     []ToolSchema
}

// StreamEventKind discriminates StreamEvent.
type StreamEventKind int

const (
	EventText StreamEventKind = iota
	EventToolCallStart
	EventToolCallDelta
	EventToolCallEnd
	EventUsage
	EventDone
	EventError
)

// StreamEvent is one item from a Completer's stream. Only the fields
// relevant to Kind are populated.
type StreamEvent struct {
	Kind StreamEventKind

	TextDelta string

	ToolCallID   string
	ToolCallName string
	ArgsDelta    string

	Usage *block.Usage

	Err error
}

// Completer abstracts the LLM wire transport. SPEC_FULL.md treats the
// wire protocol as an external collaborator, but the repo ships real
// adapters (internal/llm/anthropic, internal/llm/openai) rather than
// leaving this interface unimplemented.
type Completer interface {
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}
