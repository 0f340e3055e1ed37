// Package hookpipeline runs configured external hooks at fixed
// lifecycle points (UserPromptSubmit, PreToolUse, PostToolUse, Stop),
// feeding them a JSON document on stdin and interpreting their
// stdout/exit-code per SPEC_FULL.md §4.D.
package hookpipeline

import "encoding/json"

// LifecyclePoint identifies where in a turn a hook runs.
type LifecyclePoint string

const (
	UserPromptSubmit LifecyclePoint = "UserPromptSubmit"
	PreToolUse       LifecyclePoint = "PreToolUse"
	PostToolUse      LifecyclePoint = "PostToolUse"
	Stop             LifecyclePoint = "Stop"
)

// Config describes one configured hook: which lifecycle point it runs
// at, an optional tool-name glob matcher (PreToolUse/PostToolUse only),
// the command to execute, and its timeout.
type Config struct {
	Event   LifecyclePoint `json:"event" yaml:"event"`
	Matcher string         `json:"matcher,omitempty" yaml:"matcher,omitempty"`
	Command []string       `json:"command" yaml:"command"`
	Timeout int            `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
}

// Input is the JSON document written to a hook's stdin.
type Input struct {
	Event          LifecyclePoint  `json:"event"`
	SessionID      string          `json:"sessionId"`
	TranscriptPath string          `json:"transcriptPath"`
	CWD            string          `json:"cwd"`
	Timestamp      string          `json:"timestamp"`
	UserPrompt     string          `json:"user_prompt,omitempty"`
	ToolName       string          `json:"tool_name,omitempty"`
	ToolInput      json.RawMessage `json:"tool_input,omitempty"`
	ToolResponse   json.RawMessage `json:"tool_response,omitempty"`
	StopReason     string          `json:"stop_reason,omitempty"`
}

// HookSpecificOutput carries the finer-grained directives a hook can
// emit beyond the coarse continue/stopReason pair.
type HookSpecificOutput struct {
	HookEventName            string          `json:"hookEventName,omitempty"`
	PermissionDecision       string          `json:"permissionDecision,omitempty"` // allow | deny | ask
	PermissionDecisionReason string          `json:"permissionDecisionReason,omitempty"`
	UpdatedInput             json.RawMessage `json:"updatedInput,omitempty"`
	AdditionalContext        string          `json:"additionalContext,omitempty"`
	Decision                 string          `json:"decision,omitempty"`
	Reason                   string          `json:"reason,omitempty"`
}

// Output is the parsed JSON stdout document, when stdout parses as one.
type Output struct {
	Continue           *bool               `json:"continue,omitempty"`
	StopReason         string              `json:"stopReason,omitempty"`
	SystemMessage      string              `json:"systemMessage,omitempty"`
	HookSpecificOutput *HookSpecificOutput `json:"hookSpecificOutput,omitempty"`
}

// Outcome is the pipeline's unified interpretation of one hook's run,
// after folding together JSON-output and exit-code semantics.
type Outcome struct {
	Kind              OutcomeKind
	StdoutForContext  string // UserPromptSubmit success: appended as additional context
	StderrForModel    string // blocking: fed to the model as the tool's/turn's error
	StderrForUser     string // non-blocking warning or UserPromptSubmit block: shown to the user only
	StopReason        string
	AdditionalContext string
	PermissionDecision       string
	PermissionDecisionReason string
	UpdatedInput             json.RawMessage
	Warnings                 []string // non-blocking warnings accumulated while the chain continued
}

// OutcomeKind discriminates how a hook's run affected the pipeline.
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeBlocked OutcomeKind = "blocked"
	OutcomeWarning OutcomeKind = "warning"
)
