// Package block defines the transcript's tagged-union block model: the
// typed fragments that make up a message (text, tool, diff, error,
// compress, memory, subagent, custom_command).
package block

import "time"

// Kind discriminates the block variants that can appear in a message.
type Kind string

const (
	KindText          Kind = "text"
	KindTool          Kind = "tool"
	KindDiff          Kind = "diff"
	KindError         Kind = "error"
	KindCompress      Kind = "compress"
	KindMemory        Kind = "memory"
	KindSubAgent      Kind = "subagent"
	KindCustomCommand Kind = "custom_command"
)

// Stage is the lifecycle state of a tool block. Transitions only move
// forward: pending -> running -> end.
type Stage string

const (
	StagePending Stage = "pending"
	StageRunning Stage = "running"
	StageEnd     Stage = "end"
)

// Block is satisfied by every block variant. Kind identifies the
// concrete type for type-switches; ID is stable for the lifetime of the
// block and is how other components address it (§3 Ownership: callers
// hold a reference by message-id and block-id, never a pointer).
type Block interface {
	Kind() Kind
	ID() string
}

// Image is an attachment carried by a tool result or a user message.
type Image struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

// TextBlock is model-generated prose. Content is append-only while the
// turn is active and frozen once the turn terminates.
type TextBlock struct {
	BlockID string `json:"id"`
	Content string `json:"content"`
	Frozen  bool   `json:"frozen"`
}

func (b *TextBlock) Kind() Kind   { return KindText }
func (b *TextBlock) ID() string   { return b.BlockID }
func (b *TextBlock) Append(s string) {
	if b.Frozen {
		return
	}
	b.Content += s
}
func (b *TextBlock) Freeze() { b.Frozen = true }

// ToolBlock is one requested tool invocation, tracked through its
// pending -> running -> end lifecycle.
type ToolBlock struct {
	BlockID       string `json:"id"`
	CallID        string `json:"callId"` // provider-supplied call id; unique within the session
	Name          string `json:"name"`
	ParametersRaw string `json:"parametersRaw"` // accumulated streaming text, parsed once at stage=end
	Stage         Stage  `json:"stage"`
	Success       bool   `json:"success"`
	Result        string `json:"result"`
	ShortResult   string `json:"shortResult"`
	Error         string `json:"error,omitempty"`
	Images        []Image `json:"images,omitempty"`
	ManuallyBackgrounded bool `json:"manuallyBackgrounded,omitempty"`
}

func (b *ToolBlock) Kind() Kind { return KindTool }
func (b *ToolBlock) ID() string { return b.BlockID }

// DiffBlock carries a structured, line-level diff for a file-editing
// tool, addressed via ToolContext.AddDiffBlock rather than ToolResult
// fields (see SPEC_FULL.md §9, canonical ToolResult shape decision).
type DiffBlock struct {
	BlockID  string `json:"id"`
	FilePath string `json:"filePath"`
	Diff     string `json:"diff"`
}

func (b *DiffBlock) Kind() Kind { return KindDiff }
func (b *DiffBlock) ID() string { return b.BlockID }

// ErrorBlock surfaces a transport/model/hook error to the user.
type ErrorBlock struct {
	BlockID string `json:"id"`
	Message string `json:"message"`
}

func (b *ErrorBlock) Kind() Kind { return KindError }
func (b *ErrorBlock) ID() string { return b.BlockID }

// CompressBlock marks that earlier turns were summarized by compaction.
type CompressBlock struct {
	BlockID     string `json:"id"`
	Summary     string `json:"summary"`
	InsertIndex int    `json:"insertIndex"`
}

func (b *CompressBlock) Kind() Kind { return KindCompress }
func (b *CompressBlock) ID() string { return b.BlockID }

// MemoryBlock records a persisted "rule" write.
type MemoryBlock struct {
	BlockID string `json:"id"`
	Path    string `json:"path"`
	Scope   string `json:"scope"` // "project" or "user"
	Success bool   `json:"success"`
}

func (b *MemoryBlock) Kind() Kind { return KindMemory }
func (b *MemoryBlock) ID() string { return b.BlockID }

// SubAgentStatus tracks the lifecycle of a delegated sub-agent turn.
type SubAgentStatus string

const (
	SubAgentRunning      SubAgentStatus = "running"
	SubAgentCompleted    SubAgentStatus = "completed"
	SubAgentBackgrounded SubAgentStatus = "backgrounded"
	SubAgentFailed       SubAgentStatus = "failed"
)

// SubAgentBlock is a container holding the nested messages produced by a
// sub-agent invocation.
type SubAgentBlock struct {
	BlockID       string         `json:"id"`
	SubAgentID    string         `json:"subagentId"`
	SubAgentName  string         `json:"subagentName"`
	Status        SubAgentStatus `json:"status"`
	Messages      []*Message     `json:"messages"`
}

func (b *SubAgentBlock) Kind() Kind { return KindSubAgent }
func (b *SubAgentBlock) ID() string { return b.BlockID }

// CustomCommandBlock records a user-typed slash-command expansion.
type CustomCommandBlock struct {
	BlockID       string `json:"id"`
	CommandName   string `json:"commandName"`
	ExpandedPrompt string `json:"expandedPrompt"`
}

func (b *CustomCommandBlock) Kind() Kind { return KindCustomCommand }
func (b *CustomCommandBlock) ID() string { return b.BlockID }

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSubAgent  Role = "subAgent"
)

// Message is an ordered sequence of blocks with a monotonic, per-session id.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Blocks    []Block   `json:"blocks"`
	CreatedAt time.Time `json:"createdAt"`
}

// Usage is a per-turn token accounting record appended after each LLM
// response. Not part of the transcript proper.
type Usage struct {
	Model                  string `json:"model"`
	InputTokens            int    `json:"inputTokens"`
	OutputTokens           int    `json:"outputTokens"`
	CacheReadInputTokens   int    `json:"cacheReadInputTokens"`
	CacheCreationInputTokens int  `json:"cacheCreationInputTokens"`
}
