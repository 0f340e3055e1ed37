// Package events implements the Event Dispatcher: synchronous fan-out of
// incremental and aggregate callbacks to the host, narrowed from the
// teacher's broader cross-channel event bus (internal/hooks/types.go,
// pkg/models/runtime_event.go) to the exact taxonomy SPEC_FULL.md §4.H
// names.
package events

import (
	"log/slog"

	"github.com/waveforge/wave/pkg/block"
)

// Callbacks is the full set of host-supplied event handlers. Every field
// is optional; a nil field is simply not invoked.
type Callbacks struct {
	OnUserMessageAdded       func(msg *block.Message)
	OnAssistantMessageAdded  func(msg *block.Message)
	OnAssistantContentUpdated func(messageID, blockID, chunk string)
	OnToolBlockAdded         func(messageID string, tb *block.ToolBlock)
	OnToolBlockUpdated       func(messageID string, tb *block.ToolBlock)
	OnDiffBlockAdded         func(messageID string, db *block.DiffBlock)
	OnErrorBlockAdded        func(messageID string, eb *block.ErrorBlock)
	OnCompressBlockAdded     func(messageID string, cb *block.CompressBlock)
	OnMemoryBlockAdded       func(messageID string, mb *block.MemoryBlock)
	OnSubAgentBlockAdded     func(messageID string, sb *block.SubAgentBlock)
	OnSubAgentBlockUpdated   func(messageID string, sb *block.SubAgentBlock)
	OnCustomCommandAdded     func(messageID string, cc *block.CustomCommandBlock)
	OnHookMessage            func(event, text string)
	OnWarnMessageAdded       func(text string)
	OnShowRewind             func(toUserMessageIndex int)
	OnTasksChange            func()
	OnUsagesChange           func(usage block.Usage)

	// OnMessagesChange is the aggregate callback: fired on any transcript
	// mutation with a shallow snapshot, always after the incremental
	// callback for the same logical change.
	OnMessagesChange func(messages []block.Message)
}

// Dispatcher wraps a Callbacks set with panic/error containment so a
// misbehaving host callback can never crash the Turn Engine — the
// contract spec.md §4.H states explicitly ("callbacks must not throw").
type Dispatcher struct {
	cb  Callbacks
	log *slog.Logger
}

// New builds a Dispatcher. log may be nil, in which case a discard
// logger is used.
func New(cb Callbacks, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{cb: cb, log: log}
}

func (d *Dispatcher) guard(name string, fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("event callback panicked", "callback", name, "recovered", r)
		}
	}()
	fn()
}

func (d *Dispatcher) UserMessageAdded(msg *block.Message) {
	d.guard("OnUserMessageAdded", func() {
		if d.cb.OnUserMessageAdded != nil {
			d.cb.OnUserMessageAdded(msg)
		}
	})
}

func (d *Dispatcher) AssistantMessageAdded(msg *block.Message) {
	d.guard("OnAssistantMessageAdded", func() {
		if d.cb.OnAssistantMessageAdded != nil {
			d.cb.OnAssistantMessageAdded(msg)
		}
	})
}

func (d *Dispatcher) AssistantContentUpdated(messageID, blockID, chunk string) {
	d.guard("OnAssistantContentUpdated", func() {
		if d.cb.OnAssistantContentUpdated != nil {
			d.cb.OnAssistantContentUpdated(messageID, blockID, chunk)
		}
	})
}

func (d *Dispatcher) ToolBlockAdded(messageID string, tb *block.ToolBlock) {
	d.guard("OnToolBlockAdded", func() {
		if d.cb.OnToolBlockAdded != nil {
			d.cb.OnToolBlockAdded(messageID, tb)
		}
	})
}

func (d *Dispatcher) ToolBlockUpdated(messageID string, tb *block.ToolBlock) {
	d.guard("OnToolBlockUpdated", func() {
		if d.cb.OnToolBlockUpdated != nil {
			d.cb.OnToolBlockUpdated(messageID, tb)
		}
	})
}

func (d *Dispatcher) DiffBlockAdded(messageID string, db *block.DiffBlock) {
	d.guard("OnDiffBlockAdded", func() {
		if d.cb.OnDiffBlockAdded != nil {
			d.cb.OnDiffBlockAdded(messageID, db)
		}
	})
}

func (d *Dispatcher) ErrorBlockAdded(messageID string, eb *block.ErrorBlock) {
	d.guard("OnErrorBlockAdded", func() {
		if d.cb.OnErrorBlockAdded != nil {
			d.cb.OnErrorBlockAdded(messageID, eb)
		}
	})
}

func (d *Dispatcher) CompressBlockAdded(messageID string, cb *block.CompressBlock) {
	d.guard("OnCompressBlockAdded", func() {
		if d.cb.OnCompressBlockAdded != nil {
			d.cb.OnCompressBlockAdded(messageID, cb)
		}
	})
}

func (d *Dispatcher) MemoryBlockAdded(messageID string, mb *block.MemoryBlock) {
	d.guard("OnMemoryBlockAdded", func() {
		if d.cb.OnMemoryBlockAdded != nil {
			d.cb.OnMemoryBlockAdded(messageID, mb)
		}
	})
}

func (d *Dispatcher) SubAgentBlockAdded(messageID string, sb *block.SubAgentBlock) {
	d.guard("OnSubAgentBlockAdded", func() {
		if d.cb.OnSubAgentBlockAdded != nil {
			d.cb.OnSubAgentBlockAdded(messageID, sb)
		}
	})
}

func (d *Dispatcher) SubAgentBlockUpdated(messageID string, sb *block.SubAgentBlock) {
	d.guard("OnSubAgentBlockUpdated", func() {
		if d.cb.OnSubAgentBlockUpdated != nil {
			d.cb.OnSubAgentBlockUpdated(messageID, sb)
		}
	})
}

func (d *Dispatcher) CustomCommandAdded(messageID string, cc *block.CustomCommandBlock) {
	d.guard("OnCustomCommandAdded", func() {
		if d.cb.OnCustomCommandAdded != nil {
			d.cb.OnCustomCommandAdded(messageID, cc)
		}
	})
}

func (d *Dispatcher) HookMessage(event, text string) {
	d.guard("OnHookMessage", func() {
		if d.cb.OnHookMessage != nil {
			d.cb.OnHookMessage(event, text)
		}
	})
}

func (d *Dispatcher) WarnMessageAdded(text string) {
	d.guard("OnWarnMessageAdded", func() {
		if d.cb.OnWarnMessageAdded != nil {
			d.cb.OnWarnMessageAdded(text)
		}
	})
}

func (d *Dispatcher) ShowRewind(toUserMessageIndex int) {
	d.guard("OnShowRewind", func() {
		if d.cb.OnShowRewind != nil {
			d.cb.OnShowRewind(toUserMessageIndex)
		}
	})
}

func (d *Dispatcher) TasksChange() {
	d.guard("OnTasksChange", func() {
		if d.cb.OnTasksChange != nil {
			d.cb.OnTasksChange()
		}
	})
}

func (d *Dispatcher) UsagesChange(usage block.Usage) {
	d.guard("OnUsagesChange", func() {
		if d.cb.OnUsagesChange != nil {
			d.cb.OnUsagesChange(usage)
		}
	})
}

// MessagesChange is the aggregate callback; callers fire it after every
// incremental callback for the same logical change, per spec.md's
// delivery-ordering rule.
func (d *Dispatcher) MessagesChange(messages []block.Message) {
	d.guard("OnMessagesChange", func() {
		if d.cb.OnMessagesChange != nil {
			d.cb.OnMessagesChange(messages)
		}
	})
}
