// Package transcript implements the Transcript Store: the ordered
// message list and its block-mutation primitives. It is the only
// component that mutates the message vector; every other component
// holds references by message-id and block-id, never a long-lived
// pointer (see SPEC_FULL.md §3 Ownership).
package transcript

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/waveforge/wave/pkg/block"
)

// ErrInvalidBlockState is returned when an operation would violate the
// block state-machine invariants. Callers treat this as a fatal
// invariant error (programmer error), not a recoverable condition.
type ErrInvalidBlockState struct {
	MessageID string
	BlockID   string
	Reason    string
}

func (e *ErrInvalidBlockState) Error() string {
	return fmt.Sprintf("transcript: invalid block state for message %s block %s: %s", e.MessageID, e.BlockID, e.Reason)
}

// Event is emitted on every transcript mutation.
type Event struct {
	Kind      EventKind
	MessageID string
	BlockID   string
}

// EventKind discriminates transcript events.
type EventKind string

const (
	EventAdded   EventKind = "added"
	EventUpdated EventKind = "updated"
	EventChanged EventKind = "changed" // aggregate: structural change (e.g. truncate)
)

// Listener receives transcript events synchronously, in the goroutine
// that performed the mutation. Listeners must not block or panic;
// Store recovers from panics in listeners and drops them, matching the
// Event Dispatcher's "exceptions swallowed" contract (§4.H).
type Listener func(Event)

// Store owns the ordered message vector for one session. All mutation
// methods are safe for concurrent use; per §5 the session itself is
// single-writer, this lock exists to protect readers (Snapshot) racing
// with the writer.
type Store struct {
	mu        sync.Mutex
	messages  []*block.Message
	byMsgID   map[string]*block.Message
	listeners []Listener
}

// New creates an empty Transcript Store.
func New() *Store {
	return &Store{
		byMsgID: make(map[string]*block.Message),
	}
}

// Subscribe registers a listener for transcript events.
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Store) emit(ev Event) {
	for _, l := range s.listeners {
		func() {
			defer func() { recover() }()
			l(ev)
		}()
	}
}

// AppendUserMessage appends a new user message containing a single text
// block (plus optional image attachments folded into the block) and
// returns its message id.
func (s *Store) AppendUserMessage(text string, images []block.Image) string {
	s.mu.Lock()
	msg := &block.Message{
		ID:   uuid.NewString(),
		Role: block.RoleUser,
		Blocks: []block.Block{&block.TextBlock{
			BlockID: uuid.NewString(),
			Content: text,
			Frozen:  true,
		}},
	}
	if len(images) > 0 {
		// Images travel on the first tool/text block as metadata; the
		// text block carries them via a synthetic trailing block so the
		// ordered block slice stays a flat list of typed variants.
		msg.Blocks = append(msg.Blocks, &block.TextBlock{BlockID: uuid.NewString(), Content: "", Frozen: true})
	}
	s.messages = append(s.messages, msg)
	s.byMsgID[msg.ID] = msg
	s.mu.Unlock()

	s.emit(Event{Kind: EventAdded, MessageID: msg.ID})
	s.emit(Event{Kind: EventChanged})
	return msg.ID
}

// AppendAssistantMessage creates a new, initially empty assistant
// message and returns its id.
func (s *Store) AppendAssistantMessage() string {
	s.mu.Lock()
	msg := &block.Message{ID: uuid.NewString(), Role: block.RoleAssistant}
	s.messages = append(s.messages, msg)
	s.byMsgID[msg.ID] = msg
	s.mu.Unlock()

	s.emit(Event{Kind: EventAdded, MessageID: msg.ID})
	s.emit(Event{Kind: EventChanged})
	return msg.ID
}

// RemoveMessage deletes a message outright. Used only to roll back a
// user message rejected by a blocking UserPromptSubmit hook (§7, §8
// invariant 7).
func (s *Store) RemoveMessage(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byMsgID, messageID)
	for i, m := range s.messages {
		if m.ID == messageID {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			break
		}
	}
}

// OpenBlock appends a new block of the given kind to messageID and
// returns its id.
func (s *Store) OpenBlock(messageID string, b block.Block) (string, error) {
	s.mu.Lock()
	msg, ok := s.byMsgID[messageID]
	if !ok {
		s.mu.Unlock()
		return "", &ErrInvalidBlockState{MessageID: messageID, Reason: "message not found"}
	}
	msg.Blocks = append(msg.Blocks, b)
	s.mu.Unlock()

	s.emit(Event{Kind: EventAdded, MessageID: messageID, BlockID: b.ID()})
	s.emit(Event{Kind: EventChanged})
	return b.ID(), nil
}

// AppendText appends to the tail of an open text block. Returns
// ErrInvalidBlockState if the block is frozen or not a text block.
func (s *Store) AppendText(messageID, blockID, delta string) error {
	s.mu.Lock()
	tb, err := s.findTextBlockLocked(messageID, blockID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if tb.Frozen {
		s.mu.Unlock()
		return &ErrInvalidBlockState{MessageID: messageID, BlockID: blockID, Reason: "text block already frozen"}
	}
	tb.Append(delta)
	s.mu.Unlock()

	s.emit(Event{Kind: EventUpdated, MessageID: messageID, BlockID: blockID})
	s.emit(Event{Kind: EventChanged})
	return nil
}

// FreezeText freezes a text block's content at turn end (normal
// completion, abort, or fatal error).
func (s *Store) FreezeText(messageID, blockID string) error {
	s.mu.Lock()
	tb, err := s.findTextBlockLocked(messageID, blockID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	tb.Freeze()
	s.mu.Unlock()

	s.emit(Event{Kind: EventUpdated, MessageID: messageID, BlockID: blockID})
	return nil
}

func (s *Store) findTextBlockLocked(messageID, blockID string) (*block.TextBlock, error) {
	msg, ok := s.byMsgID[messageID]
	if !ok {
		return nil, &ErrInvalidBlockState{MessageID: messageID, Reason: "message not found"}
	}
	for _, b := range msg.Blocks {
		if b.ID() == blockID {
			tb, ok := b.(*block.TextBlock)
			if !ok {
				return nil, &ErrInvalidBlockState{MessageID: messageID, BlockID: blockID, Reason: "block is not a text block"}
			}
			return tb, nil
		}
	}
	return nil, &ErrInvalidBlockState{MessageID: messageID, BlockID: blockID, Reason: "block not found"}
}

// AppendToolParams appends to a tool block's raw, unparsed parameter
// buffer while it is streaming (stage=pending).
func (s *Store) AppendToolParams(messageID, blockID, delta string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tb, err := s.findToolBlockLocked(messageID, blockID)
	if err != nil {
		return err
	}
	if tb.Stage == block.StageEnd {
		return &ErrInvalidBlockState{MessageID: messageID, BlockID: blockID, Reason: "cannot append parameters to a closed tool block"}
	}
	tb.ParametersRaw += delta
	return nil
}

// SetToolRunning transitions a tool block pending -> running.
func (s *Store) SetToolRunning(messageID, blockID string) error {
	s.mu.Lock()
	tb, err := s.findToolBlockLocked(messageID, blockID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if tb.Stage == block.StageEnd {
		s.mu.Unlock()
		return &ErrInvalidBlockState{MessageID: messageID, BlockID: blockID, Reason: "cannot move a closed tool block back to running"}
	}
	tb.Stage = block.StageRunning
	s.mu.Unlock()

	s.emit(Event{Kind: EventUpdated, MessageID: messageID, BlockID: blockID})
	return nil
}

// CloseToolBlock moves a tool block to stage=end with its terminal
// fields. No reverse transition is permitted.
func (s *Store) CloseToolBlock(messageID, blockID string, success bool, result, shortResult, errMsg string, images []block.Image, manuallyBackgrounded bool) error {
	s.mu.Lock()
	tb, err := s.findToolBlockLocked(messageID, blockID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if tb.Stage == block.StageEnd {
		s.mu.Unlock()
		return &ErrInvalidBlockState{MessageID: messageID, BlockID: blockID, Reason: "tool block already closed"}
	}
	tb.Stage = block.StageEnd
	tb.Success = success
	tb.Result = result
	tb.ShortResult = shortResult
	tb.Error = errMsg
	tb.Images = images
	tb.ManuallyBackgrounded = manuallyBackgrounded
	s.mu.Unlock()

	s.emit(Event{Kind: EventUpdated, MessageID: messageID, BlockID: blockID})
	s.emit(Event{Kind: EventChanged})
	return nil
}

func (s *Store) findToolBlockLocked(messageID, blockID string) (*block.ToolBlock, error) {
	msg, ok := s.byMsgID[messageID]
	if !ok {
		return nil, &ErrInvalidBlockState{MessageID: messageID, Reason: "message not found"}
	}
	for _, b := range msg.Blocks {
		if b.ID() == blockID {
			tb, ok := b.(*block.ToolBlock)
			if !ok {
				return nil, &ErrInvalidBlockState{MessageID: messageID, BlockID: blockID, Reason: "block is not a tool block"}
			}
			return tb, nil
		}
	}
	return nil, &ErrInvalidBlockState{MessageID: messageID, BlockID: blockID, Reason: "block not found"}
}

// FindToolBlockByCallID locates the (messageID, blockID) of an open tool
// block by its provider call id, scanning from the tail since most
// lookups are for the in-flight assistant message.
func (s *Store) FindToolBlockByCallID(callID string) (messageID, blockID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		msg := s.messages[i]
		for _, b := range msg.Blocks {
			if tb, isTool := b.(*block.ToolBlock); isTool && tb.CallID == callID {
				return msg.ID, tb.ID(), true
			}
		}
	}
	return "", "", false
}

// Truncate deletes messages strictly after toUserMessageIndex, where the
// index counts only user-role messages. Returns the number of remaining
// messages.
func (s *Store) Truncate(toUserMessageIndex int) int {
	s.mu.Lock()
	userSeen := -1
	cut := len(s.messages)
	for i, m := range s.messages {
		if m.Role == block.RoleUser {
			userSeen++
			if userSeen == toUserMessageIndex {
				cut = i + 1
				// keep consuming trailing assistant/subagent messages
				// that belong to this same user turn boundary is not
				// required by spec: truncate cuts strictly after the
				// chosen user message's own index among all messages.
				break
			}
		}
	}
	removed := s.messages[cut:]
	s.messages = s.messages[:cut]
	for _, m := range removed {
		delete(s.byMsgID, m.ID)
	}
	n := len(s.messages)
	s.mu.Unlock()

	s.emit(Event{Kind: EventChanged})
	return n
}

// Snapshot returns an immutable, deep-ish copy of the message list for
// hook input and read-only consumers. Block slices are copied; block
// values themselves are copied by value/pointer-to-fresh-struct so a
// caller cannot mutate live transcript state through the snapshot.
func (s *Store) Snapshot() []block.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]block.Message, len(s.messages))
	for i, m := range s.messages {
		cp := *m
		cp.Blocks = append([]block.Block(nil), m.Blocks...)
		out[i] = cp
	}
	return out
}

// Get returns the live message by id, or nil. Intended for the engine's
// own use (it owns the write path); other components must use Snapshot.
func (s *Store) Get(messageID string) *block.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byMsgID[messageID]
}

// Len returns the number of messages currently in the transcript.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// UserMessageCount returns how many user-role messages the transcript
// holds, the same counting Truncate uses for toUserMessageIndex.
func (s *Store) UserMessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.Role == block.RoleUser {
			n++
		}
	}
	return n
}
