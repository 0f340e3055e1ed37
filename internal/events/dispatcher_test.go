package events

import (
	"testing"

	"github.com/waveforge/wave/pkg/block"
)

func TestPanicInOneCallbackDoesNotStopOthers(t *testing.T) {
	var warnFired bool
	d := New(Callbacks{
		OnUserMessageAdded: func(msg *block.Message) { panic("boom") },
		OnWarnMessageAdded: func(text string) { warnFired = true },
	}, nil)

	d.UserMessageAdded(&block.Message{ID: "m1"})
	d.WarnMessageAdded("still works")

	if !warnFired {
		t.Fatal("a panic in one callback must not prevent a later, unrelated callback from firing")
	}
}

func TestNilCallbackFieldsAreSkipped(t *testing.T) {
	d := New(Callbacks{}, nil)
	// None of these must panic even though every callback field is nil.
	d.UserMessageAdded(&block.Message{ID: "m1"})
	d.AssistantMessageAdded(&block.Message{ID: "m2"})
	d.ToolBlockAdded("m2", &block.ToolBlock{})
	d.MessagesChange(nil)
}

func TestIncrementalCallbackFiresBeforeAggregate(t *testing.T) {
	var order []string
	d := New(Callbacks{
		OnAssistantMessageAdded: func(msg *block.Message) { order = append(order, "incremental") },
		OnMessagesChange:        func(messages []block.Message) { order = append(order, "aggregate") },
	}, nil)

	msg := &block.Message{ID: "m1"}
	d.AssistantMessageAdded(msg)
	d.MessagesChange([]block.Message{*msg})

	if len(order) != 2 || order[0] != "incremental" || order[1] != "aggregate" {
		t.Fatalf("order = %v, want [incremental aggregate]", order)
	}
}

func TestAggregateCallbackReceivesTheSnapshotPassedToIt(t *testing.T) {
	var received []block.Message
	d := New(Callbacks{
		OnMessagesChange: func(messages []block.Message) { received = messages },
	}, nil)

	d.MessagesChange([]block.Message{{ID: "a"}, {ID: "b"}})
	if len(received) != 2 || received[0].ID != "a" || received[1].ID != "b" {
		t.Fatalf("received = %+v", received)
	}
}
