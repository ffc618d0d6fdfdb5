package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/finbot/backend/internal/model/chat"
)

func TestTranscriptPublishesCopies(t *testing.T) {
	tr := newTranscript("s1")
	var events []Event
	cancel := tr.Subscribe(func(ev Event) {
		if ev.Message != nil {
			ev.Message.Text = "tampered"
		}
		events = append(events, ev)
	})

	msg := chat.Message{ID: "m1", SessionID: "s1", Sender: chat.SenderBot, State: chat.StateStreaming}
	tr.append(msg)
	msg.Text = "hi"
	tr.update(msg)
	msg.State = chat.StateFrozen
	tr.update(msg)

	require.Len(t, events, 3)
	assert.Equal(t, EventAppended, events[0].Kind)
	assert.Equal(t, EventUpdated, events[1].Kind)
	assert.Equal(t, EventFrozen, events[2].Kind)
	assert.Equal(t, "s1", events[2].SessionID)

	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "hi", snap[0].Text)
	assert.True(t, snap[0].Frozen())

	cancel()
	cancel()
	tr.reset(nil)
	assert.Len(t, events, 3)
	assert.Empty(t, tr.Snapshot())
}

func TestTranscriptBusyFlag(t *testing.T) {
	tr := newTranscript("s1")
	var kinds []EventKind
	var busy []bool
	tr.Subscribe(func(ev Event) {
		kinds = append(kinds, ev.Kind)
		busy = append(busy, ev.Busy)
	})

	require.True(t, tr.tryBegin())
	assert.True(t, tr.Busy())
	assert.False(t, tr.tryBegin())

	tr.append(chat.Message{ID: "m1"})
	tr.end()
	assert.False(t, tr.Busy())

	assert.Equal(t, []EventKind{EventAppended, EventIdle}, kinds)
	assert.Equal(t, []bool{true, false}, busy)
}
