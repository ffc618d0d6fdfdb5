package chat

import (
	"sync"
	"sync/atomic"

	"github.com/zhouzirui/finbot/backend/internal/model/chat"
)

// EventKind names a transcript mutation.
type EventKind string

const (
	EventAppended EventKind = "appended"
	EventUpdated  EventKind = "updated"
	EventFrozen   EventKind = "frozen"
	EventReset    EventKind = "reset"
	// EventIdle follows the last mutation of a turn or persona switch.
	EventIdle EventKind = "idle"
)

// Event is delivered to observers after every mutation.
type Event struct {
	SessionID string    `json:"sessionId"`
	Kind      EventKind `json:"kind"`
	// Message is set for appended, updated and frozen.
	Message *chat.Message `json:"message,omitempty"`
	// Messages carries the new transcript for reset.
	Messages []chat.Message `json:"messages,omitempty"`
	Busy     bool           `json:"busy"`
}

// Observer is called synchronously on the goroutine that mutated the transcript.
type Observer func(Event)

// Transcript is the ordered message list of one session.
// Only the goroutine holding the busy flag mutates it.
type Transcript struct {
	sessionID string
	busy      atomic.Bool

	mu        sync.Mutex
	messages  []chat.Message
	observers map[uint64]Observer
	nextID    uint64
}

func newTranscript(sessionID string) *Transcript {
	return &Transcript{
		sessionID: sessionID,
		observers: make(map[uint64]Observer),
	}
}

// Busy reports whether a turn or persona switch holds the transcript.
func (t *Transcript) Busy() bool { return t.busy.Load() }

func (t *Transcript) tryBegin() bool { return t.busy.CompareAndSwap(false, true) }

func (t *Transcript) end() {
	t.busy.Store(false)
	t.publish(Event{Kind: EventIdle})
}

// Snapshot returns copies of all messages in order.
func (t *Transcript) Snapshot() []chat.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return cloneMessages(t.messages)
}

// Subscribe registers o until the returned cancel func is called.
func (t *Transcript) Subscribe(o Observer) (cancel func()) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.observers[id] = o
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.observers, id)
			t.mu.Unlock()
		})
	}
}

func (t *Transcript) append(msg chat.Message) Event {
	t.mu.Lock()
	t.messages = append(t.messages, msg.Clone())
	t.mu.Unlock()

	return t.publish(Event{Kind: EventAppended, Message: &msg})
}

// update replaces the message with the same ID.
func (t *Transcript) update(msg chat.Message) Event {
	t.mu.Lock()
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].ID == msg.ID {
			t.messages[i] = msg.Clone()
			break
		}
	}
	t.mu.Unlock()

	kind := EventUpdated
	if msg.Frozen() {
		kind = EventFrozen
	}
	return t.publish(Event{Kind: kind, Message: &msg})
}

func (t *Transcript) reset(msgs []chat.Message) {
	t.mu.Lock()
	t.messages = cloneMessages(msgs)
	t.mu.Unlock()

	t.publish(Event{Kind: EventReset, Messages: msgs})
}

// publish hands each observer its own copy, outside the lock so observers may read the transcript.
// It returns the event as published.
func (t *Transcript) publish(ev Event) Event {
	t.mu.Lock()
	observers := make([]Observer, 0, len(t.observers))
	for _, o := range t.observers {
		observers = append(observers, o)
	}
	t.mu.Unlock()

	ev.SessionID = t.sessionID
	ev.Busy = t.busy.Load()
	for _, o := range observers {
		o(cloneEvent(ev))
	}
	return ev
}

func cloneEvent(ev Event) Event {
	if ev.Message != nil {
		m := ev.Message.Clone()
		ev.Message = &m
	}
	if ev.Messages != nil {
		ev.Messages = cloneMessages(ev.Messages)
	}
	return ev
}

func cloneMessages(msgs []chat.Message) []chat.Message {
	out := make([]chat.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
