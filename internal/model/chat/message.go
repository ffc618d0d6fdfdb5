package chat

import (
	"slices"
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// State tracks whether a message may still change.
type State string

const (
	// StateStreaming marks the single in-flight bot message of a session.
	StateStreaming State = "streaming"
	StateFrozen    State = "frozen"
	// StateFailed is frozen too; the text holds the apology shown to the user.
	StateFailed State = "failed"
)

// Source is a web citation attached to a bot answer. URI is the identity.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Message is one turn of the transcript.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Sources   []Source  `json:"sources,omitempty"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
}

// Frozen reports whether the message is immutable.
func (m Message) Frozen() bool {
	return m.State != StateStreaming
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	m.Sources = slices.Clone(m.Sources)
	return m
}
