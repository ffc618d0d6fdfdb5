package ai

import (
	"context"
	"iter"

	"github.com/zhouzirui/finbot/backend/internal/model/chat"
)

// Model-side roles used in conversation history.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one entry of the history replayed to the model on every request.
type Turn struct {
	Role string
	Text string
}

// Sampling holds the generation parameters fixed for a conversation's lifetime.
type Sampling struct {
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// Request is everything a backend needs to generate one streamed answer.
type Request struct {
	SystemInstruction string
	History           []Turn
	Text              string
	// WebSearch asks the backend to ground the answer with web search results.
	WebSearch bool
	Sampling  Sampling
}

// Fragment is one incremental piece of a streamed answer.
type Fragment struct {
	Text    string
	Sources []chat.Source
}

// Backend is the hosted generation service.
type Backend interface {
	Name() string
	// Stream yields fragments in arrival order. A non-nil error ends the sequence.
	Stream(ctx context.Context, req Request) iter.Seq2[Fragment, error]
}
