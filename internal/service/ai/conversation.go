package ai

import (
	"context"
	"iter"
	"slices"
	"strings"
	"sync"

	"github.com/zhouzirui/finbot/backend/internal/model/persona"
)

// Conversation is a stateful chat handle: one persona, fixed sampling, growing history.
type Conversation struct {
	persona     persona.Persona
	instruction string
	sampling    Sampling
	backend     Backend

	mu      sync.Mutex
	history []Turn
}

func (c *Conversation) Persona() persona.Persona { return c.persona }

func (c *Conversation) SystemInstruction() string { return c.instruction }

func (c *Conversation) Sampling() Sampling { return c.sampling }

// History returns a copy of the completed turns.
func (c *Conversation) History() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.history)
}

// Stream submits text and yields the answer's fragments.
// The exchange is committed to history only when the stream completes without error,
// the consumer read it to the end and the model produced text.
func (c *Conversation) Stream(ctx context.Context, text string, webSearch bool) iter.Seq2[Fragment, error] {
	return func(yield func(Fragment, error) bool) {
		req := Request{
			SystemInstruction: c.instruction,
			History:           c.History(),
			Text:              text,
			WebSearch:         webSearch,
			Sampling:          c.sampling,
		}

		var reply strings.Builder
		for frag, err := range c.backend.Stream(ctx, req) {
			if err != nil {
				yield(Fragment{}, err)
				return
			}
			reply.WriteString(frag.Text)
			if !yield(frag, nil) {
				return
			}
		}

		// An empty model turn is rejected by the backends on replay.
		if reply.Len() == 0 {
			return
		}

		c.mu.Lock()
		c.history = append(c.history,
			Turn{Role: RoleUser, Text: text},
			Turn{Role: RoleModel, Text: reply.String()},
		)
		c.mu.Unlock()
	}
}
