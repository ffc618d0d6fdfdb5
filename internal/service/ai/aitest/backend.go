// Package aitest provides a scripted ai.Backend for tests.
package aitest

import (
	"context"
	"iter"
	"sync"

	"github.com/zhouzirui/finbot/backend/internal/model/chat"
	"github.com/zhouzirui/finbot/backend/internal/service/ai"
)

// Script is the reply to one request: fragments in order, then Err if set.
type Script struct {
	Fragments []ai.Fragment
	Err       error
}

// Text scripts a plain reply made of the given deltas.
func Text(deltas ...string) Script {
	s := Script{}
	for _, d := range deltas {
		s.Fragments = append(s.Fragments, ai.Fragment{Text: d})
	}
	return s
}

// Cited builds a fragment carrying the given citation URIs, titled after themselves.
func Cited(text string, uris ...string) ai.Fragment {
	frag := ai.Fragment{Text: text}
	for _, uri := range uris {
		frag.Sources = append(frag.Sources, chat.Source{URI: uri, Title: uri})
	}
	return frag
}

// Backend replays scripts in order and records every request it receives.
// With no script left it replies with an empty stream.
type Backend struct {
	mu       sync.Mutex
	scripts  []Script
	requests []ai.Request

	// Gate, when set, holds each stream before its first fragment until closed.
	Gate chan struct{}
	// Started receives a value once a request is recorded, if set.
	Started chan struct{}
}

// NewBackend returns a Backend preloaded with scripts.
func NewBackend(scripts ...Script) *Backend {
	return &Backend{scripts: scripts}
}

// Push appends a script.
func (b *Backend) Push(s Script) {
	b.mu.Lock()
	b.scripts = append(b.scripts, s)
	b.mu.Unlock()
}

// Requests returns the requests seen so far.
func (b *Backend) Requests() []ai.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ai.Request(nil), b.requests...)
}

func (b *Backend) Name() string { return "scripted" }

func (b *Backend) Stream(ctx context.Context, req ai.Request) iter.Seq2[ai.Fragment, error] {
	return func(yield func(ai.Fragment, error) bool) {
		b.mu.Lock()
		b.requests = append(b.requests, req)
		var script Script
		if len(b.scripts) > 0 {
			script = b.scripts[0]
			b.scripts = b.scripts[1:]
		}
		b.mu.Unlock()

		if b.Started != nil {
			select {
			case b.Started <- struct{}{}:
			default:
			}
		}

		if b.Gate != nil {
			select {
			case <-b.Gate:
			case <-ctx.Done():
				yield(ai.Fragment{}, ctx.Err())
				return
			}
		}

		for _, frag := range script.Fragments {
			if !yield(frag, nil) {
				return
			}
		}
		if script.Err != nil {
			yield(ai.Fragment{}, script.Err)
		}
	}
}
