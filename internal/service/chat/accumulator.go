package chat

import (
	"slices"
	"strings"

	"github.com/zhouzirui/finbot/backend/internal/model/chat"
	"github.com/zhouzirui/finbot/backend/internal/service/ai"
)

// accumulator folds streamed fragments into one answer.
// Sources are keyed by URI and keep first-seen order.
type accumulator struct {
	text    strings.Builder
	sources []chat.Source
	seen    map[string]struct{}
}

func newAccumulator() *accumulator {
	return &accumulator{seen: make(map[string]struct{})}
}

func (a *accumulator) add(frag ai.Fragment) {
	a.text.WriteString(frag.Text)
	for _, src := range frag.Sources {
		if src.URI == "" {
			continue
		}
		if _, dup := a.seen[src.URI]; dup {
			continue
		}
		a.seen[src.URI] = struct{}{}
		a.sources = append(a.sources, src)
	}
}

func (a *accumulator) Text() string { return a.text.String() }

func (a *accumulator) Sources() []chat.Source { return slices.Clone(a.sources) }
