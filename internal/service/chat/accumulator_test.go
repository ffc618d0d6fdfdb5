package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/finbot/backend/internal/model/chat"
	"github.com/zhouzirui/finbot/backend/internal/service/ai"
)

func TestAccumulatorDeduplicatesSources(t *testing.T) {
	acc := newAccumulator()
	acc.add(ai.Fragment{Text: "one", Sources: []chat.Source{{URI: "a", Title: "A"}, {URI: "b", Title: "B"}}})
	acc.add(ai.Fragment{Text: " two", Sources: []chat.Source{{URI: "a", Title: "A again"}, {URI: ""}, {URI: "c", Title: "C"}}})

	assert.Equal(t, "one two", acc.Text())
	assert.Equal(t, []chat.Source{
		{URI: "a", Title: "A"},
		{URI: "b", Title: "B"},
		{URI: "c", Title: "C"},
	}, acc.Sources())
}

func TestAccumulatorSourcesAreCopies(t *testing.T) {
	acc := newAccumulator()
	acc.add(ai.Fragment{Sources: []chat.Source{{URI: "a"}}})

	got := acc.Sources()
	got[0].URI = "mutated"
	assert.Equal(t, "a", acc.Sources()[0].URI)
}
