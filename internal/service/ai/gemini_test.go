package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/zhouzirui/finbot/backend/internal/config"
	"github.com/zhouzirui/finbot/backend/internal/model/chat"
)

func TestBuildGenerateConfigWebSearch(t *testing.T) {
	base := Request{
		SystemInstruction: "be helpful",
		Text:              "hi",
		Sampling:          Sampling{Temperature: 0.7, TopP: 0.9},
	}

	plain := buildGenerateConfig(base)
	assert.Nil(t, plain.Tools)
	require.NotNil(t, plain.Temperature)
	assert.InDelta(t, 0.7, *plain.Temperature, 1e-6)
	require.NotNil(t, plain.TopP)
	assert.InDelta(t, 0.9, *plain.TopP, 1e-6)
	assert.Zero(t, plain.MaxOutputTokens)
	require.NotNil(t, plain.SystemInstruction)
	require.Len(t, plain.SystemInstruction.Parts, 1)
	assert.Equal(t, "be helpful", plain.SystemInstruction.Parts[0].Text)

	base.WebSearch = true
	grounded := buildGenerateConfig(base)
	require.Len(t, grounded.Tools, 1)
	assert.NotNil(t, grounded.Tools[0].GoogleSearch)
}

func TestBuildGenerateConfigMaxTokens(t *testing.T) {
	cfg := buildGenerateConfig(Request{Sampling: Sampling{MaxTokens: 256}})
	assert.Equal(t, int32(256), cfg.MaxOutputTokens)
	assert.Nil(t, cfg.SystemInstruction)
}

func TestBuildContentsReplaysHistory(t *testing.T) {
	contents := buildContents(Request{
		History: []Turn{
			{Role: RoleUser, Text: "q1"},
			{Role: RoleModel, Text: "a1"},
		},
		Text: "q2",
	})

	require.Len(t, contents, 3)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	assert.Equal(t, genai.RoleUser, contents[2].Role)
	assert.Equal(t, "q2", contents[2].Parts[0].Text)
}

func TestFragmentFromResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromText("Hello", genai.RoleModel),
			GroundingMetadata: &genai.GroundingMetadata{
				GroundingChunks: []*genai.GroundingChunk{
					{Web: &genai.GroundingChunkWeb{URI: "https://a.example", Title: "A"}},
					{Web: &genai.GroundingChunkWeb{Title: "no uri"}},
					{},
					nil,
					{Web: &genai.GroundingChunkWeb{URI: "https://b.example", Title: "B"}},
				},
			},
		}},
	}

	frag := fragmentFromResponse(resp)
	assert.Equal(t, "Hello", frag.Text)
	assert.Equal(t, []chat.Source{
		{URI: "https://a.example", Title: "A"},
		{URI: "https://b.example", Title: "B"},
	}, frag.Sources)
}

func TestFragmentFromResponseWithoutCandidates(t *testing.T) {
	assert.Equal(t, Fragment{}, fragmentFromResponse(nil))
	assert.Empty(t, fragmentFromResponse(&genai.GenerateContentResponse{}).Sources)
}

func TestNewGeminiBackendRequiresKey(t *testing.T) {
	_, err := NewGeminiBackend(t.Context(), config.AIConfig{Provider: config.ProviderGemini}, nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}
