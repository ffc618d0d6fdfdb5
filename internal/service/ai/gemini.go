package ai

import (
	"context"
	"fmt"
	"iter"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/zhouzirui/finbot/backend/internal/config"
	"github.com/zhouzirui/finbot/backend/internal/logging"
	"github.com/zhouzirui/finbot/backend/internal/model/chat"
)

// GeminiBackend streams answers from the Gemini API.
type GeminiBackend struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGeminiBackend creates a Gemini client from the API key in cfg.
func NewGeminiBackend(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (*GeminiBackend, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY is required", ErrConfiguration)
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.GeminiBaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.GeminiBaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiBackend{
		client: client,
		model:  cfg.GeminiModel,
		logger: logging.OrNop(logger),
	}, nil
}

func (b *GeminiBackend) Name() string { return "gemini:" + b.model }

// Stream runs a streaming generateContent call for req.
func (b *GeminiBackend) Stream(ctx context.Context, req Request) iter.Seq2[Fragment, error] {
	return func(yield func(Fragment, error) bool) {
		contents := buildContents(req)
		genCfg := buildGenerateConfig(req)

		b.logger.Debug("gemini stream start",
			zap.String("model", b.model),
			zap.Int("history", len(req.History)),
			zap.Bool("web_search", req.WebSearch),
		)

		for resp, err := range b.client.Models.GenerateContentStream(ctx, b.model, contents, genCfg) {
			if err != nil {
				yield(Fragment{}, fmt.Errorf("gemini stream: %w", err))
				return
			}
			if !yield(fragmentFromResponse(resp), nil) {
				return
			}
		}
	}
}

// buildContents replays history and appends the new user turn.
func buildContents(req Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		role := genai.Role(genai.RoleUser)
		if turn.Role == RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}
	return append(contents, genai.NewContentFromText(req.Text, genai.RoleUser))
}

// buildGenerateConfig leaves Tools nil unless web search is requested; the two
// request shapes must differ on the wire, not only in a flag value.
func buildGenerateConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Sampling.Temperature),
		TopP:        genai.Ptr(req.Sampling.TopP),
	}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if req.Sampling.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.Sampling.MaxTokens)
	}
	if req.WebSearch {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	return cfg
}

// fragmentFromResponse keeps the text delta and the web citations of the first candidate.
// Citations without a URI are dropped.
func fragmentFromResponse(resp *genai.GenerateContentResponse) Fragment {
	if resp == nil {
		return Fragment{}
	}

	frag := Fragment{Text: resp.Text()}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].GroundingMetadata == nil {
		return frag
	}

	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		frag.Sources = append(frag.Sources, chat.Source{URI: chunk.Web.URI, Title: chunk.Web.Title})
	}
	return frag
}
