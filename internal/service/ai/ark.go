package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/finbot/backend/internal/config"
	"github.com/zhouzirui/finbot/backend/internal/logging"
)

// ArkBackend streams answers from a Volcengine Ark model through an eino chain.
// Ark has no search grounding, so its fragments never carry sources.
type ArkBackend struct {
	model  string
	chain  compose.Runnable[map[string]any, *schema.Message]
	logger *zap.Logger
}

// NewArkBackend compiles the system + history + query chain over the Ark chat model.
func NewArkBackend(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (*ArkBackend, error) {
	chatModel, err := cfg.NewArkChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ArkBackend{
		model:  cfg.ArkModel,
		chain:  runnable,
		logger: logging.OrNop(logger),
	}, nil
}

func (b *ArkBackend) Name() string { return "ark:" + b.model }

// Stream runs the chain in streaming mode. A web search request is answered ungrounded.
func (b *ArkBackend) Stream(ctx context.Context, req Request) iter.Seq2[Fragment, error] {
	return func(yield func(Fragment, error) bool) {
		if req.WebSearch {
			b.logger.Warn("web search requested but ark backend has no grounding; answering without it",
				zap.String("model", b.model))
		}

		stream, err := b.chain.Stream(ctx, buildArkInput(req))
		if err != nil {
			yield(Fragment{}, fmt.Errorf("failed to stream AI chain output: %w", err))
			return
		}
		defer stream.Close()

		for {
			chunk, recvErr := stream.Recv()
			if errors.Is(recvErr, io.EOF) {
				return
			}
			if recvErr != nil {
				yield(Fragment{}, fmt.Errorf("ark stream recv: %w", recvErr))
				return
			}
			if chunk == nil || chunk.Content == "" {
				continue
			}
			if !yield(Fragment{Text: chunk.Content}, nil) {
				return
			}
		}
	}
}

// buildArkInput maps the request onto the chain's template variables.
func buildArkInput(req Request) map[string]any {
	history := make([]*schema.Message, 0, len(req.History))
	for _, turn := range req.History {
		switch turn.Role {
		case RoleUser:
			history = append(history, schema.UserMessage(turn.Text))
		case RoleModel:
			history = append(history, schema.AssistantMessage(turn.Text, nil))
		}
	}

	return map[string]any{
		"system":  req.SystemInstruction,
		"history": history,
		"query":   req.Text,
	}
}
