package ai

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/finbot/backend/internal/config"
	"github.com/zhouzirui/finbot/backend/internal/logging"
	"github.com/zhouzirui/finbot/backend/internal/model/persona"
)

// ErrConfiguration means the generation service credentials are missing.
// It is fatal for session creation and must not be retried.
var ErrConfiguration = errors.New("generation service is not configured")

// Service opens persona-bound conversations against the configured backend.
type Service struct {
	backend  Backend
	sampling Sampling
	prompts  *PersonaPromptManager
	logger   *zap.Logger
}

// NewService builds the backend selected by cfg.Provider.
func NewService(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (*Service, error) {
	logger = logging.OrNop(logger)
	if !cfg.Enabled() {
		return nil, fmt.Errorf("%w: missing credentials for provider %q", ErrConfiguration, cfg.Provider)
	}

	var (
		backend Backend
		err     error
	)
	switch cfg.Provider {
	case config.ProviderArk:
		backend, err = NewArkBackend(ctx, cfg, logger)
	default:
		backend, err = NewGeminiBackend(ctx, cfg, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", cfg.Provider, err)
	}

	sampling := Sampling{
		Temperature: float32(cfg.Temperature),
		TopP:        float32(cfg.TopP),
	}
	if cfg.MaxTokens != nil {
		sampling.MaxTokens = *cfg.MaxTokens
	}

	return NewServiceWithBackend(backend, sampling, logger), nil
}

// NewServiceWithBackend wires an already constructed backend.
func NewServiceWithBackend(backend Backend, sampling Sampling, logger *zap.Logger) *Service {
	return &Service{
		backend:  backend,
		sampling: sampling,
		prompts:  NewPersonaPromptManager(),
		logger:   logging.OrNop(logger),
	}
}

// NewConversation opens a fresh handle bound to p's system instruction.
// A nil Service reports ErrConfiguration so callers can hold an unconfigured *Service.
func (s *Service) NewConversation(p persona.Persona) (*Conversation, error) {
	if s == nil || s.backend == nil {
		return nil, ErrConfiguration
	}

	conv := &Conversation{
		persona:     p,
		instruction: s.prompts.BuildSystemPrompt(p),
		sampling:    s.sampling,
		backend:     s.backend,
	}

	s.logger.Debug("conversation opened",
		zap.String("persona", p.ID),
		zap.String("backend", s.backend.Name()),
	)
	return conv, nil
}

// BackendName reports which generation backend is active.
func (s *Service) BackendName() string {
	if s == nil || s.backend == nil {
		return ""
	}
	return s.backend.Name()
}
