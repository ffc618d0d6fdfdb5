package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zhouzirui/finbot/backend/internal/config"
	"github.com/zhouzirui/finbot/backend/internal/model/persona"
	"github.com/zhouzirui/finbot/backend/internal/service/ai"
)

func TestInitAIWithoutCredentials(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	svc, err := initAI(context.Background(), config.AIConfig{Provider: config.ProviderGemini}, zap.New(core))
	require.NoError(t, err)
	assert.Nil(t, svc)
	assert.Equal(t, 1, logs.FilterMessage("AI credentials missing, sessions will be rejected until configured").Len())

	_, err = svc.NewConversation(persona.Seed()[0])
	assert.ErrorIs(t, err, ai.ErrConfiguration)
}

func TestOpenArchiveDefaultsToMemory(t *testing.T) {
	archive, err := openArchive(config.StoreConfig{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = archive.Close() })
	assert.NoError(t, archive.Ping(context.Background()))
}
