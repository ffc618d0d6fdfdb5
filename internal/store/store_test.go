package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/finbot/backend/internal/model/chat"
)

func repositories(t *testing.T) map[string]Repository {
	t.Helper()

	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "data", "transcripts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Repository{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func TestRepositoryRoundTrip(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.Ping(ctx))

			user := chat.Message{ID: "m1", SessionID: "s1", Sender: chat.SenderUser, Text: "How do I start a Roth IRA?", State: chat.StateFrozen, CreatedAt: base}
			bot := chat.Message{
				ID: "m2", SessionID: "s1", Sender: chat.SenderBot, Text: "Open an account with a broker.",
				Sources:   []chat.Source{{URI: "https://irs.gov/roth", Title: "Roth IRAs"}},
				State:     chat.StateFrozen,
				CreatedAt: base.Add(time.Second),
			}
			other := chat.Message{ID: "m3", SessionID: "s2", Sender: chat.SenderUser, Text: "hi", State: chat.StateFrozen, CreatedAt: base}

			require.NoError(t, repo.SaveMessage(ctx, user))
			require.NoError(t, repo.SaveMessage(ctx, bot))
			require.NoError(t, repo.SaveMessage(ctx, other))

			got, err := repo.ListMessages(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "m1", got[0].ID)
			assert.Equal(t, chat.SenderBot, got[1].Sender)
			assert.Equal(t, bot.Sources, got[1].Sources)
			assert.True(t, got[1].CreatedAt.Equal(bot.CreatedAt))

			bot.Text = "Sorry, I encountered an error. Please try again."
			bot.Sources = nil
			bot.State = chat.StateFailed
			require.NoError(t, repo.SaveMessage(ctx, bot))

			got, err = repo.ListMessages(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, chat.StateFailed, got[1].State)
			assert.Empty(t, got[1].Sources)

			require.NoError(t, repo.DeleteSession(ctx, "s1"))
			got, err = repo.ListMessages(ctx, "s1")
			require.NoError(t, err)
			assert.Empty(t, got)

			got, err = repo.ListMessages(ctx, "s2")
			require.NoError(t, err)
			assert.Len(t, got, 1)
		})
	}
}
