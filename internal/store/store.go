// Package store archives frozen chat messages.
package store

import (
	"context"

	"github.com/zhouzirui/finbot/backend/internal/model/chat"
)

// Repository persists finished transcript messages per session.
type Repository interface {
	// SaveMessage inserts or replaces a message keyed by its ID.
	SaveMessage(ctx context.Context, msg chat.Message) error

	// ListMessages returns a session's messages in creation order.
	ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error)

	// DeleteSession removes every message recorded for the session.
	DeleteSession(ctx context.Context, sessionID string) error

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases the backing storage.
	Close() error
}
