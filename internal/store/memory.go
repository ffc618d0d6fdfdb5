package store

import (
	"context"
	"sync"

	"github.com/zhouzirui/finbot/backend/internal/model/chat"
)

// MemoryStore keeps archived messages in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]chat.Message
}

// NewMemory returns an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{messages: make(map[string][]chat.Message)}
}

func (s *MemoryStore) SaveMessage(_ context.Context, msg chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.messages[msg.SessionID]
	for i := range list {
		if list[i].ID == msg.ID {
			list[i] = msg.Clone()
			return nil
		}
	}
	s.messages[msg.SessionID] = append(list, msg.Clone())
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.messages[sessionID]
	out := make([]chat.Message, len(list))
	for i, msg := range list {
		out[i] = msg.Clone()
	}
	return out, nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.messages, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
