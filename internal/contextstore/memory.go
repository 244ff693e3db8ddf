// Package contextstore provides conversation store implementations behind
// the ports.ContextStore capability.
package contextstore

import (
	"context"
	"sync"

	"aria/internal/assistant/domain"
)

// MemoryStore is a lightweight ContextStore for tests and single-process
// deployments.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*domain.Conversation
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string]*domain.Conversation)}
}

func storeKey(userID, sessionID string) string {
	return userID + "\x00" + sessionID
}

func (s *MemoryStore) Get(_ context.Context, userID, sessionID string) (*domain.Conversation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[storeKey(userID, sessionID)]
	if !ok {
		return nil, false, nil
	}
	return cloneConversation(conv), true, nil
}

func (s *MemoryStore) Put(_ context.Context, conv *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[storeKey(conv.UserID, conv.SessionID)] = cloneConversation(conv)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, storeKey(userID, sessionID))
	return nil
}

// cloneConversation guards against callers mutating shared state after a
// Get/Put crosses the store boundary.
func cloneConversation(conv *domain.Conversation) *domain.Conversation {
	out := *conv
	out.Messages = make([]domain.Message, len(conv.Messages))
	copy(out.Messages, conv.Messages)
	if conv.Pending != nil {
		pending := *conv.Pending
		pending.Params = make(map[string]any, len(conv.Pending.Params))
		for k, v := range conv.Pending.Params {
			pending.Params[k] = v
		}
		out.Pending = &pending
	}
	return &out
}
