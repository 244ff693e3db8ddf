package auth

import (
	"context"
	"sync"
)

// MemoryStore is a PrincipalStore for tests and single-process deployments.
type MemoryStore struct {
	mu         sync.RWMutex
	principals map[string]Principal
}

// NewMemoryStore constructs an empty in-memory principal store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{principals: make(map[string]Principal)}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.principals[userID]
	if !ok {
		return Principal{}, ErrPrincipalNotFound
	}
	return p, nil
}

func (s *MemoryStore) Upsert(_ context.Context, p Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principals[p.UserID] = p
	return nil
}
