package ports

import (
	"context"

	"aria/internal/assistant/domain"
)

// ContextStore is the conversation persistence capability handed to the
// orchestrator by its caller. The core defines the trimming and merging
// algorithms; the store only moves records by key.
type ContextStore interface {
	// Get returns the conversation for the key, or found=false when the
	// session has no state yet.
	Get(ctx context.Context, userID, sessionID string) (conv *domain.Conversation, found bool, err error)

	// Put stores the conversation under its own key.
	Put(ctx context.Context, conv *domain.Conversation) error

	// Clear removes all state for the key. Clearing an absent key is a no-op.
	Clear(ctx context.Context, userID, sessionID string) error
}
