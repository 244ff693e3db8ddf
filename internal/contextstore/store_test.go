package contextstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aria/internal/assistant/domain"
	"aria/internal/shared/logging"
)

func stores(t *testing.T) map[string]interface {
	Get(ctx context.Context, userID, sessionID string) (*domain.Conversation, bool, error)
	Put(ctx context.Context, conv *domain.Conversation) error
	Clear(ctx context.Context, userID, sessionID string) error
} {
	t.Helper()
	fileStore, err := NewFileStore(t.TempDir(), logging.Nop())
	require.NoError(t, err)
	return map[string]interface {
		Get(ctx context.Context, userID, sessionID string) (*domain.Conversation, bool, error)
		Put(ctx context.Context, conv *domain.Conversation) error
		Clear(ctx context.Context, userID, sessionID string) error
	}{
		"memory": NewMemoryStore(),
		"file":   fileStore,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, found, err := store.Get(ctx, "u1", "s1")
			require.NoError(t, err)
			assert.False(t, found)

			conv := domain.NewConversation("u1", "s1")
			conv.Append(domain.RoleSystem, "sys")
			conv.Append(domain.RoleUser, "hello")
			conv.SetPending(domain.ActionScheduleEvent, map[string]any{"dateTime": "tomorrow"})
			require.NoError(t, store.Put(ctx, conv))

			got, found, err := store.Get(ctx, "u1", "s1")
			require.NoError(t, err)
			require.True(t, found)
			require.Len(t, got.Messages, 2)
			assert.Equal(t, "hello", got.Messages[1].Content)
			require.NotNil(t, got.Pending)
			assert.Equal(t, domain.ActionScheduleEvent, got.Pending.Action)
			assert.Equal(t, "tomorrow", got.Pending.Params["dateTime"])
		})
	}
}

func TestClearIsIdempotent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			conv := domain.NewConversation("u1", "s1")
			conv.SetPending(domain.ActionSendEmail, map[string]any{"subject": "x"})
			require.NoError(t, store.Put(ctx, conv))

			require.NoError(t, store.Clear(ctx, "u1", "s1"))
			require.NoError(t, store.Clear(ctx, "u1", "s1"), "second clear must be a no-op")

			_, found, err := store.Get(ctx, "u1", "s1")
			require.NoError(t, err)
			assert.False(t, found, "no residual state after clear")
		})
	}
}

func TestKeysAreIsolated(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := domain.NewConversation("u1", "s1")
			a.Append(domain.RoleUser, "a")
			b := domain.NewConversation("u1", "s2")
			b.Append(domain.RoleUser, "b")
			require.NoError(t, store.Put(ctx, a))
			require.NoError(t, store.Put(ctx, b))

			require.NoError(t, store.Clear(ctx, "u1", "s1"))
			got, found, err := store.Get(ctx, "u1", "s2")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, "b", got.Messages[0].Content)
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	conv := domain.NewConversation("u1", "s1")
	conv.Append(domain.RoleUser, "original")
	require.NoError(t, store.Put(ctx, conv))

	got, _, err := store.Get(ctx, "u1", "s1")
	require.NoError(t, err)
	got.Messages[0].Content = "mutated"

	again, _, err := store.Get(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "original", again.Messages[0].Content)
}

func TestFileStoreSessions(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), logging.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, domain.NewConversation("u1", "s1")))
	require.NoError(t, store.Put(ctx, domain.NewConversation("u1", "s2")))
	require.NoError(t, store.Put(ctx, domain.NewConversation("u2", "other")))

	sessions, err := store.Sessions("u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, sessions)
}
