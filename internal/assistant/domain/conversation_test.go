package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimPreservesSystemMessage(t *testing.T) {
	conv := NewConversation("u1", "s1")
	conv.Append(RoleSystem, "you are a scheduling assistant")
	for i := 0; i < 15; i++ {
		conv.Append(RoleUser, fmt.Sprintf("message %d", i))
	}

	conv.Trim(10)

	require.Len(t, conv.Messages, 10)
	assert.Equal(t, RoleSystem, conv.Messages[0].Role)
	// The 9 most recent non-system messages survive, oldest first.
	assert.Equal(t, "message 6", conv.Messages[1].Content)
	assert.Equal(t, "message 14", conv.Messages[9].Content)
}

func TestTrimWithoutSystemMessage(t *testing.T) {
	conv := NewConversation("u1", "s1")
	for i := 0; i < 12; i++ {
		conv.Append(RoleUser, fmt.Sprintf("m%d", i))
	}
	conv.Trim(5)

	require.Len(t, conv.Messages, 5)
	assert.Equal(t, "m7", conv.Messages[0].Content)
	assert.Equal(t, "m11", conv.Messages[4].Content)
}

func TestTrimUnderBudgetIsNoOp(t *testing.T) {
	conv := NewConversation("u1", "s1")
	conv.Append(RoleUser, "hello")
	conv.Trim(10)
	require.Len(t, conv.Messages, 1)

	conv.Trim(0) // disabled
	require.Len(t, conv.Messages, 1)
}

func TestTrimToTokenBudgetKeepsSystem(t *testing.T) {
	conv := NewConversation("u1", "s1")
	conv.Append(RoleSystem, "system instruction that is fairly long for its budget")
	for i := 0; i < 6; i++ {
		conv.Append(RoleUser, "a reasonably long user utterance about scheduling meetings")
	}

	conv.TrimToTokenBudget(of(t, conv))

	require.NotEmpty(t, conv.Messages)
	assert.Equal(t, RoleSystem, conv.Messages[0].Role)
}

// of returns a budget smaller than the current conversation so the trim has
// to evict at least one message.
func of(t *testing.T, conv *Conversation) int {
	t.Helper()
	total := conv.TokenCount()
	require.Greater(t, total, 1)
	return total - 1
}

func TestRecentExcludesSystem(t *testing.T) {
	conv := NewConversation("u1", "s1")
	conv.Append(RoleSystem, "sys")
	conv.Append(RoleUser, "one")
	conv.Append(RoleAssistant, "two")
	conv.Append(RoleUser, "three")

	recent := conv.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "two", recent[0].Content)
	assert.Equal(t, "three", recent[1].Content)
}

func TestPendingLifecycle(t *testing.T) {
	conv := NewConversation("u1", "s1")
	conv.SetPending(ActionScheduleEvent, map[string]any{"dateTime": "tomorrow"})
	require.NotNil(t, conv.Pending)
	assert.Equal(t, ActionScheduleEvent, conv.Pending.Action)

	conv.ClearPending()
	assert.Nil(t, conv.Pending)
	conv.ClearPending() // idempotent
	assert.Nil(t, conv.Pending)
}
