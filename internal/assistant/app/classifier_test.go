package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"aria/internal/assistant/domain"
	"aria/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classifierConv(utterance string) *domain.Conversation {
	conv := domain.NewConversation("u1", "s1")
	conv.Append(domain.RoleUser, utterance)
	return conv
}

func TestClassifyToolCall(t *testing.T) {
	mock := llm.NewMockClient()
	mock.EnqueueToolCall("schedule_event", `{"title":"Budget Review","dateTime":"2026-09-01T14:00:00Z","confidence":0.92}`)

	c := NewClassifier(mock, nil)
	cls := c.Classify(context.Background(), classifierConv("schedule a budget review tomorrow at 2"), "UTC")

	assert.Equal(t, domain.ActionScheduleEvent, cls.Intent.Action)
	assert.InDelta(t, 0.92, cls.Intent.Confidence, 1e-9)
	assert.Equal(t, "Budget Review", cls.Intent.Param("title"))
	_, hasConfidence := cls.Intent.Params["confidence"]
	assert.False(t, hasConfidence, "confidence should not leak into parameters")

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Len(t, reqs[0].Tools, 7)
}

func TestClassifyConversationalReply(t *testing.T) {
	mock := llm.NewMockClient()
	c := NewClassifier(mock, nil)

	// Fallback response is plain text with no tool calls.
	cls := c.Classify(context.Background(), classifierConv("good morning!"), "")
	assert.Equal(t, domain.ActionNone, cls.Intent.Action)
	assert.False(t, cls.Intent.Executable())
	assert.Equal(t, "ok", cls.Reply)
}

func TestClassifySoftFailsOnProviderError(t *testing.T) {
	mock := llm.NewMockClient()
	mock.EnqueueError(context.DeadlineExceeded)

	c := NewClassifier(mock, nil)
	cls := c.Classify(context.Background(), classifierConv("schedule a meeting"), "")
	assert.Equal(t, domain.NoneIntent(), cls.Intent)
}

func TestClassifyRepairsMalformedArguments(t *testing.T) {
	mock := llm.NewMockClient()
	mock.EnqueueToolCall("schedule_event", `{"title": "Standup", "dateTime": "2026-09-01T09:00:00Z", "confidence": 0.8,}`)

	c := NewClassifier(mock, nil)
	cls := c.Classify(context.Background(), classifierConv("set up standup"), "")
	assert.Equal(t, domain.ActionScheduleEvent, cls.Intent.Action)
	assert.Equal(t, "Standup", cls.Intent.Param("title"))
}

func TestClassifyUnknownFunctionIsConversational(t *testing.T) {
	mock := llm.NewMockClient()
	mock.EnqueueToolCall("book_flight", `{"confidence":0.9}`)

	c := NewClassifier(mock, nil)
	cls := c.Classify(context.Background(), classifierConv("book me a flight"), "")
	assert.Equal(t, domain.NoneIntent(), cls.Intent)
}

func TestClassifyProxyConfidenceWhenUnreported(t *testing.T) {
	mock := llm.NewMockClient()
	mock.EnqueueToolCall("schedule_event", `{"title":"1:1","dateTime":"2026-09-01T10:00:00Z"}`)
	mock.EnqueueToolCall("schedule_event", `{"title":"1:1"}`)

	c := NewClassifier(mock, nil)

	complete := c.Classify(context.Background(), classifierConv("schedule my 1:1"), "")
	assert.InDelta(t, 0.75, complete.Intent.Confidence, 1e-9)
	assert.True(t, complete.Intent.Executable())

	partial := c.Classify(context.Background(), classifierConv("schedule my 1:1"), "")
	assert.InDelta(t, 0.5, partial.Intent.Confidence, 1e-9)
	assert.False(t, partial.Intent.Executable())
}

func TestClassifyPendingBiasReachesPrompt(t *testing.T) {
	mock := llm.NewMockClient()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	c := NewClassifier(mock, nil, WithClassifierNow(func() time.Time { return now }))

	conv := classifierConv("call it budget review")
	conv.SetPending(domain.ActionScheduleEvent, map[string]any{"dateTime": "2026-09-01T14:00:00Z"})
	c.Classify(context.Background(), conv, "America/New_York")

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	system := reqs[0].Messages[0].Content
	assert.True(t, strings.Contains(system, "schedule_event"), "pending action named in prompt")
	assert.True(t, strings.Contains(system, "America/New_York"))
	assert.True(t, strings.Contains(system, "2026-08-30T12:00:00Z"))
}
