package llm

import (
	"context"
	"sync"

	"aria/internal/assistant/ports"
)

// MockClient implements ports.LLMClient for tests. Responses are returned in
// FIFO order; when the queue is empty the fallback response is used.
type MockClient struct {
	mu        sync.Mutex
	queue     []mockReply
	fallback  *ports.CompletionResponse
	requests  []ports.CompletionRequest
	modelName string
}

type mockReply struct {
	resp *ports.CompletionResponse
	err  error
}

// NewMockClient constructs a mock with a plain-text fallback reply.
func NewMockClient() *MockClient {
	return &MockClient{
		fallback:  &ports.CompletionResponse{Content: "ok", StopReason: "stop"},
		modelName: "mock-model",
	}
}

// Enqueue adds a canned response.
func (m *MockClient) Enqueue(resp *ports.CompletionResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockReply{resp: resp})
}

// EnqueueError adds a canned failure.
func (m *MockClient) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockReply{err: err})
}

// EnqueueToolCall adds a response carrying a single function call.
func (m *MockClient) EnqueueToolCall(name, arguments string) {
	m.Enqueue(&ports.CompletionResponse{
		StopReason: "tool_calls",
		ToolCalls:  []ports.ToolCall{{ID: "call-1", Name: name, Arguments: arguments}},
	})
}

// Requests returns every request seen, in order.
func (m *MockClient) Requests() []ports.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ports.CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *MockClient) Complete(_ context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.queue) == 0 {
		return m.fallback, nil
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	if next.err != nil {
		return nil, next.err
	}
	return next.resp, nil
}

func (m *MockClient) Model() string { return m.modelName }
