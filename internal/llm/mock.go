package llm

import (
	"context"
	"sync"

	"otto/internal/ports"
)

// MockClient is a scripted LLM for tests. Responses are consumed in order;
// the last one repeats once the script runs out.
type MockClient struct {
	mu        sync.Mutex
	responses []string
	err       error
	requests  []ports.CompletionRequest
}

// NewMockClient scripts the given responses.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{responses: responses}
}

// FailWith makes every Complete call return err.
func (m *MockClient) FailWith(err error) *MockClient {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
	return m
}

func (m *MockClient) Model() string { return "mock" }

func (m *MockClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return &ports.CompletionResponse{Content: ""}, nil
	}
	content := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return &ports.CompletionResponse{Content: content, TokensUsed: len(content) / 4}, nil
}

// Requests returns every request seen so far.
func (m *MockClient) Requests() []ports.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ports.CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

var _ ports.LLMClient = (*MockClient)(nil)
