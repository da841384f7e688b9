package llm

import (
	"context"
	"sync"
	"time"
)

// MockProvider implements Provider for tests. It returns FixedContent and
// records every call.
type MockProvider struct {
	FixedContent string
	PingErr      error
	GenerateErr  error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall is one recorded Chat invocation.
type MockCall struct {
	System   string
	Messages []Message
	Options  Options
}

// NewMockProvider creates a mock provider with a canned reply.
func NewMockProvider(content string) *MockProvider {
	return &MockProvider{FixedContent: content}
}

func (p *MockProvider) Name() string { return "Mock" }

func (p *MockProvider) Ping(_ context.Context) error {
	return p.PingErr
}

func (p *MockProvider) Chat(_ context.Context, systemPrompt string, messages []Message, opts Options) (*Response, error) {
	p.mu.Lock()
	p.calls = append(p.calls, MockCall{
		System:   systemPrompt,
		Messages: append([]Message(nil), messages...),
		Options:  opts,
	})
	p.mu.Unlock()

	if p.GenerateErr != nil {
		return nil, p.GenerateErr
	}
	return &Response{
		Content:    p.FixedContent,
		Model:      "mock",
		TokensUsed: 100,
		Duration:   time.Millisecond,
		StopReason: "stop",
	}, nil
}

// Calls returns the recorded calls in order.
func (p *MockProvider) Calls() []MockCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]MockCall(nil), p.calls...)
}
