package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/m4xw311/rulesql/errors"
	"github.com/m4xw311/rulesql/session"
	"github.com/m4xw311/rulesql/tools"
)

// LLMClient is the interface for interacting with a Large Language Model.
// system holds the agent instructions; messages is the conversation so far.
type LLMClient interface {
	Chat(ctx context.Context, system string, messages []session.Message, availableTools []tools.Tool) (*session.Message, error)
}

// NewClient creates the client for the named provider.
func NewClient(ctx context.Context, provider, model string) (LLMClient, error) {
	switch provider {
	case "openai":
		return NewOpenAILLMClient(ctx, model)
	case "anthropic":
		return NewAnthropicLLMClient(ctx, model)
	case "gemini":
		return NewGeminiLLMClient(ctx, model)
	case "bedrock":
		return NewBedrockLLMClient(ctx, model)
	case "mock":
		return &MockLLMClient{}, nil
	default:
		return nil, errors.Mark(errors.New("unknown llm client '%s'", provider), errors.ErrConfig)
	}
}

// MockLLMClient replays scripted responses in order. Once they run out it
// parrots the last message back, which makes it usable without an API key.
type MockLLMClient struct {
	Responses []*session.Message
	Err       error

	mu    sync.Mutex
	calls [][]session.Message
}

func (m *MockLLMClient) Chat(ctx context.Context, system string, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, append([]session.Message(nil), messages...))
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Responses) > 0 {
		resp := *m.Responses[0]
		m.Responses = m.Responses[1:]
		return &resp, nil
	}

	last := ""
	if len(messages) > 0 {
		last = messages[len(messages)-1].Content
	}
	return &session.Message{
		Role:    session.RoleAssistant,
		Content: fmt.Sprintf("I am a mock LLM. You said: '%s'.", last),
	}, nil
}

// Calls returns the message histories the mock has received.
func (m *MockLLMClient) Calls() [][]session.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]session.Message(nil), m.calls...)
}
