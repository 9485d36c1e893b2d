package providers

import (
	"context"
	"sync"
)

// MockChatModel is a ChatModel for tests. Handler, when set, computes each
// reply; otherwise Responses are returned in order and the last one repeats.
// Err short-circuits every call.
type MockChatModel struct {
	Responses []ChatOut
	Handler   func(messages []Message, tools []ToolSpec) (ChatOut, error)
	Err       error

	mu        sync.Mutex
	calls     []MockChatCall
	callIndex int
}

// MockChatCall records one Chat invocation.
type MockChatCall struct {
	Messages []Message
	Tools    []ToolSpec
}

func (m *MockChatModel) Name() string { return "mock" }

func (m *MockChatModel) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}

	m.mu.Lock()
	m.calls = append(m.calls, MockChatCall{
		Messages: append([]Message(nil), messages...),
		Tools:    tools,
	})
	handler := m.Handler
	m.mu.Unlock()

	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if handler != nil {
		return handler(messages, tools)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}
	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// Calls returns a copy of the recorded invocations.
func (m *MockChatModel) Calls() []MockChatCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockChatCall(nil), m.calls...)
}
