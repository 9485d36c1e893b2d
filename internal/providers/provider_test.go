package providers

import (
	"context"
	"errors"
	"testing"
)

func TestParseModelID(t *testing.T) {
	tests := []struct {
		id           string
		wantProvider string
		wantName     string
		wantErr      bool
	}{
		{"gemini/gemini-2.0-flash", "gemini", "gemini-2.0-flash", false},
		{"google/gemini-1.5-pro", "gemini", "gemini-1.5-pro", false},
		{"anthropic/claude-sonnet-4-20250514", "anthropic", "claude-sonnet-4-20250514", false},
		{"ollama/qwen2.5-coder", "ollama", "qwen2.5-coder", false},
		{"gpt-4o-mini", "openai", "gpt-4o-mini", false},
		{"claude-haiku-4-5", "anthropic", "claude-haiku-4-5", false},
		{"gemini-2.0-flash", "gemini", "gemini-2.0-flash", false},
		{"mystery-model", "", "", true},
		{"openai/", "", "", true},
		{"", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			p, n, err := ParseModelID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if p != tt.wantProvider || n != tt.wantName {
				t.Errorf("got (%q, %q), want (%q, %q)", p, n, tt.wantProvider, tt.wantName)
			}
		})
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	if _, err := New("bogus/model", Options{APIKey: "k"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNew_SelectsAdapter(t *testing.T) {
	m, err := New("anthropic/claude-sonnet-4-20250514", Options{APIKey: "k"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if m.Name() != "anthropic" {
		t.Errorf("Name = %q", m.Name())
	}
}

func TestRetryWithBackoff_AuthNotRetried(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), 3, func() error {
		calls++
		return &authError{message: "nope"}
	})
	if !IsAuthError(err) {
		t.Errorf("expected auth error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryWithBackoff_OtherErrorsNotRetried(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := retryWithBackoff(context.Background(), 3, func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestMockChatModel_SequenceAndRepeat(t *testing.T) {
	m := &MockChatModel{Responses: []ChatOut{{Text: "one"}, {Text: "two"}}}
	ctx := context.Background()
	for _, want := range []string{"one", "two", "two"} {
		out, err := m.Chat(ctx, nil, nil)
		if err != nil {
			t.Fatalf("Chat error: %v", err)
		}
		if out.Text != want {
			t.Errorf("Text = %q, want %q", out.Text, want)
		}
	}
	if len(m.Calls()) != 3 {
		t.Errorf("recorded %d calls, want 3", len(m.Calls()))
	}
}
