package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestAnthropic(t *testing.T, handler http.HandlerFunc) *Anthropic {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	a, err := NewAnthropic("claude-sonnet-4-20250514", Options{
		APIKey:    "test-key",
		BaseURL:   server.URL,
		MaxTokens: 64,
	})
	if err != nil {
		t.Fatalf("NewAnthropic error: %v", err)
	}
	return a
}

func TestAnthropic_Chat(t *testing.T) {
	a := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Error("Missing API key header")
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if body["model"] != "claude-sonnet-4-20250514" {
			t.Errorf("model = %v", body["model"])
		}
		if _, ok := body["system"]; !ok {
			t.Error("system prompt should be sent as a separate parameter")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-20250514",
			"content":[{"type":"text","text":"{\"critical_issues\":[]}"}],
			"stop_reason":"end_turn","usage":{"input_tokens":100,"output_tokens":10}}`)
	})

	out, err := a.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "You are a reviewer."},
		{Role: RoleUser, Content: "review this"},
	}, nil)
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if out.Text != `{"critical_issues":[]}` {
		t.Errorf("Text = %q", out.Text)
	}
	if out.TokensUsed != 110 {
		t.Errorf("TokensUsed = %d, want 110", out.TokensUsed)
	}
}

func TestAnthropic_ToolUse(t *testing.T) {
	a := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Tools) != 1 || body.Tools[0].Name != "search_owasp" {
			t.Errorf("tools = %+v", body.Tools)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_2","type":"message","role":"assistant","model":"m",
			"content":[{"type":"tool_use","id":"toolu_1","name":"search_owasp","input":{"query":"sql injection"}}],
			"stop_reason":"tool_use","usage":{"input_tokens":1,"output_tokens":1}}`)
	})

	out, err := a.Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, []ToolSpec{{
		Name:        "search_owasp",
		Description: "search",
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"query": map[string]any{"type": "string"}},
			"required":   []string{"query"},
		},
	}})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if len(out.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(out.ToolCalls))
	}
	call := out.ToolCalls[0]
	if call.ID != "toolu_1" || call.Name != "search_owasp" || call.Input["query"] != "sql injection" {
		t.Errorf("tool call = %+v", call)
	}
}

func TestAnthropic_AuthError(t *testing.T) {
	a := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(401)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	})

	_, err := a.Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, nil)
	if err == nil {
		t.Fatal("Expected auth error")
	}
	if !IsAuthError(err) {
		t.Errorf("Expected auth error, got: %v", err)
	}
}

func TestAnthropic_RetriesRateLimit(t *testing.T) {
	orig := backoffUnit
	backoffUnit = time.Millisecond
	defer func() { backoffUnit = orig }()

	var calls int32
	a := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(429)
			_, _ = io.WriteString(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":"m","type":"message","role":"assistant","model":"m",
			"content":[{"type":"text","text":"ok"}],"usage":{"input_tokens":1,"output_tokens":1}}`)
	})

	out, err := a.Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, nil)
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if out.Text != "ok" {
		t.Errorf("Text = %q, want ok", out.Text)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestNewAnthropic_MissingKey(t *testing.T) {
	_, err := NewAnthropic("claude", Options{})
	if !IsAuthError(err) {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestToAnthropicMessages_FoldsToolResults(t *testing.T) {
	msgs := toAnthropicMessages([]Message{
		{Role: RoleUser, Content: "review"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{
			{ID: "a", Name: "search_owasp", Input: map[string]any{"query": "q"}},
			{ID: "b", Name: "scrape_page", Input: map[string]any{"url": "https://owasp.org"}},
		}},
		{Role: RoleTool, ToolCallID: "a", ToolName: "search_owasp", Content: "r1"},
		{Role: RoleTool, ToolCallID: "b", ToolName: "scrape_page", Content: "r2"},
	})
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if len(msgs[2].Content) != 2 {
		t.Errorf("tool results turn has %d blocks, want 2", len(msgs[2].Content))
	}
}
