package providers

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
)

func TestToGeminiContents(t *testing.T) {
	contents := toGeminiContents([]Message{
		{Role: RoleUser, Content: "review"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{
			{ID: "call_0", Name: "search_owasp", Input: map[string]any{"query": "xss"}},
			{ID: "call_1", Name: "scrape_page", Input: map[string]any{"url": "u"}},
		}},
		{Role: RoleTool, ToolCallID: "call_0", ToolName: "search_owasp", Content: "r1"},
		{Role: RoleTool, ToolCallID: "call_1", ToolName: "scrape_page", Content: "r2"},
	})

	if len(contents) != 3 {
		t.Fatalf("got %d contents, want 3", len(contents))
	}
	if contents[1].Role != "model" {
		t.Errorf("assistant role = %q, want model", contents[1].Role)
	}
	if len(contents[2].Parts) != 2 {
		t.Fatalf("function responses = %d parts, want 2", len(contents[2].Parts))
	}
	fr, ok := contents[2].Parts[0].(genai.FunctionResponse)
	if !ok {
		t.Fatalf("part type = %T", contents[2].Parts[0])
	}
	if fr.Name != "search_owasp" || fr.Response["result"] != "r1" {
		t.Errorf("function response = %+v", fr)
	}
}

func TestToGeminiSchema(t *testing.T) {
	s := toGeminiSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "search terms"},
		},
		"required": []any{"query"},
	})
	if s.Type != genai.TypeObject {
		t.Errorf("Type = %v", s.Type)
	}
	if s.Properties["query"].Type != genai.TypeString {
		t.Errorf("query type = %v", s.Properties["query"].Type)
	}
	if len(s.Required) != 1 || s.Required[0] != "query" {
		t.Errorf("Required = %v", s.Required)
	}
	if toGeminiSchema(nil) != nil {
		t.Error("nil schema should convert to nil")
	}
}

func TestFromGemini(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{
				genai.Text("checking "),
				genai.FunctionCall{Name: "search_owasp", Args: map[string]any{"query": "csrf"}},
			}},
		}},
		UsageMetadata: &genai.UsageMetadata{TotalTokenCount: 75},
	}
	out := fromGemini(resp)
	if out.Text != "checking " {
		t.Errorf("Text = %q", out.Text)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].ID != "call_0" {
		t.Errorf("ToolCalls = %+v", out.ToolCalls)
	}
	if out.TokensUsed != 75 {
		t.Errorf("TokensUsed = %d, want 75", out.TokensUsed)
	}
}

func TestNewGemini_MissingKey(t *testing.T) {
	if _, err := NewGemini("gemini-2.0-flash", Options{}); !IsAuthError(err) {
		t.Errorf("expected auth error, got %v", err)
	}
}
