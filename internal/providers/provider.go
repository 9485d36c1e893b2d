package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Message roles understood by every adapter.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of a chat conversation.
//
// Assistant turns may carry ToolCalls; tool turns carry the result of a
// single call in Content and identify it with ToolCallID and ToolName.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	ToolName   string
}

// ToolSpec describes a tool the model may call. Schema is a JSON Schema
// object with "properties" and optional "required".
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// ToolCall is a model request to invoke a tool.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// ChatOut is the model's reply: text, tool calls, or both.
type ChatOut struct {
	Text       string
	ToolCalls  []ToolCall
	TokensUsed int
}

// ChatModel is the provider abstraction interface.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
	Name() string
}

// Options configures a provider. APIKey is required for every provider
// except ollama.
type Options struct {
	APIKey     string
	MaxTokens  int
	BaseURL    string
	HTTPClient *http.Client
}

func (o Options) maxTokens() int {
	if o.MaxTokens > 0 {
		return o.MaxTokens
	}
	return 4096
}

// ParseModelID splits a "provider/name" model identifier. Bare names are
// matched to a provider by their well-known prefix.
func ParseModelID(id string) (provider, name string, err error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", "", fmt.Errorf("model identifier is empty")
	}
	if p, n, ok := strings.Cut(id, "/"); ok {
		if n == "" {
			return "", "", fmt.Errorf("model identifier %q has no model name", id)
		}
		return normalizeProvider(p), n, nil
	}
	switch {
	case strings.HasPrefix(id, "gemini"):
		return "gemini", id, nil
	case strings.HasPrefix(id, "claude"):
		return "anthropic", id, nil
	case strings.HasPrefix(id, "gpt"), strings.HasPrefix(id, "o1"), strings.HasPrefix(id, "o3"), strings.HasPrefix(id, "o4"):
		return "openai", id, nil
	}
	return "", "", fmt.Errorf("cannot infer provider for model %q (use provider/model)", id)
}

func normalizeProvider(p string) string {
	switch strings.ToLower(p) {
	case "google":
		return "gemini"
	case "lmstudio":
		return "ollama"
	default:
		return strings.ToLower(p)
	}
}

// New creates a chat model from a "provider/name" identifier.
func New(modelID string, opts Options) (ChatModel, error) {
	provider, name, err := ParseModelID(modelID)
	if err != nil {
		return nil, err
	}
	switch provider {
	case "anthropic":
		return NewAnthropic(name, opts)
	case "openai":
		return NewOpenAI(name, opts)
	case "gemini":
		return NewGemini(name, opts)
	case "ollama":
		return NewOllama(name, opts)
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}

// KeyEnvVars returns the environment variables consulted for a provider's
// API key, in precedence order.
func KeyEnvVars(provider string) []string {
	switch provider {
	case "anthropic":
		return []string{"ANTHROPIC_API_KEY"}
	case "openai":
		return []string{"OPENAI_API_KEY"}
	case "gemini":
		return []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	default:
		return nil
	}
}

// RequiresKey reports whether the provider needs an API key.
func RequiresKey(provider string) bool {
	return provider != "ollama"
}
