package providers

import (
	"strings"
)

const defaultOllamaURL = "http://localhost:11434"

// NewOllama creates a provider for Ollama and LM Studio through their
// OpenAI-compatible endpoint. No API key is required by default.
func NewOllama(model string, opts Options) (*OpenAI, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}

	// Normalize URL: strip trailing /, /v1, /v1/chat/completions
	baseURL = strings.TrimRight(baseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/v1/chat/completions")
	baseURL = strings.TrimSuffix(baseURL, "/v1")
	opts.BaseURL = baseURL + "/v1/"

	if opts.APIKey == "" {
		// The SDK insists on a key; local servers ignore it.
		opts.APIKey = "ollama"
	}
	return newOpenAICompatible("ollama", model, opts), nil
}
