package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dshills/triad/internal/providers"
)

const (
	serperEndpoint = "https://google.serper.dev/search"
	knowledgeSite  = "owasp.org"
	searchResults  = 8
)

// Search queries the Serper web search API, restricted to owasp.org.
type Search struct {
	apiKey string
	opts   options
}

// NewSearch creates the OWASP search tool.
func NewSearch(apiKey string, opts ...Option) *Search {
	return &Search{apiKey: apiKey, opts: newOptions(opts)}
}

func (s *Search) Name() string { return "search_owasp" }

func (s *Search) Spec() providers.ToolSpec {
	return providers.ToolSpec{
		Name:        s.Name(),
		Description: "Search owasp.org for security guidance. Returns titles, links and snippets.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "What to search for"},
			},
			"required": []string{"query"},
		},
	}
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func (s *Search) Call(ctx context.Context, input map[string]any) (string, error) {
	query, err := stringArg(input, "query")
	if err != nil {
		return "", err
	}
	if s.apiKey == "" {
		return "", fmt.Errorf("search API key is not set")
	}

	body, err := json.Marshal(map[string]any{
		"q":   "site:" + knowledgeSite + " " + query,
		"num": searchResults,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling search request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("X-API-KEY", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.opts.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("search API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var sr serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("decoding search response: %w", err)
	}
	if len(sr.Organic) == 0 {
		return "No results found on " + knowledgeSite + " for: " + query, nil
	}

	var b strings.Builder
	for i, r := range sr.Organic {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n", i+1, r.Title, r.Link, r.Snippet)
	}
	return b.String(), nil
}
