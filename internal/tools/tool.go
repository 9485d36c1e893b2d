package tools

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dshills/triad/internal/providers"
)

// Tool is an external capability an agent may invoke while working on a
// stage. Results are plain text fed back to the model.
type Tool interface {
	Name() string
	Spec() providers.ToolSpec
	Call(ctx context.Context, input map[string]any) (string, error)
}

// Option configures a tool.
type Option func(*options)

type options struct {
	client   *http.Client
	endpoint string
	maxBytes int
}

// WithHTTPClient sets the HTTP client used for outbound requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithEndpoint overrides the search API endpoint.
func WithEndpoint(url string) Option {
	return func(o *options) { o.endpoint = url }
}

// WithMaxBytes caps the text returned by the scrape tool.
func WithMaxBytes(n int) Option {
	return func(o *options) { o.maxBytes = n }
}

func newOptions(opts []Option) options {
	o := options{
		client:   &http.Client{Timeout: 30 * time.Second},
		endpoint: serperEndpoint,
		maxBytes: defaultMaxBytes,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Provision builds the OWASP search tool and the page scrape tool.
func Provision(serperKey string, opts ...Option) (search, scrape Tool) {
	return NewSearch(serperKey, opts...), NewScrape(opts...)
}

func stringArg(input map[string]any, key string) (string, error) {
	v, ok := input[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s parameter required (string)", key)
	}
	return v, nil
}
