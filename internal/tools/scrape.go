package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/dshills/triad/internal/providers"
)

const (
	defaultMaxBytes = 8000
	maxPageBytes    = 2 << 20
)

// Scrape fetches a web page and returns its readable text.
type Scrape struct {
	opts options
}

// NewScrape creates the page scrape tool.
func NewScrape(opts ...Option) *Scrape {
	return &Scrape{opts: newOptions(opts)}
}

func (s *Scrape) Name() string { return "scrape_page" }

func (s *Scrape) Spec() providers.ToolSpec {
	return providers.ToolSpec{
		Name:        s.Name(),
		Description: "Fetch a web page and return its text content.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{"type": "string", "description": "Absolute http(s) URL of the page"},
			},
			"required": []string{"url"},
		},
	}
}

func (s *Scrape) Call(ctx context.Context, input map[string]any) (string, error) {
	raw, err := stringArg(input, "url")
	if err != nil {
		return "", err
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid url %q: must be absolute http(s)", raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "triad/1.0 (+code review)")

	resp, err := s.opts.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", u, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetching %s: status %d", u, resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxPageBytes)
	var text string
	if strings.Contains(resp.Header.Get("Content-Type"), "html") || resp.Header.Get("Content-Type") == "" {
		text, err = ExtractText(body)
		if err != nil {
			return "", fmt.Errorf("parsing %s: %w", u, err)
		}
	} else {
		data, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", u, err)
		}
		text = strings.Join(strings.Fields(string(data)), " ")
	}
	return truncate(text, s.opts.maxBytes), nil
}

// ExtractText returns the visible text of an HTML document with whitespace
// collapsed. Script, style and similar non-content elements are skipped.
func ExtractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}
	var words []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "svg", "template", "iframe":
				return
			}
		}
		if n.Type == html.TextNode {
			words = append(words, strings.Fields(n.Data)...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(words, " "), nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + " [truncated]"
}
