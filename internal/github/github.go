package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const defaultAPIURL = "https://api.github.com"

// ErrNoToken is returned by NewClient when GITHUB_TOKEN is unset.
var ErrNoToken = errors.New("GITHUB_TOKEN environment variable is not set")

// Client provides access to the GitHub REST API.
type Client struct {
	token   string
	apiURL  string
	httpCli *http.Client
}

// NewClient creates a client from GITHUB_TOKEN and, for GitHub Enterprise,
// GITHUB_API_URL.
func NewClient() (*Client, error) {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return nil, ErrNoToken
	}

	apiURL := os.Getenv("GITHUB_API_URL")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	return &Client{
		token:   token,
		apiURL:  strings.TrimRight(apiURL, "/"),
		httpCli: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// PR identifies a pull request.
type PR struct {
	Owner  string
	Repo   string
	Number int
}

func (p PR) String() string {
	return fmt.Sprintf("%s/%s#%d", p.Owner, p.Repo, p.Number)
}

var prRefRe = regexp.MustCompile(`^([^/\s]+)/([^#\s]+)#(\d+)$`)

// ParsePR parses "owner/repo#123" or a bare "123". A bare number is
// resolved against the origin remote of the current repository.
func ParsePR(ctx context.Context, ref string) (PR, error) {
	ref = strings.TrimSpace(ref)
	if m := prRefRe.FindStringSubmatch(ref); m != nil {
		n, _ := strconv.Atoi(m[3])
		return PR{Owner: m[1], Repo: m[2], Number: n}, nil
	}
	n, err := strconv.Atoi(strings.TrimPrefix(ref, "#"))
	if err != nil || n <= 0 {
		return PR{}, fmt.Errorf("invalid pull request %q: want owner/repo#N or N", ref)
	}
	owner, repo, err := DetectRepo(ctx)
	if err != nil {
		return PR{}, err
	}
	return PR{Owner: owner, Repo: repo, Number: n}, nil
}

func (c *Client) do(ctx context.Context, method, path, accept string, payload any) ([]byte, int, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", accept)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return data, resp.StatusCode, nil
}

// GetPRDiff fetches the unified diff of a pull request.
func (c *Client) GetPRDiff(ctx context.Context, pr PR) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", pr.Owner, pr.Repo, pr.Number)
	body, status, err := c.do(ctx, http.MethodGet, path, "application/vnd.github.v3.diff", nil)
	if err != nil {
		return "", fmt.Errorf("fetching PR diff: %w", err)
	}

	switch {
	case status == http.StatusNotFound:
		return "", fmt.Errorf("PR %s not found", pr)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "", fmt.Errorf("authentication failed: %s", string(body))
	case status != http.StatusOK:
		return "", fmt.Errorf("GitHub API error (status %d): %s", status, string(body))
	}
	return string(body), nil
}

// PostComment adds a conversation comment to a pull request.
func (c *Client) PostComment(ctx context.Context, pr PR, markdown string) error {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", pr.Owner, pr.Repo, pr.Number)
	body, status, err := c.do(ctx, http.MethodPost, path, "application/vnd.github.v3+json", map[string]string{"body": markdown})
	if err != nil {
		return fmt.Errorf("posting comment: %w", err)
	}
	if status == http.StatusUnprocessableEntity {
		return fmt.Errorf("GitHub rejected comment (422): %s", string(body))
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("GitHub API error (status %d): %s", status, string(body))
	}
	return nil
}

var (
	httpsRemoteRe = regexp.MustCompile(`https?://[^/]+/([^/]+)/([^/.\s]+)`)
	sshRemoteRe   = regexp.MustCompile(`[^@]+@[^:]+:([^/]+)/([^/.\s]+)`)
)

// DetectRepo parses owner/repo from the origin remote URL.
func DetectRepo(ctx context.Context) (owner, repo string, err error) {
	out, err := exec.CommandContext(ctx, "git", "remote", "get-url", "origin").Output()
	if err != nil {
		return "", "", fmt.Errorf("cannot detect repo: git remote get-url origin failed: %w", err)
	}
	return ParseRemoteURL(strings.TrimSpace(string(out)))
}

// ParseRemoteURL extracts owner/repo from a git remote URL.
func ParseRemoteURL(url string) (owner, repo string, err error) {
	url = strings.TrimSuffix(url, ".git")

	if m := httpsRemoteRe.FindStringSubmatch(url); len(m) == 3 {
		return m[1], m[2], nil
	}
	if m := sshRemoteRe.FindStringSubmatch(url); len(m) == 3 {
		return m[1], m[2], nil
	}
	return "", "", fmt.Errorf("cannot parse owner/repo from remote URL: %s", url)
}
