package redact

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const placeholder = "[REDACTED]"

// DefaultPaths are the path globs whose whole content is withheld.
var DefaultPaths = []string{"**/.env", "**/.env.*", "**/*.pem", "**/*.key", "**/id_rsa", "**/*secrets*"}

type pattern struct {
	kind string
	re   *regexp.Regexp
}

// Order matters: provider-specific shapes run before the generic ones so a
// finding is attributed to the most specific kind.
var patterns = []pattern{
	{"private_key", regexp.MustCompile(`-----BEGIN\s+(?:RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE KEY-----`)},
	{"aws_access_key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{"aws_secret_key", regexp.MustCompile(`(?i)(aws[_-]?secret[_-]?access[_-]?key)\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`)},
	{"github_token", regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`)},
	{"slack_token", regexp.MustCompile(`xox[bporas]-[A-Za-z0-9-]{10,}`)},
	{"anthropic_key", regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`)},
	{"openai_key", regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`)},
	{"google_key", regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`)},
	{"jwt", regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`)},
	{"bearer_token", regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`)},
	{"connection_string", regexp.MustCompile(`(?i)\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp)://[^\s:/@]+:[^\s@]+@[^\s"']+`)},
	{"api_key", regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*["']?([A-Za-z0-9/+=_-]{20,})["']?`)},
	{"secret_assignment", regexp.MustCompile(`(?i)(secret|token|password|passwd|credential)\s*[:=]\s*["']([^"']{8,})["']`)},
	{"hex_secret", regexp.MustCompile(`(?i)(key|secret|token)\s*[:=]\s*["']?[0-9a-f]{32,}["']?`)},
}

// Result is redacted text plus what was removed.
type Result struct {
	Text string
	// Counts maps a secret kind to the number of occurrences replaced.
	Counts map[string]int
	// Withheld is set when the whole content was dropped by path policy.
	Withheld bool
}

// Total returns the number of replacements made.
func (r Result) Total() int {
	n := 0
	for _, c := range r.Counts {
		n += c
	}
	return n
}

// Kinds returns the secret kinds found, sorted.
func (r Result) Kinds() []string {
	kinds := make([]string, 0, len(r.Counts))
	for k := range r.Counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Secrets replaces detected secrets in text with [REDACTED].
func Secrets(text string) Result {
	res := Result{Text: text, Counts: map[string]int{}}
	for _, p := range patterns {
		res.Text = p.re.ReplaceAllStringFunc(res.Text, func(string) string {
			res.Counts[p.kind]++
			return placeholder
		})
	}
	return res
}

// ShouldRedactPath checks if a file path matches any of the redaction path patterns.
func ShouldRedactPath(path string, globs []string) bool {
	if path == "" {
		return false
	}
	for _, glob := range globs {
		matched, err := filepath.Match(glob, path)
		if err == nil && matched {
			return true
		}
		// "**/" patterns match on the file name alone.
		clean := strings.TrimPrefix(glob, "**/")
		if clean != glob {
			matched, err = filepath.Match(clean, filepath.Base(path))
			if err == nil && matched {
				return true
			}
		}
	}
	return false
}

// Content redacts secrets from content, or withholds it entirely when path
// matches one of globs.
func Content(content, path string, globs []string) Result {
	if ShouldRedactPath(path, globs) {
		return Result{
			Text:     placeholder + " (file content redacted by path policy)\n",
			Counts:   map[string]int{},
			Withheld: true,
		}
	}
	return Secrets(content)
}
