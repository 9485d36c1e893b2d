package review

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Parsed is the outcome of interpreting a stage's raw text as structured
// data. Exactly one of Value and Err is meaningful.
type Parsed struct {
	Value any
	Err   error
}

// OK reports whether the text parsed.
func (p Parsed) OK() bool { return p.Err == nil }

// Object returns the parsed value as a JSON object.
func (p Parsed) Object() (map[string]any, bool) {
	if p.Err != nil {
		return nil, false
	}
	obj, ok := p.Value.(map[string]any)
	return obj, ok
}

// Parse tolerantly decodes agent output. Surrounding whitespace is trimmed;
// when the text opens with a ``` fence only the content up to the closing
// fence is kept, minus a leading "json" tag. The remainder must be a single
// JSON value. Malformed input yields a Parsed with Err set.
func Parse(raw string) Parsed {
	content := stripFence(raw)
	if content == "" {
		return Parsed{Err: errors.New("empty output")}
	}

	dec := json.NewDecoder(strings.NewReader(content))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Parsed{Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	if _, err := dec.Token(); err != io.EOF {
		return Parsed{Err: errors.New("invalid JSON: trailing data after value")}
	}
	return Parsed{Value: v}
}

func stripFence(raw string) string {
	content := strings.TrimSpace(raw)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = content[3:]
	if end := strings.Index(content, "```"); end >= 0 {
		content = content[:end]
	}
	content = strings.TrimPrefix(content, "json")
	return strings.TrimSpace(content)
}
