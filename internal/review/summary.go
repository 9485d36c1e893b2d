package review

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Metric is one derived value. When it cannot be derived Value is Unknown
// and Reason says why.
type Metric struct {
	Value  string
	Reason string
}

func known(v string) Metric { return Metric{Value: v} }

func unknown(format string, args ...any) Metric {
	return Metric{Value: Unknown, Reason: fmt.Sprintf(format, args...)}
}

// Known reports whether the metric was derived.
func (m Metric) Known() bool { return m.Reason == "" }

func (m Metric) String() string { return m.Value }

// MarshalText renders the metric as its display value.
func (m Metric) MarshalText() ([]byte, error) { return []byte(m.Value), nil }

// Gate values.
const (
	GateBlock = "BLOCK"
	GatePass  = "PASS"
)

// Summary holds the headline metrics of a run.
type Summary struct {
	CriticalCount Metric `json:"critical_count" yaml:"critical_count"`
	MinorCount    Metric `json:"minor_count" yaml:"minor_count"`
	HighestRisk   Metric `json:"highest_risk" yaml:"highest_risk"`
	Gate          Metric `json:"gate" yaml:"gate"`
}

// Blocked reports whether the security gate is BLOCK.
func (s Summary) Blocked() bool { return s.Gate.Value == GateBlock }

// Summarize derives the metrics from the two reviewer parses. Each metric is
// handled independently; a missing key and a failed parse both yield Unknown.
func Summarize(quality, security Parsed) Summary {
	var s Summary
	q, qerr := objectOf("quality", quality)
	sec, serr := objectOf("security", security)

	if qerr != "" {
		s.CriticalCount = unknown("%s", qerr)
		s.MinorCount = unknown("%s", qerr)
	} else {
		s.CriticalCount = listLen(q, "critical_issues")
		s.MinorCount = listLen(q, "minor_issues")
	}

	if serr != "" {
		s.HighestRisk = unknown("%s", serr)
		s.Gate = unknown("%s", serr)
		return s
	}
	if v, ok := sec["highest_risk"]; ok && v != nil {
		s.HighestRisk = known(stringify(v))
	} else {
		s.HighestRisk = unknown("highest_risk absent")
	}
	if truthy(sec["blocking"]) {
		s.Gate = known(GateBlock)
	} else {
		s.Gate = known(GatePass)
	}
	return s
}

func objectOf(stage string, p Parsed) (map[string]any, string) {
	if !p.OK() {
		return nil, stage + " output did not parse: " + p.Err.Error()
	}
	obj, ok := p.Object()
	if !ok {
		return nil, stage + " output is not a JSON object"
	}
	return obj, ""
}

func listLen(obj map[string]any, key string) Metric {
	v, ok := obj[key]
	if !ok {
		return unknown("%s absent", key)
	}
	list, ok := v.([]any)
	if !ok {
		return unknown("%s is not a list", key)
	}
	return known(strconv.Itoa(len(list)))
}

// truthy follows the usual dynamic-language rules: null, false, zero, and
// empty strings, lists or objects are false; everything else is true.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// stringify renders a JSON value as display text: strings verbatim, other
// values as compact JSON.
func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
