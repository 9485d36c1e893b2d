package review

import (
	"encoding/json"
	"testing"
)

func TestSummarize_Gate(t *testing.T) {
	quality := Parse(`{"critical_issues":[],"minor_issues":[]}`)
	tests := []struct {
		security string
		want     string
	}{
		{`{"blocking": true}`, GateBlock},
		{`{"blocking": "yes"}`, GateBlock},
		{`{"blocking": "false"}`, GateBlock},
		{`{"blocking": 1}`, GateBlock},
		{`{"blocking": ["x"]}`, GateBlock},
		{`{"blocking": false}`, GatePass},
		{`{"blocking": 0}`, GatePass},
		{`{"blocking": ""}`, GatePass},
		{`{"blocking": null}`, GatePass},
		{`{"blocking": []}`, GatePass},
		{`{}`, GatePass},
		{`not json`, Unknown},
		{`["blocking"]`, Unknown},
	}
	for _, tt := range tests {
		s := Summarize(quality, Parse(tt.security))
		if s.Gate.Value != tt.want {
			t.Errorf("security %s: gate = %q, want %q", tt.security, s.Gate.Value, tt.want)
		}
	}
}

func TestSummarize_Counts(t *testing.T) {
	s := Summarize(
		Parse(`{"critical_issues":["a","b"],"minor_issues":["c"],"reasoning":"r"}`),
		Parse(`{"highest_risk":"High","blocking":false}`),
	)
	if s.CriticalCount.Value != "2" || s.MinorCount.Value != "1" {
		t.Errorf("counts = %s/%s, want 2/1", s.CriticalCount, s.MinorCount)
	}
	if s.HighestRisk.Value != "High" {
		t.Errorf("highest risk = %s", s.HighestRisk)
	}
}

func TestSummarize_IndependentUnknowns(t *testing.T) {
	s := Summarize(
		Parse("The change looks reasonable but I have concerns."),
		Parse(`{"blocking":false}`),
	)
	if s.CriticalCount.Known() || s.MinorCount.Known() {
		t.Error("quality metrics should be unknown")
	}
	if s.CriticalCount.Value != Unknown {
		t.Errorf("critical = %q", s.CriticalCount.Value)
	}
	if s.Gate.Value != GatePass {
		t.Errorf("gate = %q, want PASS", s.Gate.Value)
	}
	if s.HighestRisk.Known() {
		t.Error("absent highest_risk should be unknown")
	}
	if s.HighestRisk.Reason == "" || s.CriticalCount.Reason == "" {
		t.Error("unknown metrics should carry a reason")
	}
}

func TestSummarize_KeyAbsentOrWrongType(t *testing.T) {
	s := Summarize(Parse(`{"critical_issues":"many"}`), Parse(`{}`))
	if s.CriticalCount.Value != Unknown {
		t.Errorf("non-list critical_issues: %q", s.CriticalCount.Value)
	}
	if s.MinorCount.Value != Unknown {
		t.Errorf("absent minor_issues: %q", s.MinorCount.Value)
	}
}

func TestSummary_JSON(t *testing.T) {
	s := Summarize(Parse(`{"critical_issues":[],"minor_issues":[]}`), Parse(`bad`))
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"critical_count":"0","minor_count":"0","highest_risk":"unknown","gate":"unknown"}`
	if string(b) != want {
		t.Errorf("json = %s, want %s", b, want)
	}
}
