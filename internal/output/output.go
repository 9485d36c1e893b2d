package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/triad/internal/pipeline"
	"github.com/dshills/triad/internal/review"
)

// Section headings used by every rendering of a run.
const (
	HeadingQuality  = "QUALITY ANALYSIS"
	HeadingSecurity = "SECURITY REVIEW"
	HeadingDecision = "FINAL DECISION"
)

// Heading returns the section heading for a stage.
func Heading(stage pipeline.StageName) string {
	switch stage {
	case pipeline.StageQuality:
		return HeadingQuality
	case pipeline.StageSecurity:
		return HeadingSecurity
	case pipeline.StageDecision:
		return HeadingDecision
	default:
		return strings.ToUpper(string(stage))
	}
}

// Section is one stage's output in a report.
type Section struct {
	Stage      pipeline.StageName `json:"stage" yaml:"stage"`
	Heading    string             `json:"heading" yaml:"heading"`
	Agent      string             `json:"agent" yaml:"agent"`
	Raw        string             `json:"raw" yaml:"raw"`
	Parsed     bool               `json:"parsed" yaml:"parsed"`
	DurationMs int64              `json:"duration_ms" yaml:"duration_ms"`
}

// Report is a completed run plus everything derived from it.
type Report struct {
	RunID       string                 `json:"run_id" yaml:"run_id"`
	Source      string                 `json:"source,omitempty" yaml:"source,omitempty"`
	Model       string                 `json:"model,omitempty" yaml:"model,omitempty"`
	Started     time.Time              `json:"started" yaml:"started"`
	DurationMs  int64                  `json:"duration_ms" yaml:"duration_ms"`
	Summary     review.Summary         `json:"summary" yaml:"summary"`
	Disposition review.Disposition     `json:"disposition" yaml:"disposition"`
	Quality     *review.QualityReport  `json:"quality,omitempty" yaml:"quality,omitempty"`
	Security    *review.SecurityReport `json:"security,omitempty" yaml:"security,omitempty"`
	Sections    []Section              `json:"sections" yaml:"sections"`
}

// NewReport interprets a run.
func NewReport(run *pipeline.Run, model string) *Report {
	in := review.Interpret(
		run.Raw(pipeline.StageQuality),
		run.Raw(pipeline.StageSecurity),
		run.Raw(pipeline.StageDecision),
	)
	r := &Report{
		RunID:       run.ID,
		Source:      run.Request.Source,
		Model:       model,
		Started:     run.Started,
		DurationMs:  run.Finished.Sub(run.Started).Milliseconds(),
		Summary:     in.Summary,
		Disposition: in.Disposition,
		Quality:     in.QualityView,
		Security:    in.SecurityView,
	}
	for _, res := range run.Results {
		parsed := false
		switch res.Stage {
		case pipeline.StageQuality:
			parsed = in.QualityView != nil
		case pipeline.StageSecurity:
			parsed = in.SecurityView != nil
		}
		r.Sections = append(r.Sections, Section{
			Stage:      res.Stage,
			Heading:    Heading(res.Stage),
			Agent:      res.Agent,
			Raw:        res.Raw,
			Parsed:     parsed,
			DurationMs: res.Duration.Milliseconds(),
		})
	}
	return r
}

// Raw returns the raw output of the named stage.
func (r *Report) Raw(stage pipeline.StageName) string {
	for _, s := range r.Sections {
		if s.Stage == stage {
			return s.Raw
		}
	}
	return ""
}

// PlainText renders the report file format: each stage's raw output under a
// "=== HEADING ===" line, sections separated by a blank line.
func (r *Report) PlainText() string {
	parts := make([]string, 0, len(r.Sections))
	for _, s := range r.Sections {
		parts = append(parts, "=== "+s.Heading+" ===\n"+s.Raw)
	}
	return strings.Join(parts, "\n\n")
}

// Writer writes a report in a specific format.
type Writer interface {
	Write(w io.Writer, report *Report) error
}

// Formats lists the supported output formats.
var Formats = []string{"text", "json", "yaml", "markdown"}

// GetWriter returns a writer for the specified format.
func GetWriter(format string) (Writer, error) {
	switch format {
	case "text", "":
		return &TextWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	case "yaml":
		return &YAMLWriter{}, nil
	case "markdown", "md":
		return &MarkdownWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// SaveReport writes the plain-text report file to path, creating parent
// directories as needed.
func SaveReport(report *Report, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(report.PlainText()), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}
