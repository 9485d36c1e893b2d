package output

import (
	"io"
	"strings"
)

// TextWriter outputs the three labeled sections followed by the metrics.
type TextWriter struct{}

func (t *TextWriter) Write(w io.Writer, report *Report) error {
	ew := &errWriter{w: w}

	for i, s := range report.Sections {
		if i > 0 {
			ew.println("")
		}
		ew.printf("=== %s ===\n", s.Heading)
		ew.println(s.Raw)
	}

	ew.printf("\n%s\n", strings.Repeat("─", 60))
	ew.printf("Critical issues: %s | Minor issues: %s | Highest risk: %s | Security gate: %s\n",
		report.Summary.CriticalCount, report.Summary.MinorCount,
		report.Summary.HighestRisk, report.Summary.Gate)
	ew.printf("Decision: %s\n", report.Disposition)
	ew.printf("Run %s completed in %dms\n", report.RunID, report.DurationMs)

	return ew.err
}
