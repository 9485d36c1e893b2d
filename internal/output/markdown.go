package output

import (
	"io"
	"strings"

	"github.com/dshills/triad/internal/pipeline"
	"github.com/dshills/triad/internal/review"
)

// MarkdownWriter outputs a PR-comment-friendly markdown report.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, report *Report) error {
	ew := &errWriter{w: w}

	ew.printf("## Triad Code Review\n\n")
	ew.printf("**Decision:** %s\n\n", report.Disposition)

	ew.println("| Critical Issues | Minor Issues | Highest Risk | Security Gate |")
	ew.println("|-----------------|--------------|--------------|---------------|")
	ew.printf("| %s | %s | %s | %s |\n\n",
		report.Summary.CriticalCount, report.Summary.MinorCount,
		report.Summary.HighestRisk, gateIcon(report.Summary.Gate.Value))

	if q := report.Quality; q != nil {
		ew.printf("<details>\n<summary>%s</summary>\n\n", HeadingQuality)
		mdList(ew, "Critical Issues", q.CriticalIssues)
		mdList(ew, "Minor Issues", q.MinorIssues)
		if q.Reasoning != "" {
			ew.printf("**Reasoning:** %s\n\n", q.Reasoning)
		}
		ew.println("</details>\n")
	} else {
		mdRaw(ew, HeadingQuality, report.Raw(pipeline.StageQuality))
	}

	if s := report.Security; s != nil {
		ew.printf("<details>\n<summary>%s</summary>\n\n", HeadingSecurity)
		if len(s.Vulnerabilities) > 0 {
			ew.println("**Vulnerabilities**\n")
			for _, v := range s.Vulnerabilities {
				level := v.RiskLevel
				if level == "" {
					level = review.Unknown
				}
				ew.printf("- `%s` %s\n", strings.ToLower(level), v.Description)
			}
			ew.println("")
		}
		mdList(ew, "Recommendations", s.Recommendations)
		ew.println("</details>\n")
	} else {
		mdRaw(ew, HeadingSecurity, report.Raw(pipeline.StageSecurity))
	}

	ew.printf("### %s\n\n%s\n", HeadingDecision, report.Raw(pipeline.StageDecision))
	return ew.err
}

func mdList(ew *errWriter, title string, items []string) {
	if len(items) == 0 {
		return
	}
	ew.printf("**%s**\n\n", title)
	for _, item := range items {
		ew.printf("- %s\n", item)
	}
	ew.println("")
}

func mdRaw(ew *errWriter, heading, raw string) {
	ew.printf("<details>\n<summary>%s (raw)</summary>\n\n```\n%s\n```\n\n</details>\n\n", heading, raw)
}

func gateIcon(gate string) string {
	switch gate {
	case review.GateBlock:
		return ":no_entry: BLOCK"
	case review.GatePass:
		return ":white_check_mark: PASS"
	default:
		return gate
	}
}
