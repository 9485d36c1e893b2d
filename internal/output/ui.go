package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/dshills/triad/internal/pipeline"
	"github.com/dshills/triad/internal/review"
)

// UI provides colored terminal output for the CLI.
type UI struct {
	Verbose bool
	// Plain disables markdown rendering of agent output.
	Plain  bool
	Out    io.Writer
	ErrOut io.Writer
}

// NewUI creates a UI with default stdout/stderr writers.
func NewUI() *UI {
	return &UI{
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	}
}

var (
	infoPrefix    = color.New(color.FgHiBlue).Sprint("i")
	successPrefix = color.New(color.FgHiGreen).Sprint("✓")
	warningPrefix = color.New(color.FgHiYellow).Sprint("⚠")
	errorPrefix   = color.New(color.FgHiRed).Sprint("✗")
	verbosePrefix = color.New(color.FgHiBlue).Sprint("  →")
	bold          = color.New(color.Bold).SprintFunc()
	cyan          = color.New(color.FgHiCyan).SprintFunc()
	green         = color.New(color.FgHiGreen).SprintFunc()
	yellow        = color.New(color.FgHiYellow).SprintFunc()
	red           = color.New(color.FgHiRed).SprintFunc()
)

// Cyan returns a cyan-colored string.
func Cyan(s string) string { return cyan(s) }

// Green returns a green-colored string.
func Green(s string) string { return green(s) }

// Yellow returns a yellow-colored string.
func Yellow(s string) string { return yellow(s) }

// Red returns a red-colored string.
func Red(s string) string { return red(s) }

// GateColor colors a security gate value.
func GateColor(gate string) string {
	switch gate {
	case review.GateBlock:
		return red(gate)
	case review.GatePass:
		return green(gate)
	default:
		return yellow(gate)
	}
}

// RiskColor colors a risk level by its tier.
func RiskColor(level string) string {
	if level == review.Unknown {
		return yellow(level)
	}
	switch review.ClassifySeverity(level) {
	case review.TierCritical, review.TierHigh:
		return red(level)
	case review.TierMedium:
		return yellow(level)
	default:
		return green(level)
	}
}

// DispositionColor colors a disposition.
func DispositionColor(d review.Disposition) string {
	s := string(d)
	switch d {
	case review.Approved:
		return green(s)
	case review.ApprovedWithConditions:
		return cyan(s)
	case review.RequestChanges, review.Escalated:
		return red(s)
	default:
		return yellow(s)
	}
}

func (u *UI) Info(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", infoPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Success(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", successPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Warning(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", warningPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Error(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", errorPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) VerboseLog(format string, a ...any) {
	if u.Verbose {
		fmt.Fprintf(u.Out, "%s %s\n", verbosePrefix, fmt.Sprintf(format, a...))
	}
}

// Table creates a new tablewriter configured with consistent styling.
func (u *UI) Table(headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(u.Out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

// Metrics prints the summary metrics as a table.
func (u *UI) Metrics(s review.Summary, d review.Disposition) {
	table := u.Table([]string{"Critical", "Minor", "Highest Risk", "Gate", "Decision"})
	_ = table.Append([]string{
		s.CriticalCount.Value,
		s.MinorCount.Value,
		RiskColor(s.HighestRisk.Value),
		GateColor(s.Gate.Value),
		DispositionColor(d),
	})
	_ = table.Render()

	for _, m := range []struct {
		name string
		v    review.Metric
	}{
		{"critical", s.CriticalCount},
		{"minor", s.MinorCount},
		{"highest risk", s.HighestRisk},
		{"gate", s.Gate},
	} {
		if !m.v.Known() {
			u.VerboseLog("%s unknown: %s", m.name, m.v.Reason)
		}
	}
}

// Report prints every section of a report followed by the metrics table.
// The decision section is rendered as markdown unless Plain is set.
func (u *UI) Report(r *Report) {
	for _, s := range r.Sections {
		fmt.Fprintf(u.Out, "\n%s\n", bold(cyan("=== "+s.Heading+" ===")))
		body := s.Raw
		if s.Stage == pipeline.StageDecision && !u.Plain {
			body = RenderMarkdown(body, 100)
		}
		fmt.Fprintln(u.Out, strings.TrimRight(body, "\n"))
	}
	fmt.Fprintln(u.Out)
	u.Metrics(r.Summary, r.Disposition)
}

// RenderMarkdown renders md for the terminal. On any renderer failure the
// input is returned unchanged.
func RenderMarkdown(md string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
