package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/triad/internal/config"
	"github.com/dshills/triad/internal/engine"
	"github.com/dshills/triad/internal/gitctx"
	"github.com/dshills/triad/internal/github"
	"github.com/dshills/triad/internal/output"
	"github.com/dshills/triad/internal/pipeline"
	"github.com/dshills/triad/internal/providers"
)

// Review flags
var (
	flagFile         string
	flagOut          string
	flagModel        string
	flagFormat       string
	flagRedact       bool
	flagFailOnBlock  bool
	flagStaged       bool
	flagUnstaged     bool
	flagCommit       string
	flagRange        string
	flagMergeBase    bool
	flagExclude      string
	flagMaxDiffBytes int
	flagInteractive  bool
	flagPlain        bool
	flagPR           string
	flagPostComment  bool
)

// inputError marks a problem with what the user asked to review.
type inputError struct{ err error }

func (e *inputError) Error() string { return e.err.Error() }
func (e *inputError) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	var in *inputError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &in), engine.IsInputError(err):
		return ExitUsageError
	case config.IsMissing(err), providers.IsAuthError(err), errors.Is(err, github.ErrNoToken):
		return ExitConfigError
	default:
		return ExitRuntimeError
	}
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagModel != "" {
		m["model"] = flagModel
	}
	if flagRedact {
		m["redact"] = "true"
	}
	return m
}

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func buildDiffOpts() gitctx.DiffOptions {
	return gitctx.DiffOptions{
		MaxDiffBytes: flagMaxDiffBytes,
		Exclude:      splitComma(flagExclude),
	}
}

// resolveInput reads the code to review from --file, a pull request, or
// exactly one git source.
func resolveInput(ctx context.Context) (pipeline.Request, error) {
	sources := 0
	for _, set := range []bool{flagFile != "", flagStaged, flagUnstaged, flagCommit != "", flagRange != "", flagPR != ""} {
		if set {
			sources++
		}
	}
	switch {
	case sources == 0:
		return pipeline.Request{}, &inputError{errors.New("nothing to review: pass --file, --pr, or one of --staged, --unstaged, --commit, --range")}
	case sources > 1:
		return pipeline.Request{}, &inputError{errors.New("choose only one of --file, --pr, --staged, --unstaged, --commit, --range")}
	}

	if flagPR != "" {
		return pullRequestInput(ctx)
	}

	if flagFile != "" {
		data, err := os.ReadFile(flagFile)
		if err != nil {
			return pipeline.Request{}, &inputError{fmt.Errorf("reading input file: %w", err)}
		}
		return pipeline.Request{Code: string(data), Source: filepath.Base(flagFile)}, nil
	}

	repo := gitctx.Repo{}
	opts := buildDiffOpts()
	var (
		diff gitctx.DiffResult
		err  error
	)
	switch {
	case flagStaged:
		diff, err = repo.Staged(ctx, opts)
	case flagUnstaged:
		diff, err = repo.Unstaged(ctx, opts)
	case flagCommit != "":
		diff, err = repo.Commit(ctx, flagCommit, opts)
	default:
		diff, err = repo.Range(ctx, flagRange, flagMergeBase, opts)
	}
	if err != nil {
		return pipeline.Request{}, &inputError{err}
	}
	return pipeline.Request{Code: diff.Diff, Source: diff.Label()}, nil
}

func pullRequestInput(ctx context.Context) (pipeline.Request, error) {
	pr, err := github.ParsePR(ctx, flagPR)
	if err != nil {
		return pipeline.Request{}, &inputError{err}
	}
	client, err := github.NewClient()
	if err != nil {
		return pipeline.Request{}, err
	}
	raw, err := client.GetPRDiff(ctx, pr)
	if err != nil {
		return pipeline.Request{}, err
	}
	diff, err := gitctx.FromDiff(raw, "pull request", pr.String(), buildDiffOpts())
	if err != nil {
		return pipeline.Request{}, &inputError{err}
	}
	return pipeline.Request{Code: diff.Diff, Source: diff.Label()}, nil
}

// postComment publishes the markdown report on the reviewed pull request.
func postComment(ctx context.Context, report *output.Report) error {
	pr, err := github.ParsePR(ctx, flagPR)
	if err != nil {
		return &inputError{err}
	}
	client, err := github.NewClient()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := (&output.MarkdownWriter{}).Write(&buf, report); err != nil {
		return err
	}
	return client.PostComment(ctx, pr, buf.String())
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review a file or git change",
	Long: "Review a source file or diff. Quality and security reviews run in parallel;\n" +
		"the tech lead decision runs once both finish.",
	Example: "  triad review --file app.py --output review.txt\n" +
		"  triad review --staged --fail-on-block\n" +
		"  triad review --pr dshills/triad#12 --post-comment\n" +
		"  triad review --range origin/main..HEAD --format markdown",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runReview(cmd.Context())
		return nil
	},
}

func runReview(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	writer, err := output.GetWriter(flagFormat)
	if err != nil {
		setExitForError(&inputError{err})
		return
	}
	if flagPostComment && flagPR == "" {
		setExitForError(&inputError{errors.New("--post-comment requires --pr")})
		return
	}

	if flagInteractive {
		if err := interactive(ctx); err != nil {
			setExitForError(&inputError{err})
			return
		}
	}

	cfg, err := config.Load(buildOverrides())
	if err != nil {
		ui.Error("%v", err)
		exitCode = ExitConfigError
		return
	}
	if flagInteractive {
		if err := askCredentials(&cfg); err != nil {
			setExitForError(&inputError{err})
			return
		}
	}

	req, err := resolveInput(ctx)
	if err != nil {
		setExitForError(err)
		return
	}

	if err := cfg.Validate(); err != nil {
		setExitForError(err)
		if config.IsMissing(err) {
			ui.Info("set the missing values in the environment, a .env file, or with 'triad config set'")
		}
		return
	}

	ui.Info("Reviewing %s with %s", req.Source, cfg.Model)
	eng := newEngine(newLogger(slog.LevelWarn))
	report, err := eng.Review(ctx, cfg, req, &progressObserver{})
	if err != nil {
		setExitForError(err)
		return
	}

	if flagFormat == "" || flagFormat == "text" {
		ui.Plain = flagPlain
		ui.Report(report)
	} else if err := writer.Write(ui.Out, report); err != nil {
		ui.Error("writing output: %v", err)
		exitCode = ExitRuntimeError
		return
	}

	if flagOut != "" {
		if err := output.SaveReport(report, flagOut); err != nil {
			ui.Error("%v", err)
			exitCode = ExitRuntimeError
			return
		}
		ui.Success("Report saved to %s", flagOut)
	}

	if flagPostComment {
		if err := postComment(ctx, report); err != nil {
			setExitForError(err)
			return
		}
		ui.Success("Posted review to %s", flagPR)
	}

	if flagFailOnBlock && report.Summary.Blocked() {
		ui.Warning("security gate is BLOCK")
		exitCode = ExitBlocked
	}
}

// progressObserver reports stage progress. Root stages finish concurrently.
type progressObserver struct {
	mu sync.Mutex
}

func (o *progressObserver) StageStarted(_ string, st pipeline.Stage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ui.VerboseLog("%s started (%s)", st.Title, st.Agent.Role)
}

func (o *progressObserver) StageFinished(_ string, res pipeline.StageResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ui.Success("%s finished in %s (%d tool calls)", output.Heading(res.Stage), res.Duration.Round(100*time.Millisecond), res.ToolCalls)
}

func (o *progressObserver) StageFailed(_ string, st pipeline.Stage, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ui.VerboseLog("%s failed: %v", st.Title, err)
}

func (o *progressObserver) RunFailed(string, error) {}

func init() {
	f := reviewCmd.Flags()
	f.StringVarP(&flagFile, "file", "f", "", "Source file or diff to review")
	f.StringVarP(&flagOut, "output", "o", "", "Write the three-section report to this path")
	f.StringVarP(&flagModel, "model", "m", "", "Model as provider/name (default from config)")
	f.StringVar(&flagFormat, "format", "", "Stdout format: "+strings.Join(output.Formats, ", "))
	f.BoolVar(&flagRedact, "redact", false, "Redact secrets from the code before sending it to the model")
	f.BoolVar(&flagFailOnBlock, "fail-on-block", false, "Exit 1 when the security gate is BLOCK")
	f.BoolVar(&flagStaged, "staged", false, "Review staged changes (index vs HEAD)")
	f.BoolVar(&flagUnstaged, "unstaged", false, "Review unstaged changes (working tree vs index)")
	f.StringVar(&flagCommit, "commit", "", "Review the change introduced by a commit")
	f.StringVar(&flagRange, "range", "", "Review a revision range (e.g. origin/main..HEAD)")
	f.BoolVar(&flagMergeBase, "merge-base", true, "Compare ranges from their merge base")
	f.StringVar(&flagExclude, "exclude", "", "Exclude file path globs from git diffs (comma-separated)")
	f.IntVar(&flagMaxDiffBytes, "max-diff-bytes", 0, "Truncate git diffs to this many bytes")
	f.BoolVarP(&flagInteractive, "interactive", "i", false, "Choose the file, model and missing keys in a terminal form")
	f.BoolVar(&flagPlain, "plain", false, "Print the decision without markdown rendering")
	f.StringVar(&flagPR, "pr", "", "Review a GitHub pull request (owner/repo#N, or N for the origin remote)")
	f.BoolVar(&flagPostComment, "post-comment", false, "Post the markdown report as a comment on the --pr pull request")
}
