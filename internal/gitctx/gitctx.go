package gitctx

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNoChanges is returned when a diff source produced no diff text.
var ErrNoChanges = errors.New("no changes to review")

// DiffOptions controls how diffs are gathered.
type DiffOptions struct {
	ContextLines int
	MaxDiffBytes int
	Exclude      []string
}

// DiffResult holds the collected diff and metadata.
type DiffResult struct {
	Diff  string
	Files []string
	Mode  string
	Range string
	Repo  RepoMeta
}

// Label describes where the diff came from, for report headers and logs.
func (d DiffResult) Label() string {
	var b strings.Builder
	b.WriteString(d.Mode)
	if d.Range != "" {
		b.WriteString(" " + d.Range)
	}
	if d.Repo.Branch != "" {
		b.WriteString(" on " + d.Repo.Branch)
	}
	switch n := len(d.Files); n {
	case 0:
	case 1:
		fmt.Fprintf(&b, " (%s)", d.Files[0])
	default:
		fmt.Fprintf(&b, " (%d files)", n)
	}
	return b.String()
}

// RepoMeta contains git repository metadata.
type RepoMeta struct {
	Root   string
	Head   string
	Branch string
}

// Repo runs git in Dir. An empty Dir means the working directory.
type Repo struct {
	Dir string
}

// Meta collects repository metadata from git.
func (r Repo) Meta(ctx context.Context) (RepoMeta, error) {
	root, err := r.git(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return RepoMeta{}, fmt.Errorf("not a git repository: %w", err)
	}
	// A repository with no commits has no HEAD.
	head, _ := r.git(ctx, "rev-parse", "HEAD")
	branch, _ := r.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	return RepoMeta{
		Root:   strings.TrimSpace(root),
		Head:   strings.TrimSpace(head),
		Branch: strings.TrimSpace(branch),
	}, nil
}

// Unstaged returns the diff of working tree vs index.
func (r Repo) Unstaged(ctx context.Context, opts DiffOptions) (DiffResult, error) {
	diff, err := r.git(ctx, append([]string{"diff"}, buildDiffArgs(opts)...)...)
	if err != nil {
		return DiffResult{}, fmt.Errorf("git diff: %w", err)
	}
	return r.result(ctx, diff, "unstaged", "", opts)
}

// Staged returns the diff of index vs HEAD.
func (r Repo) Staged(ctx context.Context, opts DiffOptions) (DiffResult, error) {
	diff, err := r.git(ctx, append([]string{"diff", "--cached"}, buildDiffArgs(opts)...)...)
	if err != nil {
		return DiffResult{}, fmt.Errorf("git diff --cached: %w", err)
	}
	return r.result(ctx, diff, "staged", "", opts)
}

// Commit returns the diff a single commit introduced. The root commit is
// shown against the empty tree.
func (r Repo) Commit(ctx context.Context, sha string, opts DiffOptions) (DiffResult, error) {
	args := buildDiffArgs(opts)
	diff, err := r.git(ctx, append([]string{"diff", sha + "~1", sha}, args...)...)
	if err != nil {
		diff, err = r.git(ctx, append([]string{"show", "--format=", sha}, args...)...)
		if err != nil {
			return DiffResult{}, fmt.Errorf("git show %s: %w", sha, err)
		}
	}
	return r.result(ctx, diff, "commit", sha, opts)
}

// Range returns the combined diff for a revision range. With mergeBase set,
// "a..b" is compared from the merge base ("a...b").
func (r Repo) Range(ctx context.Context, revRange string, mergeBase bool, opts DiffOptions) (DiffResult, error) {
	diffRange := revRange
	if mergeBase && strings.Contains(revRange, "..") && !strings.Contains(revRange, "...") {
		diffRange = strings.Replace(revRange, "..", "...", 1)
	}
	diff, err := r.git(ctx, append([]string{"diff", diffRange}, buildDiffArgs(opts)...)...)
	if err != nil {
		return DiffResult{}, fmt.Errorf("git diff %s: %w", revRange, err)
	}
	return r.result(ctx, diff, "range", revRange, opts)
}

func (r Repo) result(ctx context.Context, diff, mode, rangeStr string, opts DiffOptions) (DiffResult, error) {
	meta, err := r.Meta(ctx)
	if err != nil {
		meta = RepoMeta{}
	}
	res := buildResult(diff, mode, rangeStr, opts)
	res.Repo = meta
	if strings.TrimSpace(res.Diff) == "" {
		return res, ErrNoChanges
	}
	return res, nil
}

// FromDiff applies opts to a diff obtained elsewhere, such as a hosted pull
// request, and labels it with mode and rangeStr.
func FromDiff(diff, mode, rangeStr string, opts DiffOptions) (DiffResult, error) {
	res := buildResult(diff, mode, rangeStr, opts)
	if strings.TrimSpace(res.Diff) == "" {
		return res, ErrNoChanges
	}
	return res, nil
}

func buildDiffArgs(opts DiffOptions) []string {
	var args []string
	if opts.ContextLines > 0 {
		args = append(args, fmt.Sprintf("-U%d", opts.ContextLines))
	}
	return append(args, "--")
}

func buildResult(diff, mode, rangeStr string, opts DiffOptions) DiffResult {
	files := extractFiles(diff)

	// Exclude before truncating so excluded files don't consume the byte budget.
	if len(opts.Exclude) > 0 {
		diff = filterExcluded(diff, opts.Exclude)
		files = filterFileList(files, opts.Exclude)
	}

	if opts.MaxDiffBytes > 0 && len(diff) > opts.MaxDiffBytes {
		diff = diff[:opts.MaxDiffBytes] + "\n... (diff truncated at max-diff-bytes limit)\n"
	}

	return DiffResult{
		Diff:  diff,
		Files: files,
		Mode:  mode,
		Range: rangeStr,
	}
}

func extractFiles(diff string) []string {
	var files []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "+++ b/") {
			f := strings.TrimPrefix(line, "+++ b/")
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	return files
}

func filterExcluded(diff string, excludes []string) string {
	var kept []string
	for _, section := range splitDiffSections(diff) {
		path := extractPathFromSection(section)
		if path == "" || !MatchesAny(path, excludes) {
			kept = append(kept, section)
		}
	}
	return strings.Join(kept, "")
}

func splitDiffSections(diff string) []string {
	var sections []string
	var current strings.Builder
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "diff --git") && current.Len() > 0 {
			sections = append(sections, current.String())
			current.Reset()
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	if current.Len() > 0 {
		sections = append(sections, current.String())
	}
	return sections
}

func extractPathFromSection(section string) string {
	for _, line := range strings.Split(section, "\n") {
		if strings.HasPrefix(line, "+++ b/") {
			return strings.TrimPrefix(line, "+++ b/")
		}
	}
	return ""
}

func filterFileList(files []string, excludes []string) []string {
	var result []string
	for _, f := range files {
		if !MatchesAny(f, excludes) {
			result = append(result, f)
		}
	}
	return result
}

// MatchesAny returns true if the path matches any of the given glob patterns.
func MatchesAny(path string, patterns []string) bool {
	for _, pattern := range patterns {
		matched, err := filepath.Match(pattern, path)
		if err == nil && matched {
			return true
		}
		// "dir/**" covers nested paths too.
		if prefix, ok := strings.CutSuffix(pattern, "**"); ok && strings.HasSuffix(prefix, "/") && !strings.Contains(prefix, "*") {
			if strings.HasPrefix(path, prefix) {
				return true
			}
		}
		clean := strings.TrimPrefix(pattern, "**/")
		if clean != pattern {
			matched, err = filepath.Match(clean, filepath.Base(path))
			if err == nil && matched {
				return true
			}
			matched, err = filepath.Match(clean, path)
			if err == nil && matched {
				return true
			}
		}
	}
	return false
}

func (r Repo) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Dir
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), fmt.Errorf("%s: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", err
	}
	return string(out), nil
}
