// Package gitctx extracts diffs from a git repository so a change can be
// reviewed without first saving it to a file.
//
// A [Repo] shells out to git for four sources: unstaged, staged, a single
// commit, and a revision range. Results are filtered by exclude globs and
// truncated to a configurable maximum byte size.
package gitctx
