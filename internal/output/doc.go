// Package output formats review reports for display or machine consumption.
//
// Four formats are supported:
//   - text: the three labeled sections plus the metrics (default)
//   - json: full structured report
//   - yaml: full structured report
//   - markdown: PR-comment-friendly with collapsible reviewer sections
//
// Use [NewReport] to interpret a completed run, [GetWriter] to obtain a
// [Writer] for a format string, and [SaveReport] to write the plain-text
// report file. [UI] provides the colored terminal output used by the CLI.
package output
