// Triad reviews a code change with three AI agents.
//
// A senior developer reviews quality and a security engineer reviews
// vulnerabilities (searching OWASP guidance) in parallel; a tech lead then
// weighs both reports and decides whether the change can merge.
//
// Usage:
//
//	triad review --file app.py              # review a file
//	triad review --staged --fail-on-block   # gate a commit on the security review
//	triad review --pr acme/shop#12 --post-comment  # review a pull request and comment on it
//	triad review --interactive              # choose file and model in a form
//	triad serve                             # browser form on :8501
//	triad mcp                               # MCP tool server on stdio
//	triad config init                       # write a default config file
package main
