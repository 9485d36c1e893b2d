// Package redact removes secrets from submitted code before it is sent to
// any model provider. It is opt-in (config key redact, flag --redact).
//
// Detection uses regex heuristics covering common secret shapes: API keys,
// JWTs, private keys, AWS access key IDs and secret access keys, bearer
// tokens, database connection strings, and provider-specific tokens
// (Anthropic, OpenAI, Google, GitHub, Slack). Each replacement is counted
// by kind so callers can log what was removed without logging the secret.
//
// Path-based redaction is also supported: content whose source path matches
// one of [DefaultPaths] is replaced wholesale rather than scanned.
package redact
