// Package config loads and merges triad configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. CLI flags and per-run overrides (for example web form credentials)
//  2. Environment variables (TRIAD_MODEL, TRIAD_API_KEY, SERPER_API_KEY, etc.),
//     optionally seeded from a .env file by [LoadDotEnv]
//  3. Config file ($XDG_CONFIG_HOME/triad/config.yaml)
//  4. Built-in defaults
//
// When no TRIAD_API_KEY is set the provider's own variable is used
// (GEMINI_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY). [Config.Validate]
// reports absent credentials as a [MissingError].
package config
