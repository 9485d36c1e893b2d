// Package providers implements the ChatModel interface for each supported LLM
// provider.
//
// Supported providers: Anthropic (Claude), OpenAI (GPT), Google (Gemini), and
// Ollama / LMStudio for local models through their OpenAI-compatible API.
// Every adapter wraps the provider's official Go SDK and supports tool
// calling, which the security reviewer relies on.
//
// Models are addressed as "provider/name" (for example
// "gemini/gemini-2.0-flash"); [ParseModelID] also accepts bare names with a
// well-known prefix. All providers share a retry helper with exponential
// back-off for rate limits; authentication failures are reported through
// [IsAuthError] and never retried.
package providers
