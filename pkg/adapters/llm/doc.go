// Package llm adapts hosted language model APIs to ports.LanguageModelClient.
//
// Both adapters send a single-turn request: an optional system prompt and the
// resolved step prompt as the user message. Per-call GenerateOptions override
// the adapter defaults field by field; zero values keep the default.
package llm
