// Package llm provides an OpenAI-compatible chat client (OpenRouter by
// default) used by the LLM content analyzer.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.CompleteJSON: send system/user prompts, receive a JSON payload.
// Client.HealthCheck: verify API key and model availability.
//
// # Error Classification
//
// The client makes exactly one request per call. Failures are tagged for the
// pipeline retry policy: HTTP 408/429/5xx, network timeouts, and empty
// completions wrap services.ErrTransient; other 4xx responses and
// undecodable bodies wrap services.ErrPermanent; a missing API key wraps
// services.ErrConfiguration.
package llm
