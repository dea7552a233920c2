// Package publisher implements the platform publisher and analytics collector
// capabilities.
//
// DryRun is the default and never leaves the process. HTTP posts each render
// to a configured per-platform endpoint with a per-platform token bucket
// (golang.org/x/time/rate) and classifies failures for the pipeline retry
// policy: timeouts, 408, 429 and 5xx are transient; other 4xx responses and
// malformed bodies are permanent.
package publisher
