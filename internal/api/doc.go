// Package api defines wire-format types and converters for the HTTP API
// layer. It translates internal queue models into transport-friendly DTOs
// that the CLI and external callers can render without coupling to internal
// types.
//
// # Key Types
//
// ContentItem: transport representation of a content item with moderation,
// analysis, per-platform renders, validation verdicts and publish results.
//
// ContentDetail: an item plus its stage jobs, transition history and review
// decisions.
//
// WorkflowStatus: worker pool utilisation, state and job counts, capability
// health.
//
// DaemonStatus: aggregated runtime information including database health.
//
// # Converters
//
// FromItem: queue.Item -> ContentItem.
//
// FromStatusSummary: workflow.StatusSummary -> WorkflowStatus.
//
// ToSubmission and ToDecision: request bodies -> orchestrator inputs.
//
// # Design Notes
//
// DTOs use snake_case JSON tags to match the webhook contract so automation
// tools see one naming scheme. Internal enums are exposed as lowercase
// strings. Timestamps use RFC3339 with milliseconds in UTC.
package api
