// Package webhook connects external automation (n8n) to the pipeline.
//
// Inbound requests carry an action tag that decodes into one of a closed set
// of request variants; anything else is rejected before it reaches the
// orchestrator. Bodies may be signed with HMAC-SHA256 in the X-N8N-Signature
// header. The Notifier observes orchestrator commits and posts error and
// completion notifications back to the automation side.
package webhook
