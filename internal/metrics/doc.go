// Package metrics exposes pipeline activity as Prometheus metrics.
//
// Metrics observes the workflow orchestrator and the webhook handler, and a
// store collector reports item and job counts at scrape time. Everything is
// registered on a caller-supplied registry so tests and the daemon never share
// global state.
package metrics
