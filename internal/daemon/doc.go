// Package daemon coordinates the long-running postflow process.
//
// It wires configuration, the content store, the workflow manager, and the
// publish scheduler into a single lifecycle with flock-based locking to
// prevent multiple instances against one data directory. The daemon also owns
// the HTTP surface: the bearer-protected management API under /api, the
// signed n8n webhook, and the Prometheus scrape endpoint.
//
// Keep orchestration logic here: stage behaviour lives in the workflow and
// services packages while the daemon focuses on startup, shutdown, and high
// level coordination.
package daemon
