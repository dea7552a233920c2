// Package config loads, normalizes, and validates postflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// POSTFLOW_API_TOKEN and POSTFLOW_WEBHOOK_SECRET. The Config value is built
// once at startup and handed explicitly to the orchestrator, worker pools,
// validator, and HTTP server; nothing reads configuration from globals.
package config
