// Package notifications delivers pipeline outcome events over HTTP.
//
// Each notification is a small JSON document posted to a target URL: the
// content item's callback URL when it has one, otherwise the configured
// default. Delivery is best effort; callers log failures and move on.
// Events can be suppressed per type in config.toml, and a service with no
// enabled event types degrades to a no-op.
package notifications
