// Package apiclient is the HTTP client the postflow CLI uses to talk to a
// running daemon. Requests carry the configured bearer token; non-2xx replies
// are decoded into *Error values that keep the daemon's error kind.
package apiclient
