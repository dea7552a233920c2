// Package main hosts the postflow CLI entrypoint and command graph.
//
// The Cobra command tree runs the daemon in the foreground and translates
// every other invocation into HTTP calls against the daemon API: submitting
// content, listing and inspecting items, recording review decisions,
// cancelling work, and forcing scheduler sweeps. Configuration resolution and
// client construction live in commandContext so subcommands only deal with
// presentation.
package main
