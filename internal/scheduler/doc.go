// Package scheduler moves approved content whose schedule time has arrived
// into publishing.
//
// A Scheduler sweeps the queue store for due items on a cron cadence and on
// demand. Each due item is handed to the workflow orchestrator, which decides
// under the item's version token whether publishing actually begins, so
// overlapping sweeps never publish the same platform twice.
package scheduler
