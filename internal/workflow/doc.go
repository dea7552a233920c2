// Package workflow advances content items through the pipeline stages.
//
// The Orchestrator owns every state decision: it admits submissions, applies
// stage job outcomes, records review decisions, begins publishing, and cancels
// items. Each decision is a read-compute-write against the queue store guarded
// by the item's version token; a concurrent writer causes a reload and
// recompute rather than a lost update. Job outcomes for validation and
// publishing fan out per target platform and join once every platform has
// reported for the current round.
//
// Pools run a fixed number of workers per stage. A worker claims the oldest
// eligible job, executes the matching capability through Executor, and hands
// the outcome back to the Orchestrator. The HeartbeatMonitor refreshes running
// jobs and converts jobs whose heartbeat expired into transient failures so a
// crashed process never strands work.
//
// Manager wires pools, heartbeats, and the orchestrator together and exposes
// Start, Stop, and Status to the daemon.
package workflow
