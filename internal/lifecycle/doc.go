// Package lifecycle defines the content state machine and the pipeline stage
// enum.
//
// The machine is pure: Next maps a (state, event) pair to the following state
// or ErrForbidden and never touches storage. The orchestrator runs every
// candidate transition through Next before committing it, so the persisted
// transition history only ever contains legal edges.
//
// Stage values double as the static dispatch key used by the worker pools; add
// a stage here and the exhaustive switches in workflow will refuse to compile
// until it is wired.
package lifecycle
