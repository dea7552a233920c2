// Package queue persists content items, stage jobs, approval decisions, and
// state transition history in SQLite.
//
// Every item mutation goes through Store.Commit, which applies a version
// checked item update, job status updates, new jobs, transition records, and
// review decisions in one immediate transaction. A partial unique index keeps
// at most one pending or running job per (content, stage, platform).
//
// Schema changes bump schemaVersion in schema.go; operators clear the
// database to adopt the new schema.
package queue
