package queue

import "errors"

var (
	// ErrConcurrentModification reports a stale item version or a job whose
	// status changed since it was read. Callers reload and recompute.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrDuplicateJob reports an attempt to enqueue a second active job for the
	// same content, stage, and platform.
	ErrDuplicateJob = errors.New("duplicate active stage job")
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
)
