package workflow

import (
	"context"
	"time"

	"postflow/internal/lifecycle"
	"postflow/internal/queue"
	"postflow/internal/services"
)

// Change describes one committed orchestrator decision.
type Change struct {
	Item        *queue.Item
	Transitions []queue.Transition
}

// Entered reports whether the change moved the item into state.
func (c Change) Entered(state lifecycle.State) bool {
	for _, tr := range c.Transitions {
		if tr.To == state {
			return true
		}
	}
	return false
}

// JobResult summarizes how a finished job was handled.
type JobResult struct {
	Job       queue.Job
	Status    queue.JobStatus
	Kind      services.ErrorKind
	Retried   bool
	Discarded bool
	Duration  time.Duration
}

// Observer is notified after the orchestrator commits. Implementations must
// not block; they run on the committing goroutine.
type Observer interface {
	ContentChanged(ctx context.Context, change Change)
	JobFinished(ctx context.Context, result JobResult)
}
