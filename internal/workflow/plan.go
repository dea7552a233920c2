package workflow

import (
	"time"

	"postflow/internal/lifecycle"
	"postflow/internal/platform"
	"postflow/internal/queue"
)

// plan is the write computed from one read of an item.
type plan struct {
	item     *queue.Item
	now      time.Time
	mutation queue.Mutation
	// jobOnly updates a single job without writing the item.
	jobOnly *queue.JobUpdate
	// noop reports a decision that needs no write at all.
	noop     bool
	schedule bool
	result   *JobResult
	created  []*queue.Job
}

func newPlan(item *queue.Item, now time.Time) *plan {
	return &plan{item: item, now: now}
}

func (p *plan) advance(event lifecycle.Event, jobID int64) error {
	next, err := lifecycle.Next(p.item.State, event)
	if err != nil {
		return err
	}
	p.mutation.Transitions = append(p.mutation.Transitions, queue.Transition{
		ContentID: p.item.ID,
		From:      p.item.State,
		To:        next,
		Event:     event,
		JobID:     jobID,
	})
	p.item.State = next
	return nil
}

func (p *plan) enqueue(stage lifecycle.Stage, name platform.Name, round int, notBefore time.Time) {
	p.mutation.NewJobs = append(p.mutation.NewJobs, queue.NewJob{
		Stage:     stage,
		Platform:  name,
		Round:     round,
		NotBefore: notBefore,
	})
}

func (p *plan) finish(job *queue.Job, status queue.JobStatus, record *queue.ErrorRecord) {
	p.mutation.JobUpdates = append(p.mutation.JobUpdates, queue.JobUpdate{
		ID:           job.ID,
		ExpectStatus: job.Status,
		Status:       status,
		LastError:    record,
	})
}

// cancelOthers cancels every active job of the item except skip.
func (p *plan) cancelOthers(active []*queue.Job, skip int64) {
	for _, job := range active {
		if job.ID == skip {
			continue
		}
		p.finish(job, queue.JobCancelled, nil)
	}
}

// beginCaptioning enters captioning through event and opens a new render round.
func (p *plan) beginCaptioning(event lifecycle.Event, jobID int64) error {
	if err := p.advance(event, jobID); err != nil {
		return err
	}
	p.item.RenderRound++
	p.enqueue(lifecycle.StageCaptioning, "", p.item.RenderRound, time.Time{})
	return nil
}

// publishComplete marks the item published and schedules analytics.
func (p *plan) publishComplete(analyticsDelay time.Duration) error {
	if err := p.advance(lifecycle.EventSucceed, 0); err != nil {
		return err
	}
	p.item.LastError = nil
	for _, name := range p.item.TargetPlatforms {
		p.enqueue(lifecycle.StageAnalytics, name, p.item.RenderRound, p.now.Add(analyticsDelay))
	}
	return nil
}

// fail moves the item to failed, records the error, and cancels its other jobs.
func (p *plan) fail(job *queue.Job, active []*queue.Job, record *queue.ErrorRecord) error {
	var jobID int64
	if job != nil {
		jobID = job.ID
	}
	if err := p.advance(lifecycle.EventFail, jobID); err != nil {
		return err
	}
	p.item.LastError = record
	p.cancelOthers(active, jobID)
	if job != nil {
		p.finish(job, queue.JobFailed, record)
	}
	return nil
}
