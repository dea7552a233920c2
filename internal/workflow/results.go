package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"postflow/internal/config"
	"postflow/internal/lifecycle"
	"postflow/internal/logging"
	"postflow/internal/platform"
	"postflow/internal/queue"
	"postflow/internal/services"
	"postflow/internal/stage"
)

// OnJobResult applies the outcome of a finished job. Results for jobs that are
// no longer running, for items with cancellation requested, or for a stale
// render round are discarded.
func (o *Orchestrator) OnJobResult(ctx context.Context, jobID int64, outcome stage.Outcome) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return services.Wrap(services.ErrNotFound, "", "apply job result", fmt.Sprintf("job %d not found", jobID), nil)
	}
	ctx = services.WithContentID(ctx, job.ContentID)
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithStage(ctx, string(job.Stage))
	ctx = services.WithPlatform(ctx, string(job.Platform))

	_, err = o.decide(ctx, job.ContentID, "apply job result", func(item *queue.Item, now time.Time) (*plan, error) {
		current, err := o.store.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		active, err := o.store.ActiveJobs(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		p := newPlan(item, now)
		p.result = &JobResult{Job: *current, Kind: outcome.Kind()}
		if current.StartedAt != nil {
			p.result.Duration = now.Sub(*current.StartedAt)
		}
		if err := o.planJobResult(ctx, p, current, active, outcome); err != nil {
			return nil, err
		}
		return p, nil
	})
	return err
}

func (o *Orchestrator) planJobResult(ctx context.Context, p *plan, job *queue.Job, active []*queue.Job, outcome stage.Outcome) error {
	item := p.item
	if job.Status != queue.JobRunning {
		return o.discard(ctx, p, job, fmt.Sprintf("job is %s", job.Status))
	}
	if item.CancelRequested {
		return o.discard(ctx, p, job, "cancellation requested")
	}
	if job.Stage == lifecycle.StageAnalytics {
		if item.State != lifecycle.StatePublished {
			return o.discard(ctx, p, job, fmt.Sprintf("item is %s", item.State))
		}
	} else if want, _ := job.Stage.ActiveState(); item.State != want {
		return o.discard(ctx, p, job, fmt.Sprintf("item is %s", item.State))
	}
	if (job.Stage == lifecycle.StageCaptioning || job.Stage == lifecycle.StageValidation) && job.Round != item.RenderRound {
		return o.discard(ctx, p, job, fmt.Sprintf("render round %d superseded by %d", job.Round, item.RenderRound))
	}

	if !outcome.OK() {
		return o.planFailure(ctx, p, job, active, outcome)
	}
	if outcome.Payload.Stage() != job.Stage {
		mismatch := stage.Failure(services.Wrap(services.ErrPermanent, string(job.Stage), "apply job result",
			fmt.Sprintf("received %s payload", outcome.Payload.Stage()), nil))
		return o.planFailure(ctx, p, job, active, mismatch)
	}

	p.result.Status = queue.JobSucceeded
	switch payload := outcome.Payload.(type) {
	case stage.ModerationPayload:
		return o.applyModeration(p, job, payload)
	case stage.AnalysisPayload:
		return o.applyAnalysis(p, job, payload)
	case stage.CaptionPayload:
		return o.applyCaptions(ctx, p, job, active, payload)
	case stage.ValidationPayload:
		return o.applyValidation(ctx, p, job, active, payload)
	case stage.PublishPayload:
		return o.applyPublish(ctx, p, job, payload)
	case stage.AnalyticsPayload:
		return o.applyAnalytics(ctx, p, job, payload)
	default:
		return fmt.Errorf("apply job result: unsupported payload %T", outcome.Payload)
	}
}

// discard finishes a job whose result the item no longer accepts. Jobs that
// already left running are left untouched.
func (o *Orchestrator) discard(ctx context.Context, p *plan, job *queue.Job, reason string) error {
	logging.WithContext(ctx, o.logger).Info("job result discarded",
		logging.String(logging.FieldEventType, "job_result_discarded"),
		logging.String("reason", reason),
	)
	p.result.Discarded = true
	p.result.Status = job.Status
	if job.Status != queue.JobRunning {
		p.noop = true
		return nil
	}
	p.result.Status = queue.JobCancelled
	p.jobOnly = &queue.JobUpdate{ID: job.ID, ExpectStatus: queue.JobRunning, Status: queue.JobCancelled}
	return nil
}

func (o *Orchestrator) planFailure(ctx context.Context, p *plan, job *queue.Job, active []*queue.Job, outcome stage.Outcome) error {
	item := p.item
	kind := outcome.Kind()
	message := errorMessage(outcome.Err)
	record := &queue.ErrorRecord{Kind: kind, Message: message}
	p.result.Kind = kind
	logger := logging.WithContext(ctx, o.logger)

	if job.Stage == lifecycle.StageModeration && kind == services.KindModerationRejected {
		item.Moderation = &queue.ModerationResult{Safe: false, Score: 1, Reason: message}
		p.result.Status = queue.JobSucceeded
		p.finish(job, queue.JobSucceeded, nil)
		return o.rejectModeration(p, job, message)
	}

	if kind == services.KindValidation {
		switch job.Stage {
		case lifecycle.StageCaptioning:
			return o.recaption(ctx, p, job, active, record)
		case lifecycle.StageValidation:
			if render := item.Renders[job.Platform]; render != nil && render.Round == job.Round {
				render.Validation = &platform.ValidationResult{Violations: []platform.Violation{{
					Category: platform.CategoryRejected,
					Message:  message,
				}}}
				p.result.Status = queue.JobFailed
				p.finish(job, queue.JobFailed, record)
				return o.joinValidation(p, job, active)
			}
		}
	}

	decision := o.policy.ShouldRetry(kind, job.AttemptCount)
	if decision.Retry {
		notBefore := p.now.Add(decision.Delay)
		p.jobOnly = &queue.JobUpdate{
			ID:           job.ID,
			ExpectStatus: queue.JobRunning,
			Status:       queue.JobPending,
			LastError:    record,
			NotBefore:    &notBefore,
		}
		p.result.Status = queue.JobPending
		p.result.Retried = true
		logger.Warn("stage job failed; retry scheduled",
			logging.String(logging.FieldEventType, "job_retry_scheduled"),
			logging.String(logging.FieldErrorKind, string(kind)),
			logging.Int("attempt", job.AttemptCount),
			logging.Duration("delay", decision.Delay),
			logging.Error(outcome.Err),
		)
		return nil
	}

	if kind == services.KindTransient {
		record = &queue.ErrorRecord{
			Kind:    services.KindRetriesExhausted,
			Message: fmt.Sprintf("%s failed after %d attempts: %s", job.Label(), job.AttemptCount, message),
		}
		p.result.Kind = services.KindRetriesExhausted
	}
	p.result.Status = queue.JobFailed
	logger.Error("stage job failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String(logging.FieldErrorKind, string(record.Kind)),
		logging.Int("attempt", job.AttemptCount),
		logging.Alert("stage_failure"),
		logging.Error(outcome.Err),
	)

	if job.Stage == lifecycle.StageAnalytics {
		p.jobOnly = &queue.JobUpdate{ID: job.ID, ExpectStatus: queue.JobRunning, Status: queue.JobFailed, LastError: record}
		return nil
	}
	if job.Stage == lifecycle.StagePublishing && job.Platform != "" {
		result := item.PublishResults[job.Platform]
		if result == nil {
			result = &queue.PublishResult{}
			item.PublishResults[job.Platform] = result
		}
		result.Error = record.Message
	}
	return p.fail(job, active, record)
}

func (o *Orchestrator) rejectModeration(p *plan, job *queue.Job, reason string) error {
	if err := p.advance(lifecycle.EventSucceed, job.ID); err != nil {
		return err
	}
	if err := p.advance(lifecycle.EventReject, job.ID); err != nil {
		return err
	}
	if strings.TrimSpace(reason) == "" {
		reason = "content flagged by moderation"
	}
	p.item.LastError = &queue.ErrorRecord{Kind: services.KindModerationRejected, Message: reason}
	return nil
}

func (o *Orchestrator) applyModeration(p *plan, job *queue.Job, payload stage.ModerationPayload) error {
	result := payload.Result
	p.item.Moderation = &result
	p.finish(job, queue.JobSucceeded, nil)
	if !result.Safe {
		reason := result.Reason
		if reason == "" && len(result.Categories) > 0 {
			reason = "flagged: " + strings.Join(result.Categories, ", ")
		}
		return o.rejectModeration(p, job, reason)
	}
	if err := p.advance(lifecycle.EventSucceed, job.ID); err != nil {
		return err
	}
	if err := p.advance(lifecycle.EventBegin, job.ID); err != nil {
		return err
	}
	p.enqueue(lifecycle.StageAnalysis, "", 0, time.Time{})
	return nil
}

func (o *Orchestrator) applyAnalysis(p *plan, job *queue.Job, payload stage.AnalysisPayload) error {
	analysis := payload.Analysis
	p.item.Analysis = &analysis
	p.finish(job, queue.JobSucceeded, nil)
	if err := p.advance(lifecycle.EventSucceed, job.ID); err != nil {
		return err
	}
	return p.beginCaptioning(lifecycle.EventBegin, job.ID)
}

func (o *Orchestrator) applyCaptions(ctx context.Context, p *plan, job *queue.Job, active []*queue.Job, payload stage.CaptionPayload) error {
	item := p.item
	renders := make(map[platform.Name]*queue.PlatformRender, len(item.TargetPlatforms))
	for _, name := range item.TargetPlatforms {
		render, ok := payload.Renders[name]
		if !ok {
			failure := stage.Failure(services.Wrap(services.ErrPermanent, string(job.Stage), "caption",
				fmt.Sprintf("captioner returned no render for %s", name), nil))
			return o.planFailure(ctx, p, job, active, failure)
		}
		renders[name] = &queue.PlatformRender{
			Text:       render.Text,
			Hashtags:   render.Hashtags,
			Media:      render.Media,
			Round:      item.RenderRound,
			RenderedAt: p.now,
		}
	}
	item.Renders = renders
	p.finish(job, queue.JobSucceeded, nil)
	if err := p.advance(lifecycle.EventSucceed, job.ID); err != nil {
		return err
	}
	if err := p.advance(lifecycle.EventBegin, job.ID); err != nil {
		return err
	}
	for _, name := range item.TargetPlatforms {
		p.enqueue(lifecycle.StageValidation, name, item.RenderRound, time.Time{})
	}
	return nil
}

// applyValidation records one platform verdict. The item advances only when
// every target platform has reported for the current round; concurrent
// verdicts serialize on the item version.
func (o *Orchestrator) applyValidation(ctx context.Context, p *plan, job *queue.Job, active []*queue.Job, payload stage.ValidationPayload) error {
	item := p.item
	render := item.Renders[payload.Platform]
	if payload.Platform != job.Platform || payload.Round != job.Round || render == nil || render.Round != job.Round {
		failure := stage.Failure(services.Wrap(services.ErrPermanent, string(job.Stage), "validate",
			fmt.Sprintf("verdict for %s round %d does not match job", payload.Platform, payload.Round), nil))
		return o.planFailure(ctx, p, job, active, failure)
	}
	result := payload.Result
	render.Validation = &result
	p.finish(job, queue.JobSucceeded, nil)
	return o.joinValidation(p, job, active)
}

// joinValidation advances the item once every target platform has a verdict
// for the current round.
func (o *Orchestrator) joinValidation(p *plan, job *queue.Job, active []*queue.Job) error {
	item := p.item
	for _, name := range item.TargetPlatforms {
		r := item.Renders[name]
		if r == nil || r.Round != item.RenderRound || r.Validation == nil {
			return nil
		}
	}

	violations := pendingViolations(item)
	if len(violations) == 0 || o.cfg.Pipeline.ValidationFailurePolicy == config.PolicyReview {
		return p.advance(lifecycle.EventSucceed, job.ID)
	}
	if item.RenderRound >= o.cfg.Pipeline.MaxRenderRounds {
		record := &queue.ErrorRecord{
			Kind: services.KindValidation,
			Message: fmt.Sprintf("renders still invalid after %d rounds: %s",
				item.RenderRound, strings.Join(violations, "; ")),
		}
		// The job keeps its own status; only the item fails.
		if err := p.advance(lifecycle.EventFail, job.ID); err != nil {
			return err
		}
		item.LastError = record
		p.cancelOthers(active, job.ID)
		return nil
	}
	return p.beginCaptioning(lifecycle.EventValidationFailed, job.ID)
}

// recaption handles a captioner that reported its own render as invalid: the
// item stays in captioning and a new render round starts, within
// pipeline.max_render_rounds.
func (o *Orchestrator) recaption(ctx context.Context, p *plan, job *queue.Job, active []*queue.Job, record *queue.ErrorRecord) error {
	item := p.item
	p.result.Status = queue.JobFailed
	if item.RenderRound >= o.cfg.Pipeline.MaxRenderRounds {
		return p.fail(job, active, &queue.ErrorRecord{
			Kind:    services.KindValidation,
			Message: fmt.Sprintf("renders still invalid after %d rounds: %s", item.RenderRound, record.Message),
		})
	}
	p.finish(job, queue.JobFailed, record)
	item.RenderRound++
	p.enqueue(lifecycle.StageCaptioning, "", item.RenderRound, time.Time{})
	logging.WithContext(ctx, o.logger).Warn("render rejected by captioner; starting a new round",
		logging.String(logging.FieldEventType, "render_rejected"),
		logging.Int("round", item.RenderRound),
		logging.String("reason", record.Message),
	)
	return nil
}

func (o *Orchestrator) applyPublish(ctx context.Context, p *plan, job *queue.Job, payload stage.PublishPayload) error {
	item := p.item
	name := job.Platform
	if item.Published(name) {
		p.result.Status = queue.JobSucceeded
		p.jobOnly = &queue.JobUpdate{ID: job.ID, ExpectStatus: queue.JobRunning, Status: queue.JobSucceeded}
		logging.WithContext(ctx, o.logger).Info("platform already published; result ignored",
			logging.String(logging.FieldEventType, "publish_duplicate"),
		)
		return nil
	}
	publishedAt := payload.Receipt.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = p.now
	}
	publishedAt = publishedAt.UTC()
	item.PublishResults[name] = &queue.PublishResult{
		PostID:      payload.Receipt.PostID,
		URL:         payload.Receipt.URL,
		PublishedAt: &publishedAt,
	}
	p.finish(job, queue.JobSucceeded, nil)
	for _, target := range item.TargetPlatforms {
		if !item.Published(target) {
			return nil
		}
	}
	return p.publishComplete(o.analyticsDelay())
}

func (o *Orchestrator) applyAnalytics(ctx context.Context, p *plan, job *queue.Job, payload stage.AnalyticsPayload) error {
	result := p.item.PublishResults[job.Platform]
	if result == nil || result.PublishedAt == nil {
		return o.discard(ctx, p, job, "platform has no published post")
	}
	snapshot := payload.Snapshot
	if snapshot.CollectedAt.IsZero() {
		snapshot.CollectedAt = p.now
	}
	result.Analytics = append(result.Analytics, snapshot)
	p.finish(job, queue.JobSucceeded, nil)
	return nil
}

func errorMessage(err error) string {
	if err == nil {
		return "unknown failure"
	}
	message := strings.TrimSpace(err.Error())
	if message == "" {
		return "unknown failure"
	}
	return message
}
