package workflow

import (
	"context"
	"fmt"

	"postflow/internal/lifecycle"
	"postflow/internal/platform"
	"postflow/internal/queue"
	"postflow/internal/services"
	"postflow/internal/stage"
)

// Executor runs the capability behind a stage job. Dispatch is a closed
// switch over lifecycle.Stage so every stage has exactly one handler.
type Executor struct {
	caps  stage.Capabilities
	table platform.Table
}

// NewExecutor constructs an executor over the given capabilities.
func NewExecutor(caps stage.Capabilities, table platform.Table) *Executor {
	return &Executor{caps: caps, table: table}
}

// Capabilities returns the collaborators the executor dispatches to.
func (e *Executor) Capabilities() stage.Capabilities {
	return e.caps
}

// Execute runs one job against a snapshot of its item.
func (e *Executor) Execute(ctx context.Context, job *queue.Job, item *queue.Item) stage.Outcome {
	if job == nil || item == nil {
		return stage.Failure(services.Wrap(services.ErrPermanent, "", "execute", "job or item missing", nil))
	}
	switch job.Stage {
	case lifecycle.StageModeration:
		return e.moderate(ctx, item)
	case lifecycle.StageAnalysis:
		return e.analyze(ctx, item)
	case lifecycle.StageCaptioning:
		return e.caption(ctx, item)
	case lifecycle.StageValidation:
		return e.validate(job, item)
	case lifecycle.StagePublishing:
		return e.publish(ctx, job, item)
	case lifecycle.StageAnalytics:
		return e.collect(ctx, job, item)
	default:
		return stage.Failure(services.Wrap(services.ErrPermanent, string(job.Stage), "execute", "no capability for stage", nil))
	}
}

func missingCapability(stageName lifecycle.Stage, name string) stage.Outcome {
	return stage.Failure(services.Wrap(services.ErrConfiguration, string(stageName), "execute", name+" not configured", nil))
}

func (e *Executor) moderate(ctx context.Context, item *queue.Item) stage.Outcome {
	if e.caps.Moderator == nil {
		return missingCapability(lifecycle.StageModeration, "moderator")
	}
	result, err := e.caps.Moderator.Moderate(ctx, stage.ContentFromItem(item))
	if err != nil {
		return stage.Failure(err)
	}
	return stage.Success(stage.ModerationPayload{Result: result})
}

func (e *Executor) analyze(ctx context.Context, item *queue.Item) stage.Outcome {
	if !item.AnalyzeWithAI {
		return stage.Success(stage.AnalysisPayload{Analysis: queue.Analysis{
			Sentiment: "neutral",
			Provider:  "none",
			Skipped:   true,
		}})
	}
	if e.caps.Analyzer == nil {
		return missingCapability(lifecycle.StageAnalysis, "analyzer")
	}
	analysis, err := e.caps.Analyzer.Analyze(ctx, stage.ContentFromItem(item))
	if err != nil {
		return stage.Failure(err)
	}
	return stage.Success(stage.AnalysisPayload{Analysis: analysis})
}

func (e *Executor) caption(ctx context.Context, item *queue.Item) stage.Outcome {
	if e.caps.Captioner == nil {
		return missingCapability(lifecycle.StageCaptioning, "captioner")
	}
	content := stage.ContentFromItem(item)
	renders := make(map[platform.Name]platform.Render, len(item.TargetPlatforms))
	for _, name := range item.TargetPlatforms {
		spec, ok := e.table.Lookup(name)
		if !ok {
			return stage.Failure(services.Wrap(services.ErrPermanent, string(lifecycle.StageCaptioning), "caption",
				fmt.Sprintf("unknown platform %s", name), nil))
		}
		render, err := e.caps.Captioner.Caption(ctx, content, spec)
		if err != nil {
			return stage.Failure(err)
		}
		render.Platform = name
		renders[name] = render
	}
	return stage.Success(stage.CaptionPayload{Renders: renders})
}

func (e *Executor) validate(job *queue.Job, item *queue.Item) stage.Outcome {
	spec, ok := e.table.Lookup(job.Platform)
	if !ok {
		return stage.Failure(services.Wrap(services.ErrPermanent, string(job.Stage), "validate",
			fmt.Sprintf("unknown platform %s", job.Platform), nil))
	}
	render := item.Renders[job.Platform]
	if render == nil {
		return stage.Failure(services.Wrap(services.ErrPermanent, string(job.Stage), "validate",
			fmt.Sprintf("no render for %s", job.Platform), nil))
	}
	return stage.Success(stage.ValidationPayload{
		Platform: job.Platform,
		Round:    job.Round,
		Result:   platform.Validate(render.AsRender(job.Platform), spec),
	})
}

func (e *Executor) publish(ctx context.Context, job *queue.Job, item *queue.Item) stage.Outcome {
	// A platform that already has a post is never published again.
	if existing := item.PublishResults[job.Platform]; existing != nil && existing.PublishedAt != nil {
		return stage.Success(stage.PublishPayload{Platform: job.Platform, Receipt: stage.Receipt{
			PostID:      existing.PostID,
			URL:         existing.URL,
			PublishedAt: *existing.PublishedAt,
		}})
	}
	if e.caps.Publisher == nil {
		return missingCapability(lifecycle.StagePublishing, "publisher")
	}
	render := item.Renders[job.Platform]
	if render == nil {
		return stage.Failure(services.Wrap(services.ErrPermanent, string(job.Stage), "publish",
			fmt.Sprintf("no render for %s", job.Platform), nil))
	}
	receipt, err := e.caps.Publisher.Publish(ctx, item.ID, render.AsRender(job.Platform))
	if err != nil {
		return stage.Failure(err)
	}
	return stage.Success(stage.PublishPayload{Platform: job.Platform, Receipt: receipt})
}

func (e *Executor) collect(ctx context.Context, job *queue.Job, item *queue.Item) stage.Outcome {
	if e.caps.Analytics == nil {
		return missingCapability(lifecycle.StageAnalytics, "analytics collector")
	}
	result := item.PublishResults[job.Platform]
	if result == nil || result.PostID == "" {
		return stage.Failure(services.Wrap(services.ErrPermanent, string(job.Stage), "collect",
			fmt.Sprintf("no published post for %s", job.Platform), nil))
	}
	snapshot, err := e.caps.Analytics.Collect(ctx, job.Platform, result.PostID)
	if err != nil {
		return stage.Failure(err)
	}
	return stage.Success(stage.AnalyticsPayload{Platform: job.Platform, Snapshot: snapshot})
}
