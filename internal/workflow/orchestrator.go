package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"postflow/internal/config"
	"postflow/internal/lifecycle"
	"postflow/internal/logging"
	"postflow/internal/platform"
	"postflow/internal/queue"
	"postflow/internal/retry"
	"postflow/internal/services"
)

// ErrInvalidState reports an operation the item's current state does not allow.
var ErrInvalidState = errors.New("operation not allowed in current state")

// Submission is a request to admit new content into the pipeline.
type Submission struct {
	OwnerID         string
	Text            string
	Media           []platform.Media
	Hashtags        []string
	TargetPlatforms []string
	Origin          queue.Origin
	CallbackURL     string
	AnalyzeWithAI   bool
	Prompt          string
}

// Orchestrator applies every state decision for content items.
type Orchestrator struct {
	cfg    *config.Config
	store  *queue.Store
	table  platform.Table
	policy *retry.Policy
	logger *slog.Logger
	newID  func() string

	mu         sync.RWMutex
	observers  []Observer
	waker      func(lifecycle.Stage)
	onSchedule func()
}

// PlatformTable builds the platform rules with configured overrides applied.
func PlatformTable(cfg *config.Config) platform.Table {
	overrides := make(map[string]platform.Override, len(cfg.Platforms))
	for name, o := range cfg.Platforms {
		overrides[name] = platform.Override{MaxTextLength: o.MaxTextLength, MaxHashtags: o.MaxHashtags}
	}
	return platform.NewTable(overrides)
}

// RetryPolicy builds the stage retry policy from configuration.
func RetryPolicy(cfg *config.Config) *retry.Policy {
	return retry.NewPolicy(
		cfg.Retry.MaxAttempts,
		time.Duration(cfg.Retry.BaseDelay)*time.Second,
		time.Duration(cfg.Retry.MaxDelay)*time.Second,
		cfg.Retry.JitterFraction,
	)
}

// NewOrchestrator constructs an orchestrator over the store.
func NewOrchestrator(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	o := &Orchestrator{
		cfg:    cfg,
		store:  store,
		table:  PlatformTable(cfg),
		policy: RetryPolicy(cfg),
		logger: logging.NewComponentLogger(logger, "workflow-orchestrator"),
		newID:  uuid.NewString,
	}
	return o
}

// Platforms returns the platform rules the orchestrator validates against.
func (o *Orchestrator) Platforms() platform.Table {
	return o.table
}

// AddObserver registers an observer for committed decisions.
func (o *Orchestrator) AddObserver(observer Observer) {
	if observer == nil {
		return
	}
	o.mu.Lock()
	o.observers = append(o.observers, observer)
	o.mu.Unlock()
}

// SetWaker registers the hook called when jobs become eligible for a stage.
func (o *Orchestrator) SetWaker(fn func(lifecycle.Stage)) {
	o.mu.Lock()
	o.waker = fn
	o.mu.Unlock()
}

// SetScheduleHook registers the hook called after an item is approved.
func (o *Orchestrator) SetScheduleHook(fn func()) {
	o.mu.Lock()
	o.onSchedule = fn
	o.mu.Unlock()
}

// Submit validates a submission, stores it, and begins moderation.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) (string, error) {
	item, err := o.admit(sub)
	if err != nil {
		return "", err
	}
	ctx = services.WithContentID(ctx, item.ID)
	p := newPlan(item, o.store.Now())
	p.mutation.Create = true
	if err := p.advance(lifecycle.EventBegin, 0); err != nil {
		return "", err
	}
	p.enqueue(lifecycle.StageModeration, "", 0, time.Time{})
	if err := o.apply(ctx, p); err != nil {
		return "", fmt.Errorf("submit content: %w", err)
	}
	logging.WithContext(ctx, o.logger).Info("content submitted",
		logging.String(logging.FieldEventType, "content_submitted"),
		logging.String("origin", string(item.Origin)),
		logging.Int("platforms", len(item.TargetPlatforms)),
		logging.Int("media", len(item.Media)),
	)
	o.afterCommit(ctx, p)
	return item.ID, nil
}

func (o *Orchestrator) admit(sub Submission) (*queue.Item, error) {
	targets, err := o.normalizeTargets(sub.TargetPlatforms)
	if err != nil {
		return nil, err
	}
	media, err := normalizeMedia(sub.Media)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(sub.Text)
	if text == "" && len(media) == 0 {
		return nil, services.Wrap(services.ErrInvalidContent, "", "submit", "content needs text or at least one media reference", nil)
	}
	origin := sub.Origin
	if origin == "" {
		origin = queue.OriginAPI
	}
	return &queue.Item{
		ID:              o.newID(),
		OwnerID:         strings.TrimSpace(sub.OwnerID),
		Text:            text,
		Media:           media,
		Hashtags:        platform.DistinctHashtags(sub.Hashtags),
		TargetPlatforms: targets,
		State:           lifecycle.StateReceived,
		Origin:          origin,
		CallbackURL:     strings.TrimSpace(sub.CallbackURL),
		AnalyzeWithAI:   sub.AnalyzeWithAI,
		Prompt:          strings.TrimSpace(sub.Prompt),
		Renders:         map[platform.Name]*queue.PlatformRender{},
		PublishResults:  map[platform.Name]*queue.PublishResult{},
	}, nil
}

func (o *Orchestrator) normalizeTargets(raw []string) ([]platform.Name, error) {
	seen := make(map[platform.Name]struct{}, len(raw))
	out := make([]platform.Name, 0, len(raw))
	for _, value := range raw {
		name := platform.Name(strings.ToLower(strings.TrimSpace(value)))
		if name == "" {
			continue
		}
		if !o.table.Known(name) {
			return nil, services.Wrap(services.ErrInvalidContent, "", "submit", fmt.Sprintf("unknown platform %q", value), nil)
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil, services.Wrap(services.ErrInvalidContent, "", "submit", "at least one target platform is required", nil)
	}
	return out, nil
}

func normalizeMedia(media []platform.Media) ([]platform.Media, error) {
	out := make([]platform.Media, 0, len(media))
	for _, m := range media {
		m.URL = strings.TrimSpace(m.URL)
		if m.URL == "" {
			return nil, services.Wrap(services.ErrInvalidContent, "", "media", "media reference is missing a url", nil)
		}
		if m.Type == "" {
			detected, ok := platform.DetectMediaType(m.URL)
			if !ok {
				return nil, services.Wrap(services.ErrInvalidContent, "", "media", fmt.Sprintf("cannot determine media type of %s", m.URL), nil)
			}
			m.Type = detected
		}
		switch m.Type {
		case platform.MediaImage, platform.MediaGIF, platform.MediaVideo:
		default:
			return nil, services.Wrap(services.ErrInvalidContent, "", "media", fmt.Sprintf("unsupported media type %q", m.Type), nil)
		}
		if m.SizeBytes < 0 || m.DurationSeconds < 0 || m.Width < 0 || m.Height < 0 {
			return nil, services.Wrap(services.ErrInvalidContent, "", "media", fmt.Sprintf("negative media attribute on %s", m.URL), nil)
		}
		out = append(out, m)
	}
	return out, nil
}

// Cancel requests cancellation of a non-terminal item. Every pending or
// running job is cancelled in the same commit and later results are dropped.
// Cancelling twice is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, contentID string) error {
	ctx = services.WithContentID(ctx, contentID)
	_, err := o.decide(ctx, contentID, "cancel", func(item *queue.Item, now time.Time) (*plan, error) {
		if item.CancelRequested {
			return nil, nil
		}
		if item.IsTerminal() {
			return nil, fmt.Errorf("cancel content %s: %w: state is %s", item.ID, ErrInvalidState, item.State)
		}
		p := newPlan(item, now)
		item.CancelRequested = true
		item.CancelledAt = &now
		p.mutation.CancelActiveJobs = true
		return p, nil
	})
	if err != nil {
		return err
	}
	logging.WithContext(ctx, o.logger).Info("content cancelled",
		logging.String(logging.FieldEventType, "content_cancelled"),
	)
	return nil
}

// RecordReview applies a reviewer decision to an item awaiting review.
func (o *Orchestrator) RecordReview(ctx context.Context, decision queue.Decision) error {
	kind, ok := queue.ParseDecisionKind(string(decision.Decision))
	if !ok {
		return services.Wrap(services.ErrInvalidContent, "", "review", fmt.Sprintf("unknown decision %q", decision.Decision), nil)
	}
	decision.Decision = kind
	ctx = services.WithContentID(ctx, decision.ContentID)
	p, err := o.decide(ctx, decision.ContentID, "record review", func(item *queue.Item, now time.Time) (*plan, error) {
		if item.CancelRequested {
			return nil, fmt.Errorf("review content %s: %w", item.ID, services.ErrCancellationRequested)
		}
		if item.State != lifecycle.StateAwaitingReview {
			return nil, fmt.Errorf("review content %s: %w: state is %s", item.ID, ErrInvalidState, item.State)
		}
		p := newPlan(item, now)
		recorded := decision
		p.mutation.Decision = &recorded
		switch kind {
		case queue.DecisionApprove:
			if violations := pendingViolations(item); len(violations) > 0 {
				return nil, services.Wrap(services.ErrValidation, "review", "approve",
					"renders still violate platform rules: "+strings.Join(violations, "; "), nil)
			}
			if err := p.advance(lifecycle.EventApprove, 0); err != nil {
				return nil, err
			}
			when := now
			if decision.ScheduleTime != nil {
				when = decision.ScheduleTime.UTC()
			}
			item.ScheduleTime = &when
			p.schedule = true
		case queue.DecisionReject:
			if err := p.advance(lifecycle.EventReject, 0); err != nil {
				return nil, err
			}
			message := "rejected in review"
			if reviewer := strings.TrimSpace(decision.ReviewerID); reviewer != "" {
				message = "rejected in review by " + reviewer
			}
			item.LastError = &queue.ErrorRecord{Kind: services.KindReviewRejected, Message: message}
		case queue.DecisionEdit:
			if err := applyEdits(item, decision.Edits); err != nil {
				return nil, err
			}
			if err := p.beginCaptioning(lifecycle.EventEdit, 0); err != nil {
				return nil, err
			}
		}
		return p, nil
	})
	if err != nil {
		return err
	}
	logging.WithContext(ctx, o.logger).Info("review recorded",
		logging.String(logging.FieldEventType, "review_recorded"),
		logging.String("decision", string(kind)),
		logging.String("reviewer_id", decision.ReviewerID),
		logging.String(logging.FieldState, string(p.item.State)),
	)
	return nil
}

func applyEdits(item *queue.Item, edits *queue.Edits) error {
	if edits == nil || (edits.Text == nil && edits.Hashtags == nil && edits.Media == nil) {
		return services.Wrap(services.ErrInvalidContent, "review", "edit", "edit decision carries no edits", nil)
	}
	if edits.Text != nil {
		item.Text = strings.TrimSpace(*edits.Text)
	}
	if edits.Hashtags != nil {
		item.Hashtags = platform.DistinctHashtags(edits.Hashtags)
	}
	if edits.Media != nil {
		media, err := normalizeMedia(edits.Media)
		if err != nil {
			return err
		}
		item.Media = media
	}
	if item.Text == "" && len(item.Media) == 0 {
		return services.Wrap(services.ErrInvalidContent, "review", "edit", "edits leave no text or media", nil)
	}
	return nil
}

// pendingViolations lists current-round violations; empty means every render
// is clean.
func pendingViolations(item *queue.Item) []string {
	var out []string
	for _, name := range item.TargetPlatforms {
		render := item.Renders[name]
		if render == nil || render.Validation == nil {
			out = append(out, fmt.Sprintf("%s: not validated", name))
			continue
		}
		for _, v := range render.Validation.Violations {
			out = append(out, fmt.Sprintf("%s: %s", name, v.Message))
		}
	}
	return out
}

// BeginPublishing moves a due scheduled item into publishing and enqueues one
// publish job per platform not yet published. It reports false when the item
// is not due or another caller already began publishing it.
func (o *Orchestrator) BeginPublishing(ctx context.Context, contentID string) (bool, error) {
	ctx = services.WithContentID(ctx, contentID)
	p, err := o.decide(ctx, contentID, "begin publishing", func(item *queue.Item, now time.Time) (*plan, error) {
		if item.State != lifecycle.StateScheduled || item.CancelRequested {
			return nil, nil
		}
		if item.ScheduleTime == nil || item.ScheduleTime.After(now) {
			return nil, nil
		}
		p := newPlan(item, now)
		if err := p.advance(lifecycle.EventBegin, 0); err != nil {
			return nil, err
		}
		pending := 0
		for _, name := range item.TargetPlatforms {
			if item.Published(name) {
				continue
			}
			p.enqueue(lifecycle.StagePublishing, name, item.RenderRound, time.Time{})
			pending++
		}
		if pending == 0 {
			if err := p.publishComplete(o.analyticsDelay()); err != nil {
				return nil, err
			}
		}
		return p, nil
	})
	if err != nil {
		return false, err
	}
	return p != nil, nil
}

func (o *Orchestrator) analyticsDelay() time.Duration {
	return time.Duration(o.cfg.Pipeline.AnalyticsDelay) * time.Second
}

func (o *Orchestrator) commitAttempts() int {
	if o.cfg.Pipeline.CommitAttempts > 0 {
		return o.cfg.Pipeline.CommitAttempts
	}
	return 1
}

// decide runs a read-compute-write cycle for one item. compute receives a
// freshly loaded item; a nil plan means there is nothing to write. Version and
// job-status conflicts reload and recompute up to the configured attempts.
func (o *Orchestrator) decide(ctx context.Context, contentID, op string, compute func(*queue.Item, time.Time) (*plan, error)) (*plan, error) {
	logger := logging.WithContext(ctx, o.logger)
	attempts := o.commitAttempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item, err := o.store.GetContent(ctx, contentID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if item == nil {
			return nil, services.Wrap(services.ErrNotFound, "", op, fmt.Sprintf("content %s not found", contentID), nil)
		}
		p, err := compute(item, o.store.Now())
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, nil
		}
		if err := o.apply(ctx, p); err != nil {
			if errors.Is(err, queue.ErrConcurrentModification) || errors.Is(err, queue.ErrDuplicateJob) {
				lastErr = err
				logger.Debug("commit conflict; reloading",
					logging.String("operation", op),
					logging.Int("attempt", attempt),
					logging.Error(err),
				)
				continue
			}
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		o.afterCommit(ctx, p)
		return p, nil
	}
	logger.Warn("commit retries exhausted",
		logging.String(logging.FieldEventType, "commit_conflict"),
		logging.String("operation", op),
		logging.Int("attempts", attempts),
		logging.Error(lastErr),
		logging.String(logging.FieldErrorHint, "raise pipeline.commit_attempts if contention is expected"),
	)
	return nil, fmt.Errorf("%s content %s after %d attempts: %w", op, contentID, attempts, lastErr)
}

func (o *Orchestrator) apply(ctx context.Context, p *plan) error {
	switch {
	case p.noop:
		return nil
	case p.jobOnly != nil:
		return o.store.UpdateJob(ctx, *p.jobOnly)
	default:
		p.mutation.Item = p.item
		created, err := o.store.Commit(ctx, p.mutation)
		if err != nil {
			return err
		}
		p.created = created
		return nil
	}
}

func (o *Orchestrator) afterCommit(ctx context.Context, p *plan) {
	o.mu.RLock()
	observers := append([]Observer(nil), o.observers...)
	waker := o.waker
	onSchedule := o.onSchedule
	o.mu.RUnlock()

	logger := logging.WithContext(ctx, o.logger)
	for _, tr := range p.mutation.Transitions {
		logger.Info("state transition",
			logging.String(logging.FieldEventType, "state_transition"),
			logging.String("from", string(tr.From)),
			logging.String("to", string(tr.To)),
			logging.String("event", string(tr.Event)),
		)
	}

	if waker != nil {
		woken := make(map[lifecycle.Stage]struct{})
		for _, job := range p.created {
			if job.NotBefore.After(p.now) {
				continue
			}
			if _, ok := woken[job.Stage]; ok {
				continue
			}
			woken[job.Stage] = struct{}{}
			waker(job.Stage)
		}
	}
	if p.schedule && onSchedule != nil {
		onSchedule()
	}

	if !p.noop && p.jobOnly == nil {
		change := Change{Item: p.item.Clone(), Transitions: append([]queue.Transition(nil), p.mutation.Transitions...)}
		for _, observer := range observers {
			observer.ContentChanged(ctx, change)
		}
	}
	if p.result != nil {
		for _, observer := range observers {
			observer.JobFinished(ctx, *p.result)
		}
	}
}
