package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"postflow/internal/config"
	"postflow/internal/lifecycle"
	"postflow/internal/logging"
	"postflow/internal/platform"
	"postflow/internal/queue"
	"postflow/internal/services/analyzer"
	"postflow/internal/services/captioner"
	"postflow/internal/services/moderation"
	"postflow/internal/services/publisher"
	"postflow/internal/stage"
	"postflow/internal/testsupport"
	"postflow/internal/workflow"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type moderatorFunc func(context.Context, stage.Content) (queue.ModerationResult, error)

func (f moderatorFunc) Moderate(ctx context.Context, c stage.Content) (queue.ModerationResult, error) {
	return f(ctx, c)
}

type analyzerFunc func(context.Context, stage.Content) (queue.Analysis, error)

func (f analyzerFunc) Analyze(ctx context.Context, c stage.Content) (queue.Analysis, error) {
	return f(ctx, c)
}

type captionerFunc func(context.Context, stage.Content, platform.Spec) (platform.Render, error)

func (f captionerFunc) Caption(ctx context.Context, c stage.Content, spec platform.Spec) (platform.Render, error) {
	return f(ctx, c, spec)
}

// countingPublisher wraps the dry-run publisher and records calls per platform.
type countingPublisher struct {
	inner *publisher.DryRun

	mu       sync.Mutex
	calls    map[platform.Name]int
	failures map[platform.Name][]error
	block    bool
}

func newCountingPublisher() *countingPublisher {
	return &countingPublisher{
		inner:    publisher.NewDryRun(),
		calls:    make(map[platform.Name]int),
		failures: make(map[platform.Name][]error),
	}
}

func (p *countingPublisher) Publish(ctx context.Context, contentID string, render platform.Render) (stage.Receipt, error) {
	p.mu.Lock()
	p.calls[render.Platform]++
	block := p.block
	var err error
	if queued := p.failures[render.Platform]; len(queued) > 0 {
		err = queued[0]
		p.failures[render.Platform] = queued[1:]
	}
	p.mu.Unlock()
	if block {
		<-ctx.Done()
		return stage.Receipt{}, ctx.Err()
	}
	if err != nil {
		return stage.Receipt{}, err
	}
	return p.inner.Publish(ctx, contentID, render)
}

func (p *countingPublisher) Collect(ctx context.Context, name platform.Name, postID string) (queue.AnalyticsSnapshot, error) {
	return p.inner.Collect(ctx, name, postID)
}

func (p *countingPublisher) callsFor(name platform.Name) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[name]
}

// recorder is an observer capturing committed changes and job results.
type recorder struct {
	mu      sync.Mutex
	changes []workflow.Change
	results []workflow.JobResult
}

func (r *recorder) ContentChanged(_ context.Context, change workflow.Change) {
	r.mu.Lock()
	r.changes = append(r.changes, change)
	r.mu.Unlock()
}

func (r *recorder) JobFinished(_ context.Context, result workflow.JobResult) {
	r.mu.Lock()
	r.results = append(r.results, result)
	r.mu.Unlock()
}

func (r *recorder) resultsSnapshot() []workflow.JobResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]workflow.JobResult(nil), r.results...)
}

type harness struct {
	t     *testing.T
	cfg   *config.Config
	store *queue.Store
	clock *testsupport.Clock
	orch  *workflow.Orchestrator
	mgr   *workflow.Manager
	pub   *countingPublisher
	rec   *recorder
}

func newHarness(t *testing.T, customize func(*stage.Capabilities), opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	clock := testsupport.NewClock(testEpoch)
	store.SetClock(clock.Now)

	orch := workflow.NewOrchestrator(cfg, store, logging.NewNop())
	pub := newCountingPublisher()
	caps := stage.Capabilities{
		Moderator: moderation.NewKeyword(cfg.Moderation.BlockedTerms, cfg.Moderation.Threshold),
		Analyzer:  analyzer.NewLexicon(cfg.Analyzer.MaxHashtags),
		Captioner: captioner.NewTemplate(captioner.Options{IncludeSuggestedTags: cfg.Captioning.IncludeSuggestedTags}),
		Publisher: pub,
		Analytics: pub,
	}
	if customize != nil {
		customize(&caps)
	}
	executor := workflow.NewExecutor(caps, orch.Platforms())
	mgr := workflow.NewManager(cfg, store, orch, executor, logging.NewNop())
	rec := &recorder{}
	orch.AddObserver(rec)
	return &harness{t: t, cfg: cfg, store: store, clock: clock, orch: orch, mgr: mgr, pub: pub, rec: rec}
}

func (h *harness) submit(text string, platforms ...string) string {
	h.t.Helper()
	id, err := h.orch.Submit(context.Background(), workflow.Submission{
		OwnerID:         "owner-1",
		Text:            text,
		TargetPlatforms: platforms,
		AnalyzeWithAI:   true,
	})
	if err != nil {
		h.t.Fatalf("Submit: %v", err)
	}
	return id
}

// step runs at most one job of a stage and reports whether one was claimed.
func (h *harness) step(stg lifecycle.Stage) bool {
	h.t.Helper()
	processed, err := h.mgr.Pool(stg).RunOnce(context.Background())
	if err != nil {
		h.t.Fatalf("run %s job: %v", stg, err)
	}
	return processed
}

// settle runs eligible jobs of every stage until nothing is claimable.
func (h *harness) settle() {
	h.t.Helper()
	for i := 0; i < 500; i++ {
		progressed := false
		for _, stg := range lifecycle.AllStages() {
			if h.step(stg) {
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
	h.t.Fatal("pipeline did not settle")
}

func (h *harness) item(id string) *queue.Item {
	h.t.Helper()
	item, err := h.store.GetContent(context.Background(), id)
	if err != nil {
		h.t.Fatalf("GetContent: %v", err)
	}
	if item == nil {
		h.t.Fatalf("content %s missing", id)
	}
	return item
}

func (h *harness) requireState(id string, want lifecycle.State) *queue.Item {
	h.t.Helper()
	item := h.item(id)
	if item.State != want {
		h.t.Fatalf("state = %s, want %s (last error %+v)", item.State, want, item.LastError)
	}
	return item
}

func (h *harness) activeJobs(id string) []*queue.Job {
	h.t.Helper()
	jobs, err := h.store.ActiveJobs(context.Background(), id)
	if err != nil {
		h.t.Fatalf("ActiveJobs: %v", err)
	}
	return jobs
}

func (h *harness) review(id string, kind queue.DecisionKind, edits *queue.Edits, at *time.Time) error {
	return h.orch.RecordReview(context.Background(), queue.Decision{
		ContentID:    id,
		ReviewerID:   "reviewer-1",
		Decision:     kind,
		Edits:        edits,
		ScheduleTime: at,
	})
}

// requireLegalHistory checks every recorded transition is an edge of the
// state machine.
func (h *harness) requireLegalHistory(id string) []queue.Transition {
	h.t.Helper()
	history, err := h.store.Transitions(context.Background(), id)
	if err != nil {
		h.t.Fatalf("Transitions: %v", err)
	}
	for _, tr := range history {
		next, err := lifecycle.Next(tr.From, tr.Event)
		if err != nil || next != tr.To {
			h.t.Fatalf("illegal transition %s -(%s)-> %s", tr.From, tr.Event, tr.To)
		}
	}
	return history
}

func visited(history []queue.Transition, state lifecycle.State) bool {
	for _, tr := range history {
		if tr.To == state {
			return true
		}
	}
	return false
}
