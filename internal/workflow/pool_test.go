package workflow_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"postflow/internal/lifecycle"
	"postflow/internal/logging"
	"postflow/internal/platform"
	"postflow/internal/queue"
	"postflow/internal/services"
	"postflow/internal/stage"
	"postflow/internal/workflow"
)

func TestPoolTimeoutIsTransient(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	id := h.submit(shortPost, "twitter")
	h.settle()
	if err := h.review(id, queue.DecisionApprove, nil, nil); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := h.orch.BeginPublishing(ctx, id); err != nil {
		t.Fatalf("BeginPublishing: %v", err)
	}

	h.pub.mu.Lock()
	h.pub.block = true
	h.pub.mu.Unlock()
	executor := workflow.NewExecutor(stage.Capabilities{Publisher: h.pub}, h.orch.Platforms())
	pool := workflow.NewPool(lifecycle.StagePublishing, 1, 50*time.Millisecond, time.Second,
		h.store, h.orch, executor, nil, logging.NewNop())

	processed, err := pool.RunOnce(ctx)
	if err != nil || !processed {
		t.Fatalf("RunOnce: %v %v", processed, err)
	}
	jobs := h.activeJobs(id)
	if len(jobs) != 1 || jobs[0].Status != queue.JobPending {
		t.Fatalf("expected publish retry pending, got %+v", jobs)
	}
	if jobs[0].LastError == nil || jobs[0].LastError.Kind != services.KindTransient {
		t.Fatalf("expected transient error, got %+v", jobs[0].LastError)
	}
	if !strings.Contains(jobs[0].LastError.Message, "timed out") {
		t.Fatalf("expected timeout message, got %q", jobs[0].LastError.Message)
	}
	h.requireState(id, lifecycle.StatePublishing)
}

func TestHeartbeatReclaimsStaleJobs(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	id := h.submit(shortPost, "twitter")

	job, err := h.store.ClaimNextJob(ctx, lifecycle.StageModeration, h.clock.Now())
	if err != nil || job == nil {
		t.Fatalf("claim: %v %v", job, err)
	}
	monitor := workflow.NewHeartbeatMonitor(h.store, h.orch, logging.NewNop(), time.Second, 30*time.Second)

	if n, err := monitor.ReclaimStaleJobs(ctx); err != nil || n != 0 {
		t.Fatalf("fresh job must not be reclaimed: %d %v", n, err)
	}

	h.clock.Advance(time.Minute)
	monitor.Track(job.ID)
	if n, err := monitor.ReclaimStaleJobs(ctx); err != nil || n != 0 {
		t.Fatalf("tracked job must not be reclaimed: %d %v", n, err)
	}
	if err := monitor.Beat(ctx); err != nil {
		t.Fatalf("Beat: %v", err)
	}
	monitor.Untrack(job.ID)
	if n, _ := monitor.ReclaimStaleJobs(ctx); n != 0 {
		t.Fatal("job with a fresh heartbeat must not be reclaimed")
	}

	h.clock.Advance(time.Minute)
	n, err := monitor.ReclaimStaleJobs(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected one reclaimed job: %d %v", n, err)
	}
	stored, err := h.store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.Status != queue.JobPending || stored.LastError == nil || stored.LastError.Kind != services.KindTransient {
		t.Fatalf("expected transient retry after reclaim, got %+v", stored)
	}
	h.requireState(id, lifecycle.StateModerating)
}

func TestReclaimOrphanedFailsEveryRunningJob(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.submit(shortPost, "twitter")
	h.submit(shortPost, "linkedin")
	for i := 0; i < 2; i++ {
		if job, err := h.store.ClaimNextJob(ctx, lifecycle.StageModeration, h.clock.Now()); err != nil || job == nil {
			t.Fatalf("claim: %v %v", job, err)
		}
	}
	monitor := workflow.NewHeartbeatMonitor(h.store, h.orch, logging.NewNop(), time.Second, time.Hour)
	n, err := monitor.ReclaimOrphaned(ctx)
	if err != nil || n != 2 {
		t.Fatalf("expected two orphaned jobs reclaimed: %d %v", n, err)
	}
	running, err := h.store.RunningJobs(ctx)
	if err != nil {
		t.Fatalf("RunningJobs: %v", err)
	}
	if len(running) != 0 {
		t.Fatalf("expected no running jobs, got %d", len(running))
	}
}

func TestManagerProcessesConcurrentSubmissions(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.mgr.Start(ctx); err == nil {
		t.Fatal("second Start should fail while running")
	}

	ids := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		platforms := []string{"twitter", "linkedin"}
		if i%3 == 0 {
			platforms = append(platforms, "facebook")
		}
		ids = append(ids, h.submit(fmt.Sprintf("Post number %d about our launch", i), platforms...))
	}

	deadline := time.Now().Add(15 * time.Second)
	for _, id := range ids {
		for {
			item := h.item(id)
			if item.State == lifecycle.StateAwaitingReview {
				break
			}
			if item.IsTerminal() {
				t.Fatalf("item %s ended %s: %+v", id, item.State, item.LastError)
			}
			if time.Now().After(deadline) {
				t.Fatalf("item %s stuck in %s", id, item.State)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	status := h.mgr.Status(ctx)
	if !status.Running {
		t.Fatal("expected manager running")
	}
	if len(status.Pools) != len(lifecycle.AllStages()) {
		t.Fatalf("expected a pool per stage, got %d", len(status.Pools))
	}
	if status.Stats.States[lifecycle.StateAwaitingReview] != len(ids) {
		t.Fatalf("expected %d items awaiting review, got %v", len(ids), status.Stats.States)
	}

	h.mgr.Stop()
	if h.mgr.Status(ctx).Running {
		t.Fatal("expected manager stopped")
	}
	for _, id := range ids {
		h.requireLegalHistory(id)
		if len(h.activeJobs(id)) != 0 {
			t.Fatalf("item %s left active jobs", id)
		}
	}
}

func TestPoolTimeoutAbandonsCapabilityIgnoringContext(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	h := newHarness(t, nil)
	ctx := context.Background()
	id := h.submit(shortPost, "twitter")
	for _, stg := range []lifecycle.Stage{lifecycle.StageModeration, lifecycle.StageAnalysis} {
		if !h.step(stg) {
			t.Fatalf("expected a %s job", stg)
		}
	}

	stubborn := captionerFunc(func(context.Context, stage.Content, platform.Spec) (platform.Render, error) {
		<-release
		return platform.Render{Text: "late"}, nil
	})
	executor := workflow.NewExecutor(stage.Capabilities{Captioner: stubborn}, h.orch.Platforms())
	pool := workflow.NewPool(lifecycle.StageCaptioning, 1, 50*time.Millisecond, time.Second,
		h.store, h.orch, executor, nil, logging.NewNop())

	start := time.Now()
	processed, err := pool.RunOnce(ctx)
	if err != nil || !processed {
		t.Fatalf("RunOnce: %v %v", processed, err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("worker blocked for %s past a 50ms timeout", elapsed)
	}
	item := h.requireState(id, lifecycle.StateCaptioning)
	if len(item.Renders) != 0 {
		t.Fatalf("late render must not be applied, got %+v", item.Renders)
	}
	jobs := h.activeJobs(id)
	if len(jobs) != 1 || jobs[0].Status != queue.JobPending {
		t.Fatalf("expected caption retry pending, got %+v", jobs)
	}
	if jobs[0].LastError == nil || jobs[0].LastError.Kind != services.KindTransient ||
		!strings.Contains(jobs[0].LastError.Message, "timed out") {
		t.Fatalf("expected transient timeout, got %+v", jobs[0].LastError)
	}
}

// conflictingReporter fails the first few result reports with a commit
// conflict before delegating.
type conflictingReporter struct {
	inner     *workflow.Orchestrator
	conflicts int
	calls     int
}

func (r *conflictingReporter) OnJobResult(ctx context.Context, jobID int64, outcome stage.Outcome) error {
	r.calls++
	if r.calls <= r.conflicts {
		return fmt.Errorf("apply job result: %w", queue.ErrConcurrentModification)
	}
	return r.inner.OnJobResult(ctx, jobID, outcome)
}

func TestPoolRetriesConflictingResultInsteadOfRepublishing(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	id := h.submit(shortPost, "twitter")
	h.settle()
	if err := h.review(id, queue.DecisionApprove, nil, nil); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := h.orch.BeginPublishing(ctx, id); err != nil {
		t.Fatalf("BeginPublishing: %v", err)
	}

	reporter := &conflictingReporter{inner: h.orch, conflicts: 3}
	executor := workflow.NewExecutor(stage.Capabilities{Publisher: h.pub}, h.orch.Platforms())
	pool := workflow.NewPool(lifecycle.StagePublishing, 1, time.Second, time.Second,
		h.store, reporter, executor, nil, logging.NewNop())

	processed, err := pool.RunOnce(ctx)
	if err != nil || !processed {
		t.Fatalf("RunOnce: %v %v", processed, err)
	}
	if reporter.calls != 4 {
		t.Fatalf("expected result reported 4 times, got %d", reporter.calls)
	}
	if got := h.pub.callsFor(platform.Twitter); got != 1 {
		t.Fatalf("expected one publish call, got %d", got)
	}
	h.requireState(id, lifecycle.StatePublished)
	for _, job := range h.activeJobs(id) {
		if job.Stage == lifecycle.StagePublishing {
			t.Fatalf("publish job left active: %+v", job)
		}
	}
}
