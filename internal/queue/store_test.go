package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"postflow/internal/lifecycle"
	"postflow/internal/platform"
	"postflow/internal/queue"
	"postflow/internal/services"
	"postflow/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %+v", health)
	}
	if health.SchemaVersion != 1 {
		t.Fatalf("schema version = %d, want 1", health.SchemaVersion)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	store.Close()

	db, err := sql.Open("sqlite", cfg.DatabasePath())
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	db.Close()

	if _, err := queue.Open(cfg); !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestCommitRoundTripsItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, store, "hello", platform.Twitter, platform.Instagram)
	if item.Version != 1 {
		t.Fatalf("version after create = %d, want 1", item.Version)
	}

	published := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	item.State = lifecycle.StateModerating
	item.Moderation = &queue.ModerationResult{Safe: true, Score: 0.1}
	item.Renders = map[platform.Name]*queue.PlatformRender{
		platform.Twitter: {Text: "hello", Hashtags: []string{"go"}, Round: 1,
			Validation: &platform.ValidationResult{OK: true}},
	}
	item.PublishResults = map[platform.Name]*queue.PublishResult{
		platform.Twitter: {PostID: "tw-1", PublishedAt: &published},
	}
	item.LastError = &queue.ErrorRecord{Kind: services.KindTransient, Message: "boom"}
	if _, err := store.Commit(ctx, queue.Mutation{Item: item}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if item.Version != 2 {
		t.Fatalf("version after update = %d, want 2", item.Version)
	}

	got, err := store.GetContent(ctx, item.ID)
	if err != nil || got == nil {
		t.Fatalf("GetContent: %v %v", got, err)
	}
	if got.State != lifecycle.StateModerating || got.Version != 2 {
		t.Fatalf("unexpected state/version: %s/%d", got.State, got.Version)
	}
	if len(got.TargetPlatforms) != 2 || got.TargetPlatforms[1] != platform.Instagram {
		t.Fatalf("targets not preserved: %v", got.TargetPlatforms)
	}
	render := got.Renders[platform.Twitter]
	if render == nil || render.Round != 1 || render.Validation == nil || !render.Validation.OK {
		t.Fatalf("render not preserved: %+v", render)
	}
	if !got.Published(platform.Twitter) || got.Published(platform.Instagram) {
		t.Fatalf("publish results not preserved: %+v", got.PublishResults)
	}
	if got.LastError == nil || got.LastError.Kind != services.KindTransient {
		t.Fatalf("last error not preserved: %+v", got.LastError)
	}

	missing, err := store.GetContent(ctx, "does-not-exist")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing content, got %v %v", missing, err)
	}
}

func TestCommitRejectsStaleVersion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, store, "race")
	stale := item.Clone()

	item.State = lifecycle.StateModerating
	if _, err := store.Commit(ctx, queue.Mutation{Item: item}); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}

	stale.State = lifecycle.StateFailed
	_, err := store.Commit(ctx, queue.Mutation{
		Item:    stale,
		NewJobs: []queue.NewJob{{Stage: lifecycle.StageModeration}},
	})
	if !errors.Is(err, queue.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
	if stale.Version != 1 {
		t.Fatalf("stale version mutated to %d", stale.Version)
	}

	jobs, err := store.JobsForContent(ctx, item.ID)
	if err != nil {
		t.Fatalf("JobsForContent: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("rolled back commit left %d jobs", len(jobs))
	}
}

func TestCommitRejectsDuplicateActiveJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, store, "dup", platform.Twitter, platform.Instagram)
	created, err := store.Commit(ctx, queue.Mutation{Item: item, NewJobs: []queue.NewJob{
		{Stage: lifecycle.StageValidation, Platform: platform.Twitter, Round: 1},
		{Stage: lifecycle.StageValidation, Platform: platform.Instagram, Round: 1},
	}})
	if err != nil {
		t.Fatalf("fan-out enqueue failed: %v", err)
	}
	if len(created) != 2 || created[0].ID >= created[1].ID {
		t.Fatalf("unexpected created jobs: %+v", created)
	}

	_, err = store.Commit(ctx, queue.Mutation{Item: item, NewJobs: []queue.NewJob{
		{Stage: lifecycle.StageValidation, Platform: platform.Twitter, Round: 2},
	}})
	if !errors.Is(err, queue.ErrDuplicateJob) {
		t.Fatalf("expected ErrDuplicateJob, got %v", err)
	}

	_, err = store.Commit(ctx, queue.Mutation{
		Item:       item,
		JobUpdates: []queue.JobUpdate{{ID: created[0].ID, ExpectStatus: queue.JobPending, Status: queue.JobSucceeded}},
		NewJobs:    []queue.NewJob{{Stage: lifecycle.StageValidation, Platform: platform.Twitter, Round: 2}},
	})
	if err != nil {
		t.Fatalf("enqueue after completion failed: %v", err)
	}
}

func TestClaimNextJobOrdering(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	now := time.Now().UTC()

	first := testsupport.NewItem(t, store, "first")
	second := testsupport.NewItem(t, store, "second")
	third := testsupport.NewItem(t, store, "third")
	for _, tc := range []struct {
		item      *queue.Item
		notBefore time.Time
	}{
		{first, now.Add(time.Hour)},
		{second, now.Add(-time.Minute)},
		{third, now.Add(-time.Second)},
	} {
		if _, err := store.Commit(ctx, queue.Mutation{Item: tc.item, NewJobs: []queue.NewJob{
			{Stage: lifecycle.StageAnalysis, NotBefore: tc.notBefore},
		}}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	job, err := store.ClaimNextJob(ctx, lifecycle.StageAnalysis, now)
	if err != nil || job == nil {
		t.Fatalf("ClaimNextJob: %v %v", job, err)
	}
	if job.ContentID != second.ID {
		t.Fatalf("claimed %s, want oldest eligible %s", job.ContentID, second.ID)
	}
	if job.Status != queue.JobRunning || job.AttemptCount != 1 || job.HeartbeatAt == nil {
		t.Fatalf("claimed job not marked running: %+v", job)
	}

	job, err = store.ClaimNextJob(ctx, lifecycle.StageAnalysis, now)
	if err != nil || job == nil || job.ContentID != third.ID {
		t.Fatalf("second claim = %+v, %v; want %s", job, err, third.ID)
	}

	job, err = store.ClaimNextJob(ctx, lifecycle.StageAnalysis, now)
	if err != nil {
		t.Fatalf("third claim: %v", err)
	}
	if job != nil {
		t.Fatalf("job not yet due was claimed: %+v", job)
	}

	if job, _ := store.ClaimNextJob(ctx, lifecycle.StageModeration, now.Add(2*time.Hour)); job != nil {
		t.Fatalf("claim crossed stages: %+v", job)
	}
}

func TestJobUpdateRequiresExpectedStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, store, "retry")
	created, err := store.Commit(ctx, queue.Mutation{Item: item, NewJobs: []queue.NewJob{{Stage: lifecycle.StageModeration}}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	now := store.Now()
	claimed, err := store.ClaimNextJob(ctx, lifecycle.StageModeration, now)
	if err != nil || claimed == nil || claimed.ID != created[0].ID {
		t.Fatalf("claim: %+v %v", claimed, err)
	}

	retryAt := now.Add(30 * time.Second)
	_, err = store.Commit(ctx, queue.Mutation{Item: item, JobUpdates: []queue.JobUpdate{{
		ID:           claimed.ID,
		ExpectStatus: queue.JobRunning,
		Status:       queue.JobPending,
		LastError:    &queue.ErrorRecord{Kind: services.KindTransient, Message: "timeout"},
		NotBefore:    &retryAt,
	}}})
	if err != nil {
		t.Fatalf("retry update: %v", err)
	}

	job, err := store.GetJob(ctx, claimed.ID)
	if err != nil || job == nil {
		t.Fatalf("GetJob: %v %v", job, err)
	}
	if job.Status != queue.JobPending || job.AttemptCount != 1 || !job.NotBefore.Equal(retryAt) {
		t.Fatalf("unexpected job after retry: %+v", job)
	}
	if job.LastError == nil || job.LastError.Kind != services.KindTransient {
		t.Fatalf("last error not recorded: %+v", job.LastError)
	}

	_, err = store.Commit(ctx, queue.Mutation{Item: item, JobUpdates: []queue.JobUpdate{{
		ID: claimed.ID, ExpectStatus: queue.JobRunning, Status: queue.JobSucceeded,
	}}})
	if !errors.Is(err, queue.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification for status mismatch, got %v", err)
	}
}

func TestCancelActiveJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, store, "cancel", platform.Twitter, platform.Instagram)
	if _, err := store.Commit(ctx, queue.Mutation{Item: item, NewJobs: []queue.NewJob{
		{Stage: lifecycle.StageValidation, Platform: platform.Twitter, Round: 1},
		{Stage: lifecycle.StageValidation, Platform: platform.Instagram, Round: 1},
	}}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.ClaimNextJob(ctx, lifecycle.StageValidation, store.Now()); err != nil {
		t.Fatalf("claim: %v", err)
	}

	item.CancelRequested = true
	if _, err := store.Commit(ctx, queue.Mutation{Item: item, CancelActiveJobs: true}); err != nil {
		t.Fatalf("cancel commit: %v", err)
	}
	active, err := store.ActiveJobs(ctx, item.ID)
	if err != nil {
		t.Fatalf("ActiveJobs: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active jobs, got %d", len(active))
	}
	jobs, _ := store.JobsForContent(ctx, item.ID)
	for _, job := range jobs {
		if job.Status != queue.JobCancelled || job.FinishedAt == nil {
			t.Fatalf("job not cancelled: %+v", job)
		}
	}
}

func TestDueScheduled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	schedule := func(text string, at time.Time, cancelled bool) *queue.Item {
		item := testsupport.NewItem(t, store, text)
		item.State = lifecycle.StateScheduled
		item.ScheduleTime = &at
		item.CancelRequested = cancelled
		if _, err := store.Commit(ctx, queue.Mutation{Item: item}); err != nil {
			t.Fatalf("schedule %s: %v", text, err)
		}
		return item
	}
	due := schedule("due", now.Add(-time.Minute), false)
	schedule("future", now.Add(time.Hour), false)
	schedule("cancelled", now.Add(-time.Hour), true)

	items, err := store.DueScheduled(ctx, now)
	if err != nil {
		t.Fatalf("DueScheduled: %v", err)
	}
	if len(items) != 1 || items[0].ID != due.ID {
		t.Fatalf("unexpected due items: %+v", items)
	}

	next, ok, err := store.NextScheduleTime(ctx)
	if err != nil || !ok || !next.Equal(now.Add(-time.Minute)) {
		t.Fatalf("NextScheduleTime = %v %v %v", next, ok, err)
	}
}

func TestStaleRunningJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for _, text := range []string{"a", "b"} {
		item := testsupport.NewItem(t, store, text)
		if _, err := store.Commit(ctx, queue.Mutation{Item: item, NewJobs: []queue.NewJob{{Stage: lifecycle.StageCaptioning}}}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	start := store.Now().Add(time.Second)
	first, _ := store.ClaimNextJob(ctx, lifecycle.StageCaptioning, start)
	second, _ := store.ClaimNextJob(ctx, lifecycle.StageCaptioning, start)
	if first == nil || second == nil {
		t.Fatal("expected two claimed jobs")
	}

	if err := store.UpdateJobHeartbeat(ctx, []int64{second.ID}, start.Add(2*time.Minute)); err != nil {
		t.Fatalf("UpdateJobHeartbeat: %v", err)
	}
	stale, err := store.StaleRunningJobs(ctx, start.Add(time.Minute))
	if err != nil {
		t.Fatalf("StaleRunningJobs: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != first.ID {
		t.Fatalf("unexpected stale jobs: %+v", stale)
	}

	running, err := store.RunningJobs(ctx)
	if err != nil || len(running) != 2 {
		t.Fatalf("RunningJobs = %d, %v", len(running), err)
	}
}

func TestTransitionsDecisionsAndStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, store, "history")
	item.State = lifecycle.StateModerating
	text := "edited"
	decision := &queue.Decision{ReviewerID: "alice", Decision: queue.DecisionEdit, Edits: &queue.Edits{Text: &text}}
	if _, err := store.Commit(ctx, queue.Mutation{
		Item: item,
		Transitions: []queue.Transition{
			{From: lifecycle.StateReceived, To: lifecycle.StateModerating, Event: lifecycle.EventBegin},
		},
		Decision: decision,
		NewJobs:  []queue.NewJob{{Stage: lifecycle.StageModeration}},
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	transitions, err := store.Transitions(ctx, item.ID)
	if err != nil || len(transitions) != 1 {
		t.Fatalf("Transitions = %+v, %v", transitions, err)
	}
	if transitions[0].From != lifecycle.StateReceived || transitions[0].Event != lifecycle.EventBegin {
		t.Fatalf("unexpected transition: %+v", transitions[0])
	}

	decisions, err := store.Decisions(ctx, item.ID)
	if err != nil || len(decisions) != 1 {
		t.Fatalf("Decisions = %+v, %v", decisions, err)
	}
	if decisions[0].Edits == nil || decisions[0].Edits.Text == nil || *decisions[0].Edits.Text != "edited" {
		t.Fatalf("edits not preserved: %+v", decisions[0].Edits)
	}
	if decision.ID == 0 {
		t.Fatal("decision id not assigned")
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.States[lifecycle.StateModerating] != 1 {
		t.Fatalf("state stats: %+v", stats.States)
	}
	if stats.Jobs[lifecycle.StageModeration][queue.JobPending] != 1 {
		t.Fatalf("job stats: %+v", stats.Jobs)
	}
}
