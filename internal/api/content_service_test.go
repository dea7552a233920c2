package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"postflow/internal/lifecycle"
	"postflow/internal/queue"
)

type mockContentReader struct {
	items     []*queue.Item
	jobs      []*queue.Job
	history   []queue.Transition
	decisions []queue.Decision
	err       error
}

func (m *mockContentReader) ListContent(context.Context, ...lifecycle.State) ([]*queue.Item, error) {
	return m.items, m.err
}

func (m *mockContentReader) GetContent(_ context.Context, id string) (*queue.Item, error) {
	for _, item := range m.items {
		if item.ID == id {
			return item, m.err
		}
	}
	return nil, m.err
}

func (m *mockContentReader) JobsForContent(context.Context, string) ([]*queue.Job, error) {
	return m.jobs, nil
}

func (m *mockContentReader) Transitions(context.Context, string) ([]queue.Transition, error) {
	return m.history, nil
}

func (m *mockContentReader) Decisions(context.Context, string) ([]queue.Decision, error) {
	return m.decisions, nil
}

func TestContentService_ListNewestFirst(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reader := &mockContentReader{items: []*queue.Item{
		{ID: "a", State: lifecycle.StateReceived, CreatedAt: base},
		{ID: "b", State: lifecycle.StateReceived, CreatedAt: base.Add(time.Minute)},
		{ID: "c", State: lifecycle.StateReceived, CreatedAt: base},
	}}
	got, err := NewContentService(reader).List(context.Background())
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(got) != 3 || got[0].ID != "b" || got[1].ID != "c" || got[2].ID != "a" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestContentService_Describe(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reader := &mockContentReader{
		items: []*queue.Item{{ID: "a", State: lifecycle.StateModerating, CreatedAt: now}},
		jobs:  []*queue.Job{{ID: 7, ContentID: "a", Stage: lifecycle.StageModeration, Status: queue.JobRunning, NotBefore: now}},
		history: []queue.Transition{{
			ContentID: "a", From: lifecycle.StateReceived, To: lifecycle.StateModerating,
			Event: lifecycle.EventBegin, CreatedAt: now,
		}},
	}
	svc := NewContentService(reader)
	detail, err := svc.Describe(context.Background(), "a")
	if err != nil {
		t.Fatalf("Describe returned error: %v", err)
	}
	if detail == nil || detail.Item.ID != "a" {
		t.Fatalf("unexpected detail: %+v", detail)
	}
	if len(detail.Jobs) != 1 || detail.Jobs[0].Status != "running" {
		t.Fatalf("unexpected jobs: %+v", detail.Jobs)
	}
	if len(detail.History) != 1 || detail.History[0].Event != "begin" {
		t.Fatalf("unexpected history: %+v", detail.History)
	}
	if detail.Decisions == nil {
		t.Fatal("decisions should be an empty slice, not nil")
	}

	missing, err := svc.Describe(context.Background(), "zzz")
	if err != nil || missing != nil {
		t.Fatalf("missing item should yield nil, got %+v %v", missing, err)
	}
}

func TestContentService_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	svc := NewContentService(&mockContentReader{err: boom})
	if _, err := svc.List(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	var nilSvc *ContentService
	if got, err := nilSvc.List(context.Background()); got != nil || err != nil {
		t.Fatal("nil service should be a no-op")
	}
}
