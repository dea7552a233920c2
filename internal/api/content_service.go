package api

import (
	"context"

	"postflow/internal/lifecycle"
	"postflow/internal/queue"
)

// ContentReader abstracts queue persistence interactions needed for API queries.
type ContentReader interface {
	ListContent(ctx context.Context, states ...lifecycle.State) ([]*queue.Item, error)
	GetContent(ctx context.Context, id string) (*queue.Item, error)
	JobsForContent(ctx context.Context, contentID string) ([]*queue.Job, error)
	Transitions(ctx context.Context, contentID string) ([]queue.Transition, error)
	Decisions(ctx context.Context, contentID string) ([]queue.Decision, error)
}

// ContentService exposes read-only content operations returning API DTOs.
type ContentService struct {
	store ContentReader
}

// NewContentService constructs a ContentService around the provided reader.
func NewContentService(store ContentReader) *ContentService {
	if store == nil {
		return nil
	}
	return &ContentService{store: store}
}

// List returns content items filtered by state, newest first.
func (s *ContentService) List(ctx context.Context, states ...lifecycle.State) ([]ContentItem, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	items, err := s.store.ListContent(ctx, states...)
	if err != nil {
		return nil, err
	}
	return SortNewestFirst(FromItems(items)), nil
}

// Describe fetches a single item with its jobs and audit trail. A missing
// item yields nil without error.
func (s *ContentService) Describe(ctx context.Context, id string) (*ContentDetail, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	item, err := s.store.GetContent(ctx, id)
	if err != nil || item == nil {
		return nil, err
	}
	jobs, err := s.store.JobsForContent(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := s.store.Transitions(ctx, id)
	if err != nil {
		return nil, err
	}
	decisions, err := s.store.Decisions(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ContentDetail{
		Item:      FromItem(item),
		Jobs:      FromJobs(jobs),
		History:   FromTransitions(history),
		Decisions: FromDecisions(decisions),
	}, nil
}
