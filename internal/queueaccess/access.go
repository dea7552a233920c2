// Package queueaccess gives read-only CLI commands one view of content
// whether the daemon is up or not: the HTTP API when it answers, the SQLite
// store directly when it does not.
package queueaccess

import (
	"context"
	"fmt"

	"postflow/internal/api"
	"postflow/internal/apiclient"
	"postflow/internal/lifecycle"
	"postflow/internal/queue"
)

// Access provides content reads regardless of backing.
type Access interface {
	List(ctx context.Context, states []string) ([]api.ContentItem, error)
	Describe(ctx context.Context, id string) (*api.ContentDetail, error)
	StateCounts(ctx context.Context) (map[string]int, error)
}

// NewAPIAccess returns an Access backed by the daemon HTTP API.
func NewAPIAccess(client *apiclient.Client) Access {
	return &apiAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct DB access.
func NewStoreAccess(store *queue.Store) Access {
	return &storeAccess{store: store, service: api.NewContentService(store)}
}

type apiAccess struct {
	client *apiclient.Client
}

func (a *apiAccess) List(ctx context.Context, states []string) ([]api.ContentItem, error) {
	return a.client.List(ctx, states)
}

func (a *apiAccess) Describe(ctx context.Context, id string) (*api.ContentDetail, error) {
	detail, err := a.client.Describe(ctx, id)
	if apiclient.IsNotFound(err) {
		return nil, nil
	}
	return detail, err
}

func (a *apiAccess) StateCounts(ctx context.Context) (map[string]int, error) {
	status, err := a.client.Status(ctx)
	if err != nil {
		return nil, err
	}
	return status.Workflow.States, nil
}

type storeAccess struct {
	store   *queue.Store
	service *api.ContentService
}

func (a *storeAccess) List(ctx context.Context, states []string) ([]api.ContentItem, error) {
	parsed := make([]lifecycle.State, 0, len(states))
	for _, raw := range states {
		state, ok := lifecycle.ParseState(raw)
		if !ok {
			return nil, fmt.Errorf("unknown state %q", raw)
		}
		parsed = append(parsed, state)
	}
	return a.service.List(ctx, parsed...)
}

func (a *storeAccess) Describe(ctx context.Context, id string) (*api.ContentDetail, error) {
	return a.service.Describe(ctx, id)
}

func (a *storeAccess) StateCounts(ctx context.Context) (map[string]int, error) {
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return api.MergeStateStats(stats.States), nil
}
