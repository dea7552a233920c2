package testsupport

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"postflow/internal/config"
	"postflow/internal/lifecycle"
	"postflow/internal/platform"
	"postflow/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewItem inserts a received item targeting the given platforms.
func NewItem(t testing.TB, store *queue.Store, text string, platforms ...platform.Name) *queue.Item {
	t.Helper()

	if len(platforms) == 0 {
		platforms = []platform.Name{platform.Twitter}
	}
	item := &queue.Item{
		ID:              uuid.NewString(),
		Text:            text,
		TargetPlatforms: platforms,
		State:           lifecycle.StateReceived,
		Origin:          queue.OriginAPI,
		AnalyzeWithAI:   true,
	}
	if _, err := store.Commit(context.Background(), queue.Mutation{Create: true, Item: item}); err != nil {
		t.Fatalf("store.Commit: %v", err)
	}
	return item
}
