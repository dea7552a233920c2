package publisher

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"

	"postflow/internal/platform"
	"postflow/internal/queue"
	"postflow/internal/stage"
)

var dryRunNamespace = uuid.MustParse("6f1c1a4e-3b1e-4c59-9a53-8d2f0b7c5e21")

// DryRun pretends to publish. Post ids are derived from the content id and
// platform, so repeated publishes of the same render yield the same post.
type DryRun struct {
	now func() time.Time
}

// NewDryRun constructs a dry-run publisher.
func NewDryRun() *DryRun {
	return &DryRun{now: time.Now}
}

// Publish returns a synthetic receipt.
func (d *DryRun) Publish(ctx context.Context, contentID string, render platform.Render) (stage.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return stage.Receipt{}, err
	}
	id := uuid.NewSHA1(dryRunNamespace, []byte(contentID+"/"+string(render.Platform)))
	postID := fmt.Sprintf("dry-%s", id.String()[:13])
	return stage.Receipt{
		PostID:      postID,
		URL:         fmt.Sprintf("https://dry-run.invalid/%s/%s", render.Platform, postID),
		PublishedAt: d.now().UTC(),
	}, nil
}

// Collect returns deterministic synthetic metrics for a post.
func (d *DryRun) Collect(ctx context.Context, name platform.Name, postID string) (queue.AnalyticsSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return queue.AnalyticsSnapshot{}, err
	}
	seed := uuid.NewSHA1(dryRunNamespace, []byte(string(name)+"/"+postID))
	base := int64(binary.BigEndian.Uint16(seed[0:2]))
	return queue.AnalyticsSnapshot{
		CollectedAt: d.now().UTC(),
		Impressions: base * 10,
		Likes:       base / 8,
		Shares:      base / 64,
		Comments:    base / 32,
	}, nil
}

// HealthCheck always reports ready.
func (d *DryRun) HealthCheck(context.Context) stage.Health {
	return stage.Health{Name: "publisher", Ready: true, Detail: "dry run"}
}
