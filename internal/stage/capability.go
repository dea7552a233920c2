package stage

import (
	"context"
	"time"

	"postflow/internal/platform"
	"postflow/internal/queue"
)

// Content is the read-only view of an item handed to capabilities.
type Content struct {
	ID       string
	Text     string
	Media    []platform.Media
	Hashtags []string
	Prompt   string
	Analysis *queue.Analysis
}

// ContentFromItem snapshots the fields capabilities are allowed to read.
func ContentFromItem(item *queue.Item) Content {
	if item == nil {
		return Content{}
	}
	clone := item.Clone()
	return Content{
		ID:       clone.ID,
		Text:     clone.Text,
		Media:    clone.Media,
		Hashtags: clone.Hashtags,
		Prompt:   clone.Prompt,
		Analysis: clone.Analysis,
	}
}

// Moderator decides whether content is safe to continue.
type Moderator interface {
	Moderate(ctx context.Context, content Content) (queue.ModerationResult, error)
}

// Analyzer enriches content with sentiment, keywords, and hashtag suggestions.
type Analyzer interface {
	Analyze(ctx context.Context, content Content) (queue.Analysis, error)
}

// Captioner renders content for one platform.
type Captioner interface {
	Caption(ctx context.Context, content Content, spec platform.Spec) (platform.Render, error)
}

// Receipt is what a platform returns for a published post.
type Receipt struct {
	PostID      string
	URL         string
	PublishedAt time.Time
}

// Publisher posts a render to its platform.
type Publisher interface {
	Publish(ctx context.Context, contentID string, render platform.Render) (Receipt, error)
}

// AnalyticsCollector fetches engagement metrics for a published post.
type AnalyticsCollector interface {
	Collect(ctx context.Context, name platform.Name, postID string) (queue.AnalyticsSnapshot, error)
}

// HealthChecker is implemented by capabilities that can report readiness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) Health
}

// Capabilities bundles the external collaborators the pipeline dispatches to.
type Capabilities struct {
	Moderator Moderator
	Analyzer  Analyzer
	Captioner Captioner
	Publisher Publisher
	Analytics AnalyticsCollector
}

// Health reports readiness of every capability that implements HealthChecker.
func (c Capabilities) Health(ctx context.Context) []Health {
	named := []struct {
		name string
		cap  any
	}{
		{"moderator", c.Moderator},
		{"analyzer", c.Analyzer},
		{"captioner", c.Captioner},
		{"publisher", c.Publisher},
		{"analytics", c.Analytics},
	}
	out := make([]Health, 0, len(named))
	for _, entry := range named {
		if entry.cap == nil {
			out = append(out, Unhealthy(entry.name, "not configured"))
			continue
		}
		if checker, ok := entry.cap.(HealthChecker); ok {
			health := checker.HealthCheck(ctx)
			if health.Name == "" {
				health.Name = entry.name
			}
			out = append(out, health)
			continue
		}
		out = append(out, Healthy(entry.name))
	}
	return out
}
