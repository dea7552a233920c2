package queue

import (
	"strings"
	"time"

	"postflow/internal/lifecycle"
	"postflow/internal/platform"
	"postflow/internal/services"
)

// JobStatus is the status of one stage job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// IsActive reports whether the job still occupies its (content, stage, platform) slot.
func (s JobStatus) IsActive() bool {
	return s == JobPending || s == JobRunning
}

// Origin records which entry point created a content item.
type Origin string

const (
	OriginAPI     Origin = "api"
	OriginWebhook Origin = "webhook"
	OriginCLI     Origin = "cli"
)

// ErrorRecord is the persisted classification and message of a failure.
type ErrorRecord struct {
	Kind    services.ErrorKind `json:"kind"`
	Message string             `json:"message"`
}

// ModerationResult is the safety verdict for a content item.
type ModerationResult struct {
	Safe       bool     `json:"safe"`
	Score      float64  `json:"score"`
	Categories []string `json:"categories,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Moderator  string   `json:"moderator,omitempty"`
}

// Analysis is the AI enrichment attached to a content item.
type Analysis struct {
	Sentiment         string   `json:"sentiment"`
	SentimentScore    int      `json:"sentiment_score"`
	Keywords          []string `json:"keywords,omitempty"`
	SuggestedHashtags []string `json:"suggested_hashtags,omitempty"`
	Summary           string   `json:"summary,omitempty"`
	Provider          string   `json:"provider,omitempty"`
	Skipped           bool     `json:"skipped,omitempty"`
}

// PlatformRender is the rendering of an item for one platform plus its verdict.
type PlatformRender struct {
	Text       string                     `json:"text"`
	Hashtags   []string                   `json:"hashtags,omitempty"`
	Media      []platform.Media           `json:"media,omitempty"`
	Round      int                        `json:"round"`
	Validation *platform.ValidationResult `json:"validation,omitempty"`
	RenderedAt time.Time                  `json:"rendered_at"`
}

// AsRender converts the stored render to the validator's input.
func (r PlatformRender) AsRender(name platform.Name) platform.Render {
	return platform.Render{Platform: name, Text: r.Text, Hashtags: r.Hashtags, Media: r.Media}
}

// AnalyticsSnapshot is one post-publish metrics collection.
type AnalyticsSnapshot struct {
	CollectedAt time.Time `json:"collected_at"`
	Impressions int64     `json:"impressions"`
	Likes       int64     `json:"likes"`
	Shares      int64     `json:"shares"`
	Comments    int64     `json:"comments"`
}

// PublishResult is the outcome of publishing to one platform.
type PublishResult struct {
	PostID      string              `json:"post_id,omitempty"`
	URL         string              `json:"url,omitempty"`
	PublishedAt *time.Time          `json:"published_at,omitempty"`
	Error       string              `json:"error,omitempty"`
	Analytics   []AnalyticsSnapshot `json:"analytics,omitempty"`
}

// Item is one piece of content moving through the pipeline.
type Item struct {
	ID              string
	OwnerID         string
	Text            string
	Media           []platform.Media
	Hashtags        []string
	TargetPlatforms []platform.Name
	State           lifecycle.State
	Moderation      *ModerationResult
	Analysis        *Analysis
	Renders         map[platform.Name]*PlatformRender
	RenderRound     int
	ScheduleTime    *time.Time
	PublishResults  map[platform.Name]*PublishResult
	Version         int64
	Origin          Origin
	CallbackURL     string
	AnalyzeWithAI   bool
	Prompt          string
	CancelRequested bool
	CancelledAt     *time.Time
	LastError       *ErrorRecord
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Clone returns a deep copy so callers can compute a mutation without
// touching the value they read.
func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	out := *i
	out.Media = append([]platform.Media(nil), i.Media...)
	out.Hashtags = append([]string(nil), i.Hashtags...)
	out.TargetPlatforms = append([]platform.Name(nil), i.TargetPlatforms...)
	if i.Moderation != nil {
		m := *i.Moderation
		m.Categories = append([]string(nil), i.Moderation.Categories...)
		out.Moderation = &m
	}
	if i.Analysis != nil {
		a := *i.Analysis
		a.Keywords = append([]string(nil), i.Analysis.Keywords...)
		a.SuggestedHashtags = append([]string(nil), i.Analysis.SuggestedHashtags...)
		out.Analysis = &a
	}
	if i.Renders != nil {
		out.Renders = make(map[platform.Name]*PlatformRender, len(i.Renders))
		for name, r := range i.Renders {
			copied := *r
			copied.Hashtags = append([]string(nil), r.Hashtags...)
			copied.Media = append([]platform.Media(nil), r.Media...)
			if r.Validation != nil {
				v := *r.Validation
				v.Violations = append([]platform.Violation(nil), r.Validation.Violations...)
				copied.Validation = &v
			}
			out.Renders[name] = &copied
		}
	}
	if i.PublishResults != nil {
		out.PublishResults = make(map[platform.Name]*PublishResult, len(i.PublishResults))
		for name, r := range i.PublishResults {
			copied := *r
			copied.Analytics = append([]AnalyticsSnapshot(nil), r.Analytics...)
			out.PublishResults[name] = &copied
		}
	}
	if i.ScheduleTime != nil {
		t := *i.ScheduleTime
		out.ScheduleTime = &t
	}
	if i.CancelledAt != nil {
		t := *i.CancelledAt
		out.CancelledAt = &t
	}
	if i.LastError != nil {
		e := *i.LastError
		out.LastError = &e
	}
	return &out
}

// Published reports whether the platform already has a published_at stamp.
func (i *Item) Published(name platform.Name) bool {
	result, ok := i.PublishResults[name]
	return ok && result != nil && result.PublishedAt != nil
}

// IsTerminal reports whether the item reached a terminal state.
func (i *Item) IsTerminal() bool {
	return i.State.IsTerminal()
}

// Job is one unit of background work for one item and stage.
type Job struct {
	ID           int64
	ContentID    string
	Stage        lifecycle.Stage
	Platform     platform.Name
	Round        int
	Status       JobStatus
	AttemptCount int
	LastError    *ErrorRecord
	NotBefore    time.Time
	HeartbeatAt  *time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Label renders "stage" or "stage/platform".
func (j Job) Label() string {
	if j.Platform == "" {
		return string(j.Stage)
	}
	return string(j.Stage) + "/" + string(j.Platform)
}

// DecisionKind is a reviewer verdict.
type DecisionKind string

const (
	DecisionApprove DecisionKind = "approve"
	DecisionReject  DecisionKind = "reject"
	DecisionEdit    DecisionKind = "edit"
)

// ParseDecisionKind normalizes a decision string.
func ParseDecisionKind(value string) (DecisionKind, bool) {
	switch kind := DecisionKind(strings.ToLower(strings.TrimSpace(value))); kind {
	case DecisionApprove, DecisionReject, DecisionEdit:
		return kind, true
	default:
		return "", false
	}
}

// Edits carries reviewer-supplied replacements. Nil fields are unchanged.
type Edits struct {
	Text     *string          `json:"text,omitempty"`
	Hashtags []string         `json:"hashtags,omitempty"`
	Media    []platform.Media `json:"media,omitempty"`
}

// Decision is an immutable human review record.
type Decision struct {
	ID           int64
	ContentID    string
	ReviewerID   string
	Decision     DecisionKind
	Edits        *Edits
	ScheduleTime *time.Time
	CreatedAt    time.Time
}

// Transition is one recorded state change.
type Transition struct {
	ID        int64
	ContentID string
	From      lifecycle.State
	To        lifecycle.State
	Event     lifecycle.Event
	JobID     int64
	CreatedAt time.Time
}

// Stats summarizes store contents for status output and metrics.
type Stats struct {
	States map[lifecycle.State]int
	Jobs   map[lifecycle.Stage]map[JobStatus]int
}

// DatabaseHealth describes the state store file.
type DatabaseHealth struct {
	DBPath         string `json:"db_path"`
	DatabaseExists bool   `json:"database_exists"`
	SchemaVersion  int    `json:"schema_version"`
	ContentItems   int    `json:"content_items"`
	IntegrityCheck bool   `json:"integrity_check"`
	Error          string `json:"error,omitempty"`
}
