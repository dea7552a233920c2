package api

import "postflow/internal/platform"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ContentItem describes a content item in a transport-friendly format.
type ContentItem struct {
	ID              string                  `json:"id"`
	OwnerID         string                  `json:"owner_id"`
	Text            string                  `json:"text"`
	Media           []platform.Media        `json:"media,omitempty"`
	Hashtags        []string                `json:"hashtags,omitempty"`
	TargetPlatforms []string                `json:"target_platforms"`
	State           string                  `json:"state"`
	Terminal        bool                    `json:"terminal"`
	Moderation      *Moderation             `json:"moderation,omitempty"`
	Analysis        *Analysis               `json:"analysis,omitempty"`
	Renders         map[string]Render       `json:"renders,omitempty"`
	RenderRound     int                     `json:"render_round"`
	ScheduleTime    string                  `json:"schedule_time,omitempty"`
	PublishResults  map[string]PublishResult `json:"publish_results,omitempty"`
	Version         int64                   `json:"version"`
	Origin          string                  `json:"origin"`
	CallbackURL     string                  `json:"callback_url,omitempty"`
	AnalyzeWithAI   bool                    `json:"analyze_with_ai"`
	CancelRequested bool                    `json:"cancel_requested"`
	CancelledAt     string                  `json:"cancelled_at,omitempty"`
	Error           *ErrorDetail            `json:"error,omitempty"`
	CreatedAt       string                  `json:"created_at,omitempty"`
	UpdatedAt       string                  `json:"updated_at,omitempty"`
}

// Moderation is the moderation verdict recorded for an item.
type Moderation struct {
	Safe       bool     `json:"safe"`
	Score      float64  `json:"score"`
	Categories []string `json:"categories,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Moderator  string   `json:"moderator,omitempty"`
}

// Analysis is the content analysis recorded for an item.
type Analysis struct {
	Sentiment         string   `json:"sentiment"`
	SentimentScore    int      `json:"sentiment_score"`
	Keywords          []string `json:"keywords,omitempty"`
	SuggestedHashtags []string `json:"suggested_hashtags,omitempty"`
	Summary           string   `json:"summary,omitempty"`
	Provider          string   `json:"provider,omitempty"`
	Skipped           bool     `json:"skipped,omitempty"`
}

// Render is the current caption for one platform plus its validation verdict.
type Render struct {
	Text       string               `json:"text"`
	Hashtags   []string             `json:"hashtags,omitempty"`
	Media      []platform.Media     `json:"media,omitempty"`
	Round      int                  `json:"round"`
	Validated  bool                 `json:"validated"`
	Valid      bool                 `json:"valid"`
	Violations []platform.Violation `json:"violations,omitempty"`
	RenderedAt string               `json:"rendered_at,omitempty"`
}

// PublishResult reports the outcome of publishing to one platform.
type PublishResult struct {
	PostID      string              `json:"post_id,omitempty"`
	URL         string              `json:"url,omitempty"`
	PublishedAt string              `json:"published_at,omitempty"`
	Error       string              `json:"error,omitempty"`
	Analytics   []AnalyticsSnapshot `json:"analytics,omitempty"`
}

// AnalyticsSnapshot is one engagement reading for a published post.
type AnalyticsSnapshot struct {
	CollectedAt string `json:"collected_at"`
	Impressions int64  `json:"impressions"`
	Likes       int64  `json:"likes"`
	Shares      int64  `json:"shares"`
	Comments    int64  `json:"comments"`
}

// ErrorDetail is a classified failure.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Job describes one stage job.
type Job struct {
	ID           int64        `json:"id"`
	Stage        string       `json:"stage"`
	Platform     string       `json:"platform,omitempty"`
	Round        int          `json:"round,omitempty"`
	Status       string       `json:"status"`
	AttemptCount int          `json:"attempt_count"`
	Error        *ErrorDetail `json:"error,omitempty"`
	NotBefore    string       `json:"not_before,omitempty"`
	StartedAt    string       `json:"started_at,omitempty"`
	FinishedAt   string       `json:"finished_at,omitempty"`
}

// Transition is one entry in an item's state history.
type Transition struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Event     string `json:"event"`
	JobID     int64  `json:"job_id,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Decision is one recorded review decision.
type Decision struct {
	ReviewerID   string `json:"reviewer_id"`
	Decision     string `json:"decision"`
	Edited       bool   `json:"edited"`
	ScheduleTime string `json:"schedule_time,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// ContentDetail bundles an item with its jobs and audit trail.
type ContentDetail struct {
	Item      ContentItem  `json:"item"`
	Jobs      []Job        `json:"jobs"`
	History   []Transition `json:"history"`
	Decisions []Decision   `json:"decisions"`
}

// PlatformSpec describes the static rules of one platform.
type PlatformSpec struct {
	Name               string   `json:"name"`
	DisplayName        string   `json:"display_name"`
	MaxTextLength      int      `json:"max_text_length"`
	MaxHashtags        int      `json:"max_hashtags"`
	MaxMedia           int      `json:"max_media"`
	AllowedMedia       []string `json:"allowed_media"`
	RequiresMedia      bool     `json:"requires_media"`
	MaxDurationSeconds int      `json:"max_duration_seconds,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool                      `json:"running"`
	States      map[string]int            `json:"states"`
	Jobs        map[string]map[string]int `json:"jobs"`
	Pools       []PoolStatus              `json:"pools"`
	LastError   string                    `json:"last_error,omitempty"`
	StageHealth []StageHealth             `json:"stage_health"`
}

// PoolStatus reports worker utilisation for one stage.
type PoolStatus struct {
	Stage   string `json:"stage"`
	Workers int    `json:"workers"`
	Busy    int    `json:"busy"`
}

// StageHealth mirrors readiness reporting for capabilities.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates runtime information.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	StartedAt    string         `json:"started_at,omitempty"`
	DataDir      string         `json:"data_dir"`
	LockPath     string         `json:"lock_path"`
	Database     DatabaseHealth `json:"database"`
	Workflow     WorkflowStatus `json:"workflow"`
	NextSweep    string         `json:"next_sweep,omitempty"`
	NextSchedule string         `json:"next_schedule,omitempty"`
}

// DatabaseHealth reports queue database state.
type DatabaseHealth struct {
	Path           string `json:"path"`
	SchemaVersion  int    `json:"schema_version"`
	ContentItems   int    `json:"content_items"`
	IntegrityCheck bool   `json:"integrity_check"`
	Error          string `json:"error,omitempty"`
}

// SubmitRequest is the body of a content submission.
type SubmitRequest struct {
	OwnerID         string           `json:"owner_id"`
	Text            string           `json:"text"`
	Media           []platform.Media `json:"media,omitempty"`
	Hashtags        []string         `json:"hashtags,omitempty"`
	TargetPlatforms []string         `json:"target_platforms"`
	AnalyzeWithAI   *bool            `json:"analyze_with_ai,omitempty"`
	CallbackURL     string           `json:"callback_url,omitempty"`
	Prompt          string           `json:"prompt,omitempty"`
}

// SubmitResponse acknowledges a submission.
type SubmitResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// ReviewRequest is the body of a review decision.
type ReviewRequest struct {
	ContentID    string   `json:"content_id"`
	ReviewerID   string   `json:"reviewer_id"`
	Decision     string   `json:"decision"`
	Text         *string  `json:"text,omitempty"`
	Hashtags     []string `json:"hashtags,omitempty"`
	ScheduleTime string   `json:"schedule_time,omitempty"`
}

// ContentListResponse wraps a content listing.
type ContentListResponse struct {
	Items []ContentItem `json:"items"`
}

// SweepResponse reports one manual scheduler sweep.
type SweepResponse struct {
	Due     int `json:"due"`
	Started int `json:"started"`
	Failed  int `json:"failed"`
}

// ErrorResponse is the body of every non-2xx API reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
