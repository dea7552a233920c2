package api

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"postflow/internal/lifecycle"
	"postflow/internal/platform"
	"postflow/internal/queue"
	"postflow/internal/services"
	"postflow/internal/stage"
	"postflow/internal/workflow"
)

// FromItem converts a queue item into its API representation.
func FromItem(item *queue.Item) ContentItem {
	if item == nil {
		return ContentItem{}
	}
	dto := ContentItem{
		ID:              item.ID,
		OwnerID:         item.OwnerID,
		Text:            item.Text,
		Media:           item.Media,
		Hashtags:        item.Hashtags,
		TargetPlatforms: platformStrings(item.TargetPlatforms),
		State:           string(item.State),
		Terminal:        item.IsTerminal(),
		RenderRound:     item.RenderRound,
		ScheduleTime:    formatTimePtr(item.ScheduleTime),
		Version:         item.Version,
		Origin:          string(item.Origin),
		CallbackURL:     item.CallbackURL,
		AnalyzeWithAI:   item.AnalyzeWithAI,
		CancelRequested: item.CancelRequested,
		CancelledAt:     formatTimePtr(item.CancelledAt),
		Error:           fromErrorRecord(item.LastError),
		CreatedAt:       FormatTime(item.CreatedAt),
		UpdatedAt:       FormatTime(item.UpdatedAt),
	}
	if m := item.Moderation; m != nil {
		dto.Moderation = &Moderation{
			Safe:       m.Safe,
			Score:      m.Score,
			Categories: m.Categories,
			Reason:     m.Reason,
			Moderator:  m.Moderator,
		}
	}
	if a := item.Analysis; a != nil {
		dto.Analysis = &Analysis{
			Sentiment:         a.Sentiment,
			SentimentScore:    a.SentimentScore,
			Keywords:          a.Keywords,
			SuggestedHashtags: a.SuggestedHashtags,
			Summary:           a.Summary,
			Provider:          a.Provider,
			Skipped:           a.Skipped,
		}
	}
	if len(item.Renders) > 0 {
		dto.Renders = make(map[string]Render, len(item.Renders))
		for name, r := range item.Renders {
			if r == nil {
				continue
			}
			render := Render{
				Text:       r.Text,
				Hashtags:   r.Hashtags,
				Media:      r.Media,
				Round:      r.Round,
				RenderedAt: FormatTime(r.RenderedAt),
			}
			if r.Validation != nil {
				render.Validated = true
				render.Valid = r.Validation.OK
				render.Violations = r.Validation.Violations
			}
			dto.Renders[string(name)] = render
		}
	}
	if len(item.PublishResults) > 0 {
		dto.PublishResults = make(map[string]PublishResult, len(item.PublishResults))
		for name, res := range item.PublishResults {
			if res == nil {
				continue
			}
			result := PublishResult{
				PostID:      res.PostID,
				URL:         res.URL,
				PublishedAt: formatTimePtr(res.PublishedAt),
				Error:       res.Error,
			}
			for _, snap := range res.Analytics {
				result.Analytics = append(result.Analytics, AnalyticsSnapshot{
					CollectedAt: FormatTime(snap.CollectedAt),
					Impressions: snap.Impressions,
					Likes:       snap.Likes,
					Shares:      snap.Shares,
					Comments:    snap.Comments,
				})
			}
			dto.PublishResults[string(name)] = result
		}
	}
	return dto
}

// FromItems converts a slice of queue items.
func FromItems(items []*queue.Item) []ContentItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]ContentItem, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, FromItem(item))
	}
	return out
}

// FromJobs converts stage jobs.
func FromJobs(jobs []*queue.Job) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		out = append(out, Job{
			ID:           job.ID,
			Stage:        string(job.Stage),
			Platform:     string(job.Platform),
			Round:        job.Round,
			Status:       string(job.Status),
			AttemptCount: job.AttemptCount,
			Error:        fromErrorRecord(job.LastError),
			NotBefore:    FormatTime(job.NotBefore),
			StartedAt:    formatTimePtr(job.StartedAt),
			FinishedAt:   formatTimePtr(job.FinishedAt),
		})
	}
	return out
}

// FromTransitions converts an item's state history.
func FromTransitions(history []queue.Transition) []Transition {
	out := make([]Transition, 0, len(history))
	for _, tr := range history {
		out = append(out, Transition{
			From:      string(tr.From),
			To:        string(tr.To),
			Event:     string(tr.Event),
			JobID:     tr.JobID,
			CreatedAt: FormatTime(tr.CreatedAt),
		})
	}
	return out
}

// FromDecisions converts recorded review decisions.
func FromDecisions(decisions []queue.Decision) []Decision {
	out := make([]Decision, 0, len(decisions))
	for _, d := range decisions {
		out = append(out, Decision{
			ReviewerID:   d.ReviewerID,
			Decision:     string(d.Decision),
			Edited:       d.Edits != nil,
			ScheduleTime: formatTimePtr(d.ScheduleTime),
			CreatedAt:    FormatTime(d.CreatedAt),
		})
	}
	return out
}

// FromPlatformSpecs converts the platform table in its canonical order.
func FromPlatformSpecs(specs []platform.Spec) []PlatformSpec {
	out := make([]PlatformSpec, 0, len(specs))
	for _, spec := range specs {
		allowed := make([]string, 0, len(spec.AllowedMedia))
		for mediaType := range spec.AllowedMedia {
			allowed = append(allowed, string(mediaType))
		}
		sort.Strings(allowed)
		out = append(out, PlatformSpec{
			Name:               string(spec.Name),
			DisplayName:        spec.DisplayName,
			MaxTextLength:      spec.MaxTextLength,
			MaxHashtags:        spec.MaxHashtags,
			MaxMedia:           spec.MaxMedia,
			AllowedMedia:       allowed,
			RequiresMedia:      spec.RequiresMedia,
			MaxDurationSeconds: int(spec.MaxDuration / time.Second),
		})
	}
	return out
}

// FromStatusSummary converts workflow diagnostics.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:     summary.Running,
		States:      MergeStateStats(summary.Stats.States),
		Jobs:        make(map[string]map[string]int, len(summary.Stats.Jobs)),
		Pools:       make([]PoolStatus, 0, len(summary.Pools)),
		LastError:   summary.LastError,
		StageHealth: StageHealthSlice(summary.Capabilities),
	}
	for stg, counts := range summary.Stats.Jobs {
		byStatus := make(map[string]int, len(counts))
		for jobStatus, n := range counts {
			byStatus[string(jobStatus)] = n
		}
		status.Jobs[string(stg)] = byStatus
	}
	for _, pool := range summary.Pools {
		status.Pools = append(status.Pools, PoolStatus{
			Stage:   string(pool.Stage),
			Workers: pool.Workers,
			Busy:    pool.Busy,
		})
	}
	return status
}

// FromDatabaseHealth converts queue database diagnostics.
func FromDatabaseHealth(health queue.DatabaseHealth) DatabaseHealth {
	return DatabaseHealth{
		Path:           health.DBPath,
		SchemaVersion:  health.SchemaVersion,
		ContentItems:   health.ContentItems,
		IntegrityCheck: health.IntegrityCheck,
		Error:          health.Error,
	}
}

// MergeStateStats fills every known state with a count, defaulting to zero.
func MergeStateStats(stats map[lifecycle.State]int) map[string]int {
	out := make(map[string]int, len(lifecycle.AllStates()))
	for _, state := range lifecycle.AllStates() {
		out[string(state)] = stats[state]
	}
	return out
}

// StageHealthSlice converts capability health into a name-ordered slice.
func StageHealthSlice(health []stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(health))
	for _, h := range health {
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ToSubmission converts a submission request for the orchestrator.
func ToSubmission(req SubmitRequest, origin queue.Origin) workflow.Submission {
	analyze := true
	if req.AnalyzeWithAI != nil {
		analyze = *req.AnalyzeWithAI
	}
	return workflow.Submission{
		OwnerID:         strings.TrimSpace(req.OwnerID),
		Text:            req.Text,
		Media:           req.Media,
		Hashtags:        req.Hashtags,
		TargetPlatforms: req.TargetPlatforms,
		Origin:          origin,
		CallbackURL:     strings.TrimSpace(req.CallbackURL),
		AnalyzeWithAI:   analyze,
		Prompt:          req.Prompt,
	}
}

// ToDecision converts a review request into a queue decision.
func ToDecision(req ReviewRequest) (queue.Decision, error) {
	kind, ok := queue.ParseDecisionKind(req.Decision)
	if !ok {
		return queue.Decision{}, fmt.Errorf("%w: unknown decision %q", services.ErrInvalidContent, req.Decision)
	}
	contentID := strings.TrimSpace(req.ContentID)
	if contentID == "" {
		return queue.Decision{}, fmt.Errorf("%w: content_id is required", services.ErrInvalidContent)
	}
	reviewer := strings.TrimSpace(req.ReviewerID)
	if reviewer == "" {
		return queue.Decision{}, fmt.Errorf("%w: reviewer_id is required", services.ErrInvalidContent)
	}
	decision := queue.Decision{
		ContentID:  contentID,
		ReviewerID: reviewer,
		Decision:   kind,
	}
	if kind == queue.DecisionEdit {
		if req.Text == nil && req.Hashtags == nil {
			return queue.Decision{}, fmt.Errorf("%w: edit requires text or hashtags", services.ErrInvalidContent)
		}
		decision.Edits = &queue.Edits{Text: req.Text, Hashtags: req.Hashtags}
	}
	if raw := strings.TrimSpace(req.ScheduleTime); raw != "" {
		at, err := ParseTime(raw)
		if err != nil {
			return queue.Decision{}, fmt.Errorf("%w: schedule_time: %v", services.ErrInvalidContent, err)
		}
		decision.ScheduleTime = &at
	}
	return decision, nil
}

// FormatTime renders a timestamp in the API format.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// ParseTime accepts RFC3339 timestamps with or without fractional seconds.
func ParseTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateTimeFormat, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatTime(*t)
}

func fromErrorRecord(rec *queue.ErrorRecord) *ErrorDetail {
	if rec == nil {
		return nil
	}
	return &ErrorDetail{Kind: string(rec.Kind), Message: rec.Message}
}

func platformStrings(names []platform.Name) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, string(name))
	}
	return out
}
