package stage

import (
	"postflow/internal/lifecycle"
	"postflow/internal/platform"
	"postflow/internal/queue"
	"postflow/internal/services"
)

// Payload is the typed result of one successful stage job. The set of
// implementations is closed to this package.
type Payload interface {
	Stage() lifecycle.Stage
	sealed()
}

// ModerationPayload carries the moderator verdict.
type ModerationPayload struct {
	Result queue.ModerationResult
}

// AnalysisPayload carries the analyzer enrichment.
type AnalysisPayload struct {
	Analysis queue.Analysis
}

// CaptionPayload carries one render per target platform.
type CaptionPayload struct {
	Renders map[platform.Name]platform.Render
}

// ValidationPayload carries the verdict for one platform render.
type ValidationPayload struct {
	Platform platform.Name
	Round    int
	Result   platform.ValidationResult
}

// PublishPayload carries the receipt for one platform.
type PublishPayload struct {
	Platform platform.Name
	Receipt  Receipt
}

// AnalyticsPayload carries one metrics snapshot for one platform.
type AnalyticsPayload struct {
	Platform platform.Name
	Snapshot queue.AnalyticsSnapshot
}

func (ModerationPayload) Stage() lifecycle.Stage { return lifecycle.StageModeration }
func (AnalysisPayload) Stage() lifecycle.Stage   { return lifecycle.StageAnalysis }
func (CaptionPayload) Stage() lifecycle.Stage    { return lifecycle.StageCaptioning }
func (ValidationPayload) Stage() lifecycle.Stage { return lifecycle.StageValidation }
func (PublishPayload) Stage() lifecycle.Stage    { return lifecycle.StagePublishing }
func (AnalyticsPayload) Stage() lifecycle.Stage  { return lifecycle.StageAnalytics }

func (ModerationPayload) sealed() {}
func (AnalysisPayload) sealed()   {}
func (CaptionPayload) sealed()    {}
func (ValidationPayload) sealed() {}
func (PublishPayload) sealed()    {}
func (AnalyticsPayload) sealed()  {}

// Outcome is what a worker reports for a finished job: a payload on success
// or a classified error on failure.
type Outcome struct {
	Payload Payload
	Err     error
}

// Success wraps a payload.
func Success(payload Payload) Outcome {
	return Outcome{Payload: payload}
}

// Failure wraps an error. Unclassified errors are treated as transient.
func Failure(err error) Outcome {
	if err == nil {
		err = services.Wrap(services.ErrTransient, "", "", "job failed without an error", nil)
	}
	return Outcome{Err: err}
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool {
	return o.Err == nil && o.Payload != nil
}

// Kind classifies a failed outcome.
func (o Outcome) Kind() services.ErrorKind {
	if o.OK() {
		return ""
	}
	if o.Err == nil {
		return services.KindTransient
	}
	return services.KindOf(o.Err)
}
