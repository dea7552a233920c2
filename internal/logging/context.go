package logging

import (
	"context"
	"log/slog"

	"postflow/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldContentID is the standardized key for content item identifiers.
	FieldContentID = "content_id"
	// FieldJobID is the standardized key for stage job identifiers.
	FieldJobID = "job_id"
	// FieldStage is the standardized key for pipeline stage names.
	FieldStage = "stage"
	// FieldPlatform is the standardized key for target platform names.
	FieldPlatform = "platform"
	// FieldState is the standardized key for content lifecycle states.
	FieldState = "state"
	// FieldEventType categorizes a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next operator action for warnings and errors.
	FieldErrorHint = "error_hint"
	// FieldErrorKind carries the classified ErrorKind of a failure.
	FieldErrorKind = "error_kind"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldCorrelationID is the standardized key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 5)
	if id, ok := services.ContentIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldContentID, id))
	}
	if id, ok := services.JobIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldJobID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if platform, ok := services.PlatformFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPlatform, platform))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
