package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidContent        = errors.New("invalid content")
	ErrModerationRejected    = errors.New("moderation rejected")
	ErrValidation            = errors.New("validation error")
	ErrTransient             = errors.New("transient failure")
	ErrPermanent             = errors.New("permanent failure")
	ErrReviewRejected        = errors.New("review rejected")
	ErrRetriesExhausted      = errors.New("retries exhausted")
	ErrCancellationRequested = errors.New("cancellation requested")
	ErrConfiguration         = errors.New("configuration error")
	ErrNotFound              = errors.New("not found")
)

// ErrorKind is the persisted classification of a stage or pipeline failure.
type ErrorKind string

const (
	KindInvalidContent     ErrorKind = "invalid_content"
	KindModerationRejected ErrorKind = "moderation_rejected"
	KindValidation         ErrorKind = "validation"
	KindTransient          ErrorKind = "transient"
	KindPermanent          ErrorKind = "permanent"
	KindReviewRejected     ErrorKind = "review_rejected"
	KindRetriesExhausted   ErrorKind = "retries_exhausted"
)

// ParseErrorKind converts a stored kind back to its typed form.
func ParseErrorKind(value string) (ErrorKind, bool) {
	kind := ErrorKind(strings.TrimSpace(value))
	switch kind {
	case KindInvalidContent, KindModerationRejected, KindValidation, KindTransient,
		KindPermanent, KindReviewRejected, KindRetriesExhausted:
		return kind, true
	default:
		return "", false
	}
}

// Marker returns the sentinel error associated with a kind.
func (k ErrorKind) Marker() error {
	switch k {
	case KindInvalidContent:
		return ErrInvalidContent
	case KindModerationRejected:
		return ErrModerationRejected
	case KindValidation:
		return ErrValidation
	case KindPermanent:
		return ErrPermanent
	case KindReviewRejected:
		return ErrReviewRejected
	case KindRetriesExhausted:
		return ErrRetriesExhausted
	default:
		return ErrTransient
	}
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf classifies any error into an ErrorKind. Errors without a recognised
// marker are treated as transient so an unexpected failure is retried rather
// than dropped.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidContent):
		return KindInvalidContent
	case errors.Is(err, ErrModerationRejected):
		return KindModerationRejected
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrReviewRejected):
		return KindReviewRejected
	case errors.Is(err, ErrRetriesExhausted):
		return KindRetriesExhausted
	case errors.Is(err, ErrPermanent), errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return KindPermanent
	default:
		return KindTransient
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
