package platform

import (
	"fmt"
	"time"
)

// Category groups validation rules. Each category yields at most one violation.
type Category string

const (
	CategoryTextLength Category = "text_length"
	CategoryMedia      Category = "media"
	CategoryDuration   Category = "duration"
	CategoryHashtags   Category = "hashtags"
	// CategoryRejected carries a verdict reported by a capability rather than
	// one of the rules above.
	CategoryRejected Category = "rejected"
)

// Violation describes one failed rule.
type Violation struct {
	Category Category `json:"category"`
	Message  string   `json:"message"`
	Limit    int64    `json:"limit"`
	Actual   int64    `json:"actual"`
}

// ValidationResult is the verdict for one render on one platform.
type ValidationResult struct {
	OK         bool        `json:"ok"`
	Violations []Violation `json:"violations,omitempty"`
}

// Validate applies the platform rules to a render. Every category is checked
// in a fixed order; the first failing rule inside a category is reported.
func Validate(r Render, spec Spec) ValidationResult {
	var violations []Violation
	if v, ok := checkTextLength(r, spec); !ok {
		violations = append(violations, v)
	}
	if v, ok := checkMedia(r, spec); !ok {
		violations = append(violations, v)
	}
	if v, ok := checkDuration(r, spec); !ok {
		violations = append(violations, v)
	}
	if v, ok := checkHashtags(r, spec); !ok {
		violations = append(violations, v)
	}
	return ValidationResult{OK: len(violations) == 0, Violations: violations}
}

func checkTextLength(r Render, spec Spec) (Violation, bool) {
	count := CharCount(r.Caption())
	if spec.MaxTextLength > 0 && count > spec.MaxTextLength {
		return Violation{
			Category: CategoryTextLength,
			Message:  fmt.Sprintf("text is %d characters; %s allows %d", count, spec.Name, spec.MaxTextLength),
			Limit:    int64(spec.MaxTextLength),
			Actual:   int64(count),
		}, false
	}
	return Violation{}, true
}

func checkMedia(r Render, spec Spec) (Violation, bool) {
	if len(r.Media) == 0 {
		if spec.RequiresMedia {
			return Violation{
				Category: CategoryMedia,
				Message:  fmt.Sprintf("%s requires at least one media attachment", spec.Name),
				Limit:    1,
			}, false
		}
		return Violation{}, true
	}
	if spec.MaxMedia > 0 && len(r.Media) > spec.MaxMedia {
		return Violation{
			Category: CategoryMedia,
			Message:  fmt.Sprintf("%d media attachments; %s allows %d", len(r.Media), spec.Name, spec.MaxMedia),
			Limit:    int64(spec.MaxMedia),
			Actual:   int64(len(r.Media)),
		}, false
	}
	counts := make(map[MediaType]int, len(spec.AllowedMedia))
	for _, m := range r.Media {
		rule, ok := spec.AllowedMedia[m.Type]
		if !ok {
			return Violation{
				Category: CategoryMedia,
				Message:  fmt.Sprintf("media type %q is not supported on %s", m.Type, spec.Name),
			}, false
		}
		counts[m.Type]++
		if rule.MaxCount > 0 && counts[m.Type] > rule.MaxCount {
			return Violation{
				Category: CategoryMedia,
				Message:  fmt.Sprintf("too many %s attachments; %s allows %d", m.Type, spec.Name, rule.MaxCount),
				Limit:    int64(rule.MaxCount),
				Actual:   int64(counts[m.Type]),
			}, false
		}
		if rule.MaxSizeBytes > 0 && m.SizeBytes > rule.MaxSizeBytes {
			return Violation{
				Category: CategoryMedia,
				Message:  fmt.Sprintf("%s %s is %d bytes; limit is %d", m.Type, m.URL, m.SizeBytes, rule.MaxSizeBytes),
				Limit:    rule.MaxSizeBytes,
				Actual:   m.SizeBytes,
			}, false
		}
		if v, ok := checkAspect(m, spec); !ok {
			return v, false
		}
	}
	return Violation{}, true
}

func checkAspect(m Media, spec Spec) (Violation, bool) {
	if m.Width <= 0 || m.Height <= 0 || (spec.MinAspect <= 0 && spec.MaxAspect <= 0) {
		return Violation{}, true
	}
	ratio := float64(m.Width) / float64(m.Height)
	if (spec.MinAspect > 0 && ratio < spec.MinAspect) || (spec.MaxAspect > 0 && ratio > spec.MaxAspect) {
		return Violation{
			Category: CategoryMedia,
			Message:  fmt.Sprintf("aspect ratio %.2f of %s is outside %.2f-%.2f for %s", ratio, m.URL, spec.MinAspect, spec.MaxAspect, spec.Name),
		}, false
	}
	return Violation{}, true
}

func checkDuration(r Render, spec Spec) (Violation, bool) {
	if spec.MaxDuration <= 0 {
		return Violation{}, true
	}
	for _, m := range r.Media {
		if m.Type != MediaVideo {
			continue
		}
		actual := time.Duration(m.DurationSeconds * float64(time.Second))
		if actual > spec.MaxDuration {
			return Violation{
				Category: CategoryDuration,
				Message:  fmt.Sprintf("video %s runs %s; %s allows %s", m.URL, actual.Round(time.Second), spec.Name, spec.MaxDuration),
				Limit:    int64(spec.MaxDuration / time.Second),
				Actual:   int64(actual / time.Second),
			}, false
		}
	}
	return Violation{}, true
}

func checkHashtags(r Render, spec Spec) (Violation, bool) {
	count := len(DistinctHashtags(r.Hashtags))
	if count > spec.MaxHashtags {
		return Violation{
			Category: CategoryHashtags,
			Message:  fmt.Sprintf("%d hashtags; %s allows %d", count, spec.Name, spec.MaxHashtags),
			Limit:    int64(spec.MaxHashtags),
			Actual:   int64(count),
		}, false
	}
	return Violation{}, true
}
