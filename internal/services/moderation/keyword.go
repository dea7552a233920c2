package moderation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"postflow/internal/queue"
	"postflow/internal/stage"
)

// questionableThreshold marks content that passes but is flagged for reviewers.
const questionableThreshold = 0.6

const moderatorName = "keyword"

// Keyword flags content containing blocked terms. Each distinct term found
// halves the remaining headroom, so risk is 1 - 0.5^hits.
type Keyword struct {
	terms     []string
	threshold float64
}

// NewKeyword constructs a moderator. Content whose risk reaches threshold is
// unsafe.
func NewKeyword(terms []string, threshold float64) *Keyword {
	normalized := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		normalized = append(normalized, term)
	}
	sort.Strings(normalized)
	if threshold <= 0 || threshold > 1 {
		threshold = 0.8
	}
	return &Keyword{terms: normalized, threshold: threshold}
}

// Moderate scores the text, hashtags, and media references of the content.
func (k *Keyword) Moderate(ctx context.Context, content stage.Content) (queue.ModerationResult, error) {
	if err := ctx.Err(); err != nil {
		return queue.ModerationResult{}, err
	}
	haystack := buildHaystack(content)
	var hits []string
	for _, term := range k.terms {
		if containsTerm(haystack, term) {
			hits = append(hits, term)
		}
	}
	risk := 1 - math.Pow(0.5, float64(len(hits)))
	result := queue.ModerationResult{
		Safe:       risk < k.threshold,
		Score:      math.Round(risk*1000) / 1000,
		Categories: hits,
		Moderator:  moderatorName,
	}
	switch {
	case !result.Safe:
		result.Reason = fmt.Sprintf("blocked terms: %s", strings.Join(hits, ", "))
	case risk >= questionableThreshold:
		result.Reason = fmt.Sprintf("questionable terms: %s", strings.Join(hits, ", "))
	}
	return result, nil
}

// HealthCheck reports whether any terms are configured.
func (k *Keyword) HealthCheck(context.Context) stage.Health {
	if len(k.terms) == 0 {
		return stage.Unhealthy("moderator", "no blocked terms configured")
	}
	return stage.Healthy("moderator")
}

func buildHaystack(content stage.Content) string {
	parts := []string{content.Text, content.Prompt}
	parts = append(parts, content.Hashtags...)
	for _, m := range content.Media {
		parts = append(parts, m.URL)
	}
	return " " + normalizeText(strings.Join(parts, " ")) + " "
}

// normalizeText lowercases and collapses every non-alphanumeric run (other
// than '-') to one space so terms match on word boundaries.
func normalizeText(value string) string {
	var b strings.Builder
	space := true
	for _, r := range strings.ToLower(value) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

func containsTerm(haystack, term string) bool {
	return strings.Contains(haystack, " "+normalizeText(term)+" ")
}
