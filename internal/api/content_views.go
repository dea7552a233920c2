package api

import (
	"sort"
	"strings"
	"time"
)

// SortNewestFirst orders content items by CreatedAt descending, breaking ties by ID descending.
func SortNewestFirst(items []ContentItem) []ContentItem {
	if len(items) == 0 {
		return nil
	}
	sorted := make([]ContentItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti := parseAPITime(sorted[i].CreatedAt)
		tj := parseAPITime(sorted[j].CreatedAt)
		if ti.Equal(tj) {
			return sorted[i].ID > sorted[j].ID
		}
		return ti.After(tj)
	})
	return sorted
}

// PlatformSummary renders per-platform progress for list views, for example
// "twitter:published linkedin:pending".
func PlatformSummary(item ContentItem) string {
	parts := make([]string, 0, len(item.TargetPlatforms))
	for _, name := range item.TargetPlatforms {
		parts = append(parts, name+":"+platformProgress(item, name))
	}
	return strings.Join(parts, " ")
}

func platformProgress(item ContentItem, name string) string {
	if res, ok := item.PublishResults[name]; ok {
		if res.Error != "" {
			return "failed"
		}
		if res.PostID != "" {
			return "published"
		}
	}
	render, ok := item.Renders[name]
	switch {
	case !ok:
		return "pending"
	case !render.Validated:
		return "rendered"
	case render.Valid:
		return "valid"
	default:
		return "invalid"
	}
}

// Truncate shortens text for table cells.
func Truncate(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

func parseAPITime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := ParseTime(value)
	if err != nil {
		return time.Time{}
	}
	return t
}
