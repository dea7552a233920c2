package platform

import (
	"path"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Media is one attached media reference.
type Media struct {
	URL             string    `json:"url"`
	Type            MediaType `json:"type"`
	SizeBytes       int64     `json:"size_bytes,omitempty"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	Width           int       `json:"width,omitempty"`
	Height          int       `json:"height,omitempty"`
}

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".webp": {},
}

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".avi": {}, ".mov": {}, ".wmv": {}, ".flv": {}, ".webm": {},
}

// DetectMediaType infers a media type from a reference's file extension.
func DetectMediaType(ref string) (MediaType, bool) {
	cleaned := ref
	if idx := strings.IndexAny(cleaned, "?#"); idx >= 0 {
		cleaned = cleaned[:idx]
	}
	ext := strings.ToLower(path.Ext(cleaned))
	if ext == ".gif" {
		return MediaGIF, true
	}
	if _, ok := imageExtensions[ext]; ok {
		return MediaImage, true
	}
	if _, ok := videoExtensions[ext]; ok {
		return MediaVideo, true
	}
	return "", false
}

// Render is the platform-adapted form of a content item.
type Render struct {
	Platform Name     `json:"platform"`
	Text     string   `json:"text"`
	Hashtags []string `json:"hashtags,omitempty"`
	Media    []Media  `json:"media,omitempty"`
}

// Caption composes the text and hashtags as they would be posted.
func (r Render) Caption() string {
	tags := FormatHashtags(r.Hashtags)
	text := strings.TrimSpace(r.Text)
	switch {
	case tags == "":
		return text
	case text == "":
		return tags
	default:
		return text + "\n\n" + tags
	}
}

// FormatHashtags renders tags as a space separated "#tag" list.
func FormatHashtags(tags []string) string {
	parts := make([]string, 0, len(tags))
	for _, tag := range tags {
		cleaned := NormalizeHashtag(tag)
		if cleaned == "" {
			continue
		}
		parts = append(parts, "#"+cleaned)
	}
	return strings.Join(parts, " ")
}

// NormalizeHashtag strips the leading '#' and surrounding whitespace.
func NormalizeHashtag(tag string) string {
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(tag), "#"))
}

// DistinctHashtags returns tags deduplicated case-insensitively, first spelling wins.
func DistinctHashtags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		cleaned := NormalizeHashtag(tag)
		if cleaned == "" {
			continue
		}
		key := strings.ToLower(cleaned)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, cleaned)
	}
	return out
}

// CharCount counts user-perceived characters as runes after NFC normalization.
func CharCount(s string) int {
	return utf8.RuneCountInString(norm.NFC.String(s))
}

// Truncate shortens s to at most limit characters, ending with "..." when cut.
func Truncate(s string, limit int) string {
	normalized := norm.NFC.String(s)
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(normalized) <= limit {
		return normalized
	}
	runes := []rune(normalized)
	if limit <= 3 {
		return string(runes[:limit])
	}
	return strings.TrimRightFunc(string(runes[:limit-3]), isSpace) + "..."
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t'
}

// Fit trims a render so its caption and hashtags satisfy the spec's text rules.
// Media is left untouched; media violations require a different render.
func Fit(r Render, spec Spec) Render {
	out := r
	out.Hashtags = DistinctHashtags(r.Hashtags)
	if spec.MaxHashtags >= 0 && len(out.Hashtags) > spec.MaxHashtags {
		out.Hashtags = out.Hashtags[:spec.MaxHashtags]
	}
	if spec.MaxTextLength <= 0 || CharCount(out.Caption()) <= spec.MaxTextLength {
		return out
	}
	tags := FormatHashtags(out.Hashtags)
	budget := spec.MaxTextLength
	if tags != "" {
		budget -= CharCount(tags) + 2
	}
	if budget < 4 {
		out.Hashtags = nil
		budget = spec.MaxTextLength
	}
	out.Text = Truncate(out.Text, budget)
	return out
}
