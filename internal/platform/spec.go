package platform

import (
	"sort"
	"strings"
	"time"
)

// Name identifies a target social platform.
type Name string

const (
	Twitter   Name = "twitter"
	Instagram Name = "instagram"
	TikTok    Name = "tiktok"
	Facebook  Name = "facebook"
	LinkedIn  Name = "linkedin"
)

// MediaType classifies an attached media reference.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaGIF   MediaType = "gif"
	MediaVideo MediaType = "video"
)

const megabyte = 1024 * 1024

// MediaRule bounds one media type on a platform.
type MediaRule struct {
	MaxCount     int   `json:"max_count"`
	MaxSizeBytes int64 `json:"max_size_bytes"`
}

// Spec is the static rule set for one platform.
type Spec struct {
	Name          Name                    `json:"name"`
	DisplayName   string                  `json:"display_name"`
	MaxTextLength int                     `json:"max_text_length"`
	MaxHashtags   int                     `json:"max_hashtags"`
	MaxMedia      int                     `json:"max_media"`
	AllowedMedia  map[MediaType]MediaRule `json:"allowed_media"`
	RequiresMedia bool                    `json:"requires_media"`
	MaxDuration   time.Duration           `json:"max_duration"`
	MinAspect     float64                 `json:"min_aspect,omitempty"`
	MaxAspect     float64                 `json:"max_aspect,omitempty"`
}

var defaultSpecs = []Spec{
	{
		Name:          Twitter,
		DisplayName:   "Twitter/X",
		MaxTextLength: 280,
		MaxHashtags:   3,
		MaxMedia:      4,
		AllowedMedia: map[MediaType]MediaRule{
			MediaImage: {MaxCount: 4, MaxSizeBytes: 5 * megabyte},
			MediaGIF:   {MaxCount: 1, MaxSizeBytes: 15 * megabyte},
			MediaVideo: {MaxCount: 1, MaxSizeBytes: 512 * megabyte},
		},
		MaxDuration: 140 * time.Second,
	},
	{
		Name:          Instagram,
		DisplayName:   "Instagram",
		MaxTextLength: 2200,
		MaxHashtags:   30,
		MaxMedia:      10,
		AllowedMedia: map[MediaType]MediaRule{
			MediaImage: {MaxCount: 10, MaxSizeBytes: 8 * megabyte},
			MediaVideo: {MaxCount: 1, MaxSizeBytes: 100 * megabyte},
		},
		RequiresMedia: true,
		MaxDuration:   60 * time.Second,
		MinAspect:     0.8,
		MaxAspect:     1.91,
	},
	{
		Name:          TikTok,
		DisplayName:   "TikTok",
		MaxTextLength: 150,
		MaxHashtags:   5,
		MaxMedia:      1,
		AllowedMedia: map[MediaType]MediaRule{
			MediaVideo: {MaxCount: 1, MaxSizeBytes: 72 * megabyte},
		},
		RequiresMedia: true,
		MaxDuration:   180 * time.Second,
	},
	{
		Name:          Facebook,
		DisplayName:   "Facebook",
		MaxTextLength: 63206,
		MaxHashtags:   30,
		MaxMedia:      10,
		AllowedMedia: map[MediaType]MediaRule{
			MediaImage: {MaxCount: 10, MaxSizeBytes: 10 * megabyte},
			MediaGIF:   {MaxCount: 1, MaxSizeBytes: 25 * megabyte},
			MediaVideo: {MaxCount: 1, MaxSizeBytes: 4000 * megabyte},
		},
		MaxDuration: 240 * time.Second,
	},
	{
		Name:          LinkedIn,
		DisplayName:   "LinkedIn",
		MaxTextLength: 3000,
		MaxHashtags:   5,
		MaxMedia:      20,
		AllowedMedia: map[MediaType]MediaRule{
			MediaImage: {MaxCount: 20, MaxSizeBytes: 10 * megabyte},
			MediaVideo: {MaxCount: 1, MaxSizeBytes: 5000 * megabyte},
		},
		MaxDuration: 600 * time.Second,
	},
}

// Override adjusts text and hashtag limits for a platform. Zero values keep
// the built-in limit.
type Override struct {
	MaxTextLength int
	MaxHashtags   int
}

// Table is a read-only set of platform specs keyed by name.
type Table struct {
	specs map[Name]Spec
}

// DefaultTable returns the built-in platform rules.
func DefaultTable() Table {
	return NewTable(nil)
}

// NewTable builds the platform table, applying overrides keyed by platform name.
func NewTable(overrides map[string]Override) Table {
	specs := make(map[Name]Spec, len(defaultSpecs))
	for _, spec := range defaultSpecs {
		copied := spec
		copied.AllowedMedia = make(map[MediaType]MediaRule, len(spec.AllowedMedia))
		for k, v := range spec.AllowedMedia {
			copied.AllowedMedia[k] = v
		}
		if o, ok := overrides[string(spec.Name)]; ok {
			if o.MaxTextLength > 0 {
				copied.MaxTextLength = o.MaxTextLength
			}
			if o.MaxHashtags > 0 {
				copied.MaxHashtags = o.MaxHashtags
			}
		}
		specs[spec.Name] = copied
	}
	return Table{specs: specs}
}

// Lookup returns the spec for a platform name.
func (t Table) Lookup(name Name) (Spec, bool) {
	spec, ok := t.specs[Name(strings.ToLower(strings.TrimSpace(string(name))))]
	return spec, ok
}

// Known reports whether name is a supported platform.
func (t Table) Known(name Name) bool {
	_, ok := t.Lookup(name)
	return ok
}

// All returns every spec sorted by name.
func (t Table) All() []Spec {
	out := make([]Spec, 0, len(t.specs))
	for _, spec := range t.specs {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
