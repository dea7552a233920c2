package captioner

import (
	"context"
	"strings"

	"postflow/internal/platform"
	"postflow/internal/services"
	"postflow/internal/stage"
)

// Options controls how the template captioner adapts content.
type Options struct {
	// FitToPlatform truncates text and drops hashtags to satisfy the text
	// rules of each platform.
	FitToPlatform bool
	// IncludeSuggestedTags appends analyzer hashtag suggestions while the
	// platform hashtag limit allows.
	IncludeSuggestedTags bool
}

// Template renders content without a generative model: the submitter's text
// and hashtags, optionally enriched with suggested tags and fitted.
type Template struct {
	opts Options
}

// NewTemplate constructs a template captioner.
func NewTemplate(opts Options) *Template {
	return &Template{opts: opts}
}

// Caption renders the content for one platform.
func (c *Template) Caption(ctx context.Context, content stage.Content, spec platform.Spec) (platform.Render, error) {
	if err := ctx.Err(); err != nil {
		return platform.Render{}, err
	}
	text := strings.TrimSpace(content.Text)
	if text == "" {
		text = strings.TrimSpace(content.Prompt)
	}
	if text == "" && content.Analysis != nil {
		text = strings.TrimSpace(content.Analysis.Summary)
	}
	if text == "" && len(content.Media) == 0 {
		return platform.Render{}, services.Wrap(services.ErrPermanent, "captioning", "render",
			"content has neither text nor media", nil)
	}

	hashtags := platform.DistinctHashtags(content.Hashtags)
	if c.opts.IncludeSuggestedTags && content.Analysis != nil {
		for _, tag := range platform.DistinctHashtags(content.Analysis.SuggestedHashtags) {
			if len(hashtags) >= spec.MaxHashtags {
				break
			}
			hashtags = platform.DistinctHashtags(append(hashtags, tag))
		}
	}

	render := platform.Render{
		Platform: spec.Name,
		Text:     stripInlineHashtags(text, hashtags),
		Hashtags: hashtags,
		Media:    append([]platform.Media(nil), content.Media...),
	}
	if c.opts.FitToPlatform {
		render = platform.Fit(render, spec)
	}
	return render, nil
}

// HealthCheck always reports ready.
func (c *Template) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("captioner")
}

// stripInlineHashtags removes trailing "#tag" words that duplicate the
// rendered hashtag list, so a tag is never posted twice.
func stripInlineHashtags(text string, hashtags []string) string {
	if len(hashtags) == 0 {
		return text
	}
	known := make(map[string]struct{}, len(hashtags))
	for _, tag := range hashtags {
		known[strings.ToLower(platform.NormalizeHashtag(tag))] = struct{}{}
	}
	words := strings.Fields(text)
	end := len(words)
	for end > 0 {
		word := words[end-1]
		if !strings.HasPrefix(word, "#") {
			break
		}
		if _, ok := known[strings.ToLower(platform.NormalizeHashtag(word))]; !ok {
			break
		}
		end--
	}
	if end == len(words) {
		return text
	}
	return strings.Join(words[:end], " ")
}
