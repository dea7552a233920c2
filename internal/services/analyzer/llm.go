package analyzer

import (
	"context"
	"fmt"
	"strings"

	"postflow/internal/queue"
	"postflow/internal/services"
	"postflow/internal/services/llm"
	"postflow/internal/stage"
)

const analysisSystemPrompt = `You analyze social media posts. Respond with JSON only, using this shape:
{"sentiment":"positive|negative|neutral","sentiment_score":<integer -100..100>,"keywords":[<up to 8 lowercase keywords>],"suggested_hashtags":[<hashtags without #>],"summary":"<one sentence>"}`

// LLM analyzes content through a chat completion model.
type LLM struct {
	client      *llm.Client
	maxHashtags int
}

// NewLLM wraps an LLM client as a content analyzer.
func NewLLM(client *llm.Client, maxHashtags int) *LLM {
	if maxHashtags <= 0 {
		maxHashtags = 5
	}
	return &LLM{client: client, maxHashtags: maxHashtags}
}

type llmAnalysis struct {
	Sentiment         string   `json:"sentiment"`
	SentimentScore    int      `json:"sentiment_score"`
	Keywords          []string `json:"keywords"`
	SuggestedHashtags []string `json:"suggested_hashtags"`
	Summary           string   `json:"summary"`
}

// Analyze sends the post text to the model and validates its answer.
func (a *LLM) Analyze(ctx context.Context, content stage.Content) (queue.Analysis, error) {
	prompt := buildUserPrompt(content)
	raw, err := a.client.CompleteJSON(ctx, "analyze content", analysisSystemPrompt, prompt)
	if err != nil {
		return queue.Analysis{}, err
	}
	var parsed llmAnalysis
	if err := llm.DecodeLLMJSON(raw, &parsed); err != nil {
		return queue.Analysis{}, services.Wrap(services.ErrPermanent, "analysis", "decode analysis", "model returned malformed JSON", err)
	}
	label := strings.ToLower(strings.TrimSpace(parsed.Sentiment))
	switch label {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
	default:
		return queue.Analysis{}, services.Wrap(services.ErrPermanent, "analysis", "decode analysis",
			fmt.Sprintf("unknown sentiment %q", parsed.Sentiment), nil)
	}
	tags := make([]string, 0, len(parsed.SuggestedHashtags))
	for _, tag := range parsed.SuggestedHashtags {
		if cleaned := HashtagFor(tag); cleaned != "" {
			tags = append(tags, cleaned)
		}
	}
	if len(tags) == 0 {
		tags = suggestHashtags(parsed.Keywords, a.maxHashtags)
	}
	if len(tags) > a.maxHashtags {
		tags = tags[:a.maxHashtags]
	}
	return queue.Analysis{
		Sentiment:         label,
		SentimentScore:    min(100, max(-100, parsed.SentimentScore)),
		Keywords:          parsed.Keywords,
		SuggestedHashtags: tags,
		Summary:           strings.TrimSpace(parsed.Summary),
		Provider:          "llm:" + a.client.Model(),
	}, nil
}

// HealthCheck pings the model.
func (a *LLM) HealthCheck(ctx context.Context) stage.Health {
	if err := a.client.HealthCheck(ctx); err != nil {
		return stage.Unhealthy("analyzer", err.Error())
	}
	return stage.Healthy("analyzer")
}

func buildUserPrompt(content stage.Content) string {
	var b strings.Builder
	text := strings.TrimSpace(content.Text)
	if text == "" {
		text = strings.TrimSpace(content.Prompt)
	}
	b.WriteString("Post text:\n")
	b.WriteString(text)
	if len(content.Media) > 0 {
		fmt.Fprintf(&b, "\n\nAttached media: %d item(s)", len(content.Media))
		for _, m := range content.Media {
			fmt.Fprintf(&b, "\n- %s (%s)", m.URL, m.Type)
		}
	}
	if len(content.Hashtags) > 0 {
		b.WriteString("\n\nExisting hashtags: ")
		b.WriteString(strings.Join(content.Hashtags, ", "))
	}
	return b.String()
}
