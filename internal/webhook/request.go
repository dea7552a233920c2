package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"postflow/internal/platform"
	"postflow/internal/services"
)

// Action tags an inbound webhook request.
type Action string

const (
	ActionProcess  Action = "process_content"
	ActionGenerate Action = "generate_content"
	ActionAnalyze  Action = "analyze_content"
)

// ContentData is the content block of a webhook body.
type ContentData struct {
	ID        string   `json:"id,omitempty"`
	OwnerID   string   `json:"owner_id,omitempty"`
	Text      string   `json:"text,omitempty"`
	MediaURLs []string `json:"media_urls,omitempty"`
	Hashtags  []string `json:"hashtags,omitempty"`
	Prompt    string   `json:"prompt,omitempty"`
}

func (c ContentData) media() []platform.Media {
	out := make([]platform.Media, 0, len(c.MediaURLs))
	for _, url := range c.MediaURLs {
		out = append(out, platform.Media{URL: url})
	}
	return out
}

// Request is one decoded webhook variant.
type Request interface {
	Action() Action
}

// ProcessRequest submits ready content into the pipeline.
type ProcessRequest struct {
	Content         ContentData
	TargetPlatforms []string
	AnalyzeWithAI   bool
	CallbackURL     string
}

// GenerateRequest creates content from a prompt.
type GenerateRequest struct {
	OwnerID         string
	Prompt          string
	Hashtags        []string
	TargetPlatforms []string
	AnalyzeWithAI   bool
	CallbackURL     string
}

// AnalyzeRequest runs the analyzer on a stored item or ad-hoc content.
type AnalyzeRequest struct {
	ContentID string
	Content   ContentData
}

func (ProcessRequest) Action() Action  { return ActionProcess }
func (GenerateRequest) Action() Action { return ActionGenerate }
func (AnalyzeRequest) Action() Action  { return ActionAnalyze }

type envelope struct {
	Action          string       `json:"action"`
	ContentData     *ContentData `json:"content_data"`
	TargetPlatforms []string     `json:"target_platforms"`
	AnalyzeWithAI   *bool        `json:"analyze_with_ai"`
	Prompt          string       `json:"prompt"`
	CallbackURL     string       `json:"callback_url"`
}

// Decode parses a webhook body into its request variant. Malformed JSON,
// unknown actions, and variants missing their required fields are reported
// as services.ErrInvalidContent.
func Decode(body []byte) (Request, error) {
	var env envelope
	decoder := json.NewDecoder(bytes.NewReader(body))
	if err := decoder.Decode(&env); err != nil {
		return nil, services.Wrap(services.ErrInvalidContent, "webhook", "decode", "malformed JSON body", err)
	}
	var data ContentData
	if env.ContentData != nil {
		data = *env.ContentData
	}
	analyze := true
	if env.AnalyzeWithAI != nil {
		analyze = *env.AnalyzeWithAI
	}

	switch Action(strings.ToLower(strings.TrimSpace(env.Action))) {
	case ActionProcess:
		if env.ContentData == nil {
			return nil, invalid("process_content requires content_data")
		}
		return ProcessRequest{
			Content:         data,
			TargetPlatforms: env.TargetPlatforms,
			AnalyzeWithAI:   analyze,
			CallbackURL:     strings.TrimSpace(env.CallbackURL),
		}, nil
	case ActionGenerate:
		prompt := strings.TrimSpace(env.Prompt)
		if prompt == "" {
			prompt = strings.TrimSpace(data.Prompt)
		}
		if prompt == "" {
			return nil, invalid("generate_content requires a prompt")
		}
		return GenerateRequest{
			OwnerID:         data.OwnerID,
			Prompt:          prompt,
			Hashtags:        data.Hashtags,
			TargetPlatforms: env.TargetPlatforms,
			AnalyzeWithAI:   analyze,
			CallbackURL:     strings.TrimSpace(env.CallbackURL),
		}, nil
	case ActionAnalyze:
		id := strings.TrimSpace(data.ID)
		if id == "" && strings.TrimSpace(data.Text) == "" {
			return nil, invalid("analyze_content requires content_data.id or content_data.text")
		}
		return AnalyzeRequest{ContentID: id, Content: data}, nil
	case "":
		return nil, invalid("action is required")
	default:
		return nil, invalid(fmt.Sprintf("unknown action %q", env.Action))
	}
}

func invalid(message string) error {
	return services.Wrap(services.ErrInvalidContent, "webhook", "decode", message, nil)
}
