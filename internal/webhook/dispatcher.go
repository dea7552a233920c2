package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"postflow/internal/config"
	"postflow/internal/lifecycle"
	"postflow/internal/logging"
	"postflow/internal/queue"
	"postflow/internal/services"
	"postflow/internal/stage"
	"postflow/internal/workflow"
)

// Response is the JSON body returned to the webhook caller.
type Response struct {
	Success   bool            `json:"success"`
	Action    Action          `json:"action,omitempty"`
	ContentID string          `json:"content_id,omitempty"`
	State     lifecycle.State `json:"state,omitempty"`
	Analysis  *queue.Analysis `json:"analysis,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Dispatcher maps decoded webhook requests to pipeline entry points.
type Dispatcher struct {
	orchestrator     *workflow.Orchestrator
	store            *queue.Store
	analyzer         stage.Analyzer
	defaultPlatforms []string
	logger           *slog.Logger
}

// NewDispatcher constructs a dispatcher. analyzer serves analyze_content and
// may be nil, in which case those requests fail.
func NewDispatcher(cfg *config.Config, orchestrator *workflow.Orchestrator, store *queue.Store, analyzer stage.Analyzer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		orchestrator:     orchestrator,
		store:            store,
		analyzer:         analyzer,
		defaultPlatforms: cfg.TargetPlatforms(),
		logger:           logging.NewComponentLogger(logger, "webhook"),
	}
}

// Dispatch runs one request.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Response, error) {
	switch r := req.(type) {
	case ProcessRequest:
		return d.submit(ctx, r.Action(), workflow.Submission{
			OwnerID:         r.Content.OwnerID,
			Text:            r.Content.Text,
			Media:           r.Content.media(),
			Hashtags:        r.Content.Hashtags,
			TargetPlatforms: d.targets(r.TargetPlatforms),
			Origin:          queue.OriginWebhook,
			CallbackURL:     r.CallbackURL,
			AnalyzeWithAI:   r.AnalyzeWithAI,
			Prompt:          r.Content.Prompt,
		})
	case GenerateRequest:
		// No generation capability: the prompt becomes the draft text.
		return d.submit(ctx, r.Action(), workflow.Submission{
			OwnerID:         r.OwnerID,
			Text:            r.Prompt,
			Hashtags:        r.Hashtags,
			TargetPlatforms: d.targets(r.TargetPlatforms),
			Origin:          queue.OriginWebhook,
			CallbackURL:     r.CallbackURL,
			AnalyzeWithAI:   r.AnalyzeWithAI,
			Prompt:          r.Prompt,
		})
	case AnalyzeRequest:
		return d.analyze(ctx, r)
	default:
		return Response{}, services.Wrap(services.ErrInvalidContent, "webhook", "dispatch", fmt.Sprintf("unsupported request %T", req), nil)
	}
}

func (d *Dispatcher) targets(requested []string) []string {
	for _, name := range requested {
		if strings.TrimSpace(name) != "" {
			return requested
		}
	}
	return append([]string(nil), d.defaultPlatforms...)
}

func (d *Dispatcher) submit(ctx context.Context, action Action, sub workflow.Submission) (Response, error) {
	id, err := d.orchestrator.Submit(ctx, sub)
	if err != nil {
		return Response{}, err
	}
	state := lifecycle.StateModerating
	if item, err := d.store.GetContent(ctx, id); err == nil && item != nil {
		state = item.State
	}
	logging.WithContext(services.WithContentID(ctx, id), d.logger).Info("webhook content accepted",
		logging.String(logging.FieldEventType, "webhook_accepted"),
		logging.String("action", string(action)),
	)
	return Response{Success: true, Action: action, ContentID: id, State: state}, nil
}

func (d *Dispatcher) analyze(ctx context.Context, r AnalyzeRequest) (Response, error) {
	if d.analyzer == nil {
		return Response{}, services.Wrap(services.ErrConfiguration, "webhook", "analyze", "no analyzer configured", nil)
	}
	content := stage.Content{
		Text:     r.Content.Text,
		Media:    r.Content.media(),
		Hashtags: r.Content.Hashtags,
		Prompt:   r.Content.Prompt,
	}
	if r.ContentID != "" {
		item, err := d.store.GetContent(ctx, r.ContentID)
		if err != nil {
			return Response{}, err
		}
		if item == nil {
			return Response{}, services.Wrap(services.ErrNotFound, "webhook", "analyze", fmt.Sprintf("content %s not found", r.ContentID), nil)
		}
		content = stage.ContentFromItem(item)
	}
	analysis, err := d.analyzer.Analyze(ctx, content)
	if err != nil {
		return Response{}, err
	}
	return Response{Success: true, Action: ActionAnalyze, ContentID: r.ContentID, Analysis: &analysis}, nil
}
