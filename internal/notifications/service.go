package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"postflow/internal/config"
)

const userAgent = "Postflow-Go/0.1.0"

// Event is the notification type posted to receivers.
type Event string

const (
	EventError     Event = "error"
	EventCompleted Event = "completed"
	EventTest      Event = "test"
)

// Notification is the JSON body posted to a receiver.
type Notification struct {
	Type      Event     `json:"type"`
	ContentID string    `json:"content_id,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	// Publish posts n to target, or to the configured default URL when target
	// is empty. Suppressed events and missing targets are no-ops.
	Publish(ctx context.Context, target string, n Notification) error
	// Enabled reports whether events of this type are delivered at all.
	Enabled(event Event) bool
	// Test posts a test notification to the default URL.
	Test(ctx context.Context) error
}

// NewService builds an HTTP notification service. When both error and
// completion notifications are disabled a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	settings := cfg.Notifications
	if !settings.Errors && !settings.Completed {
		return noopService{}
	}

	timeout := time.Duration(settings.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &httpService{
		defaultURL: strings.TrimSpace(settings.URL),
		client:     &http.Client{Timeout: timeout},
		completed:  settings.Completed,
		errors:     settings.Errors,
	}
}

type httpService struct {
	defaultURL string
	client     *http.Client
	completed  bool
	errors     bool
}

func (s *httpService) Enabled(event Event) bool {
	switch event {
	case EventError:
		return s.errors
	case EventCompleted:
		return s.completed
	case EventTest:
		return true
	default:
		return false
	}
}

func (s *httpService) Publish(ctx context.Context, target string, n Notification) error {
	if !s.Enabled(n.Type) {
		return nil
	}
	target = strings.TrimSpace(target)
	if target == "" {
		target = s.defaultURL
	}
	if target == "" {
		return nil
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	n.Message = strings.TrimSpace(n.Message)
	return s.send(ctx, target, n)
}

func (s *httpService) Test(ctx context.Context) error {
	if s.defaultURL == "" {
		return fmt.Errorf("notifications.url is not configured")
	}
	return s.send(ctx, s.defaultURL, Notification{
		Type:      EventTest,
		Message:   "postflow notification test",
		Timestamp: time.Now().UTC(),
	})
}

func (s *httpService) send(ctx context.Context, target string, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("notification receiver returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, string, Notification) error { return nil }
func (noopService) Enabled(Event) bool                                  { return false }
func (noopService) Test(context.Context) error                          { return nil }
