package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"postflow/internal/config"
	"postflow/internal/lifecycle"
	"postflow/internal/logging"
	"postflow/internal/notifications"
	"postflow/internal/queue"
	"postflow/internal/workflow"
)

const notifyTimeout = 15 * time.Second

// Notifier posts error and completion notifications for committed state
// changes. Delivery is asynchronous, best effort, and never retried.
type Notifier struct {
	service         notifications.Service
	defaultCallback string
	logger          *slog.Logger
	wg              sync.WaitGroup
}

// NewNotifier constructs an orchestrator observer.
func NewNotifier(cfg *config.Config, service notifications.Service, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Notifier{
		service:         service,
		defaultCallback: strings.TrimSpace(cfg.Webhook.CallbackURL),
		logger:          logging.NewComponentLogger(logger, "webhook-notifier"),
	}
}

// ContentChanged emits a notification when an item fails, is rejected, or is
// published.
func (n *Notifier) ContentChanged(ctx context.Context, change workflow.Change) {
	item := change.Item
	if item == nil || n.service == nil {
		return
	}
	var note notifications.Notification
	switch {
	case change.Entered(lifecycle.StateFailed), change.Entered(lifecycle.StateRejected):
		note = notifications.Notification{Type: notifications.EventError, ContentID: item.ID, Message: failureMessage(item)}
	case change.Entered(lifecycle.StatePublished):
		note = notifications.Notification{Type: notifications.EventCompleted, ContentID: item.ID, Message: publishedMessage(item)}
	default:
		return
	}
	if !n.service.Enabled(note.Type) {
		return
	}
	target := item.CallbackURL
	if target == "" && item.Origin == queue.OriginWebhook {
		target = n.defaultCallback
	}

	logger := logging.WithContext(ctx, n.logger)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := n.service.Publish(sendCtx, target, note); err != nil {
			logger.Warn("notification delivery failed",
				logging.String("notification_type", string(note.Type)),
				logging.Error(err),
				logging.String(logging.FieldEventType, "notification_failed"),
				logging.String(logging.FieldErrorHint, "check the callback url or notifications.url"),
			)
			return
		}
		logger.Debug("notification delivered", logging.String("notification_type", string(note.Type)))
	}()
}

// JobFinished is a no-op; notifications follow item state only.
func (n *Notifier) JobFinished(context.Context, workflow.JobResult) {}

// Wait blocks until every in-flight notification finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func failureMessage(item *queue.Item) string {
	if item.LastError != nil && item.LastError.Message != "" {
		return fmt.Sprintf("%s: %s", item.LastError.Kind, item.LastError.Message)
	}
	return fmt.Sprintf("content %s", item.State)
}

func publishedMessage(item *queue.Item) string {
	parts := make([]string, 0, len(item.TargetPlatforms))
	for _, name := range item.TargetPlatforms {
		result := item.PublishResults[name]
		if result != nil && result.URL != "" {
			parts = append(parts, fmt.Sprintf("%s (%s)", name, result.URL))
			continue
		}
		parts = append(parts, string(name))
	}
	return "published to " + strings.Join(parts, ", ")
}
