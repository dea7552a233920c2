package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"postflow/internal/config"
	"postflow/internal/platform"
	"postflow/internal/queue"
	"postflow/internal/services"
	"postflow/internal/stage"
)

const maxResponseBytes = 1 << 20

// HTTP posts renders to per-platform HTTP endpoints (typically a bridge
// service holding the platform credentials). Each platform has its own rate
// limiter.
type HTTP struct {
	endpoints  map[platform.Name]string
	token      string
	client     *http.Client
	perSecond  rate.Limit
	burst      int
	mu         sync.Mutex
	limiters   map[platform.Name]*rate.Limiter
	timeNowUTC func() time.Time
}

// NewHTTP constructs an HTTP publisher from configuration.
func NewHTTP(cfg config.Publisher) *HTTP {
	endpoints := make(map[platform.Name]string, len(cfg.Endpoints))
	for name, endpoint := range cfg.Endpoints {
		endpoints[platform.Name(strings.ToLower(strings.TrimSpace(name)))] = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	perSecond := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		perSecond = rate.Limit(float64(cfg.RequestsPerMinute) / 60)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &HTTP{
		endpoints:  endpoints,
		token:      strings.TrimSpace(cfg.Token),
		client:     &http.Client{Timeout: timeout},
		perSecond:  perSecond,
		burst:      burst,
		limiters:   make(map[platform.Name]*rate.Limiter),
		timeNowUTC: func() time.Time { return time.Now().UTC() },
	}
}

type publishRequest struct {
	ContentID string           `json:"content_id"`
	Platform  platform.Name    `json:"platform"`
	Text      string           `json:"text"`
	Hashtags  []string         `json:"hashtags,omitempty"`
	Caption   string           `json:"caption"`
	Media     []platform.Media `json:"media,omitempty"`
}

type publishResponse struct {
	PostID      string     `json:"post_id"`
	URL         string     `json:"url"`
	PublishedAt *time.Time `json:"published_at"`
}

// Publish posts one render. The Idempotency-Key header lets the endpoint
// drop a repeated delivery of the same content and platform.
func (h *HTTP) Publish(ctx context.Context, contentID string, render platform.Render) (stage.Receipt, error) {
	endpoint, err := h.endpointFor(render.Platform, "publish")
	if err != nil {
		return stage.Receipt{}, err
	}
	body, err := json.Marshal(publishRequest{
		ContentID: contentID,
		Platform:  render.Platform,
		Text:      render.Text,
		Hashtags:  render.Hashtags,
		Caption:   render.Caption(),
		Media:     render.Media,
	})
	if err != nil {
		return stage.Receipt{}, services.Wrap(services.ErrPermanent, "publishing", "encode request", "", err)
	}
	var decoded publishResponse
	if err := h.do(ctx, render.Platform, http.MethodPost, endpoint+"/posts", body, contentID+"/"+string(render.Platform), &decoded); err != nil {
		return stage.Receipt{}, err
	}
	if strings.TrimSpace(decoded.PostID) == "" {
		return stage.Receipt{}, services.Wrap(services.ErrPermanent, "publishing", "decode response", "response missing post_id", nil)
	}
	receipt := stage.Receipt{PostID: decoded.PostID, URL: decoded.URL, PublishedAt: h.timeNowUTC()}
	if decoded.PublishedAt != nil {
		receipt.PublishedAt = decoded.PublishedAt.UTC()
	}
	return receipt, nil
}

type metricsResponse struct {
	Impressions int64 `json:"impressions"`
	Likes       int64 `json:"likes"`
	Shares      int64 `json:"shares"`
	Comments    int64 `json:"comments"`
}

// Collect fetches engagement metrics for a published post.
func (h *HTTP) Collect(ctx context.Context, name platform.Name, postID string) (queue.AnalyticsSnapshot, error) {
	endpoint, err := h.endpointFor(name, "collect analytics")
	if err != nil {
		return queue.AnalyticsSnapshot{}, err
	}
	var decoded metricsResponse
	if err := h.do(ctx, name, http.MethodGet, endpoint+"/posts/"+postID+"/metrics", nil, "", &decoded); err != nil {
		return queue.AnalyticsSnapshot{}, err
	}
	return queue.AnalyticsSnapshot{
		CollectedAt: h.timeNowUTC(),
		Impressions: decoded.Impressions,
		Likes:       decoded.Likes,
		Shares:      decoded.Shares,
		Comments:    decoded.Comments,
	}, nil
}

// HealthCheck reports whether endpoints are configured.
func (h *HTTP) HealthCheck(context.Context) stage.Health {
	if len(h.endpoints) == 0 {
		return stage.Unhealthy("publisher", "no publisher endpoints configured")
	}
	return stage.Health{Name: "publisher", Ready: true, Detail: fmt.Sprintf("%d endpoint(s)", len(h.endpoints))}
}

func (h *HTTP) endpointFor(name platform.Name, op string) (string, error) {
	endpoint, ok := h.endpoints[name]
	if !ok || endpoint == "" {
		return "", services.Wrap(services.ErrConfiguration, "publishing", op,
			fmt.Sprintf("no endpoint configured for %s", name), nil)
	}
	return endpoint, nil
}

func (h *HTTP) limiter(name platform.Name) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	limiter, ok := h.limiters[name]
	if !ok {
		limiter = rate.NewLimiter(h.perSecond, h.burst)
		h.limiters[name] = limiter
	}
	return limiter
}

func (h *HTTP) do(ctx context.Context, name platform.Name, method, url string, body []byte, idempotencyKey string, target any) error {
	if err := h.limiter(name).Wait(ctx); err != nil {
		return services.Wrap(services.ErrTransient, "publishing", "rate limit", string(name), err)
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return services.Wrap(services.ErrPermanent, "publishing", "build request", "", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return services.Wrap(services.ErrTransient, "publishing", method+" "+string(name), "request timed out", err)
		}
		return services.Wrap(services.ErrTransient, "publishing", method+" "+string(name), "request failed", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return services.Wrap(services.ErrTransient, "publishing", method+" "+string(name), "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "publishing", method+" "+string(name),
			fmt.Sprintf("http %d: %s", resp.StatusCode, snippet(payload)), nil)
	case resp.StatusCode >= http.StatusBadRequest:
		return services.Wrap(services.ErrPermanent, "publishing", method+" "+string(name),
			fmt.Sprintf("http %d: %s", resp.StatusCode, snippet(payload)), nil)
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return services.Wrap(services.ErrPermanent, "publishing", method+" "+string(name), "malformed response", err)
	}
	return nil
}

func snippet(payload []byte) string {
	text := strings.Join(strings.Fields(string(payload)), " ")
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	if text == "" {
		return "<empty>"
	}
	return text
}
