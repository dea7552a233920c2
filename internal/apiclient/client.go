package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"postflow/internal/api"
)

// ErrDaemonUnavailable is returned when the daemon cannot be reached.
var ErrDaemonUnavailable = errors.New("postflow daemon unavailable")

// Error is a non-2xx reply from the daemon.
type Error struct {
	Status  int
	Kind    string
	Message string
}

func (e *Error) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("daemon returned %d (%s): %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client talks to the daemon HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// New constructs a client for the daemon at baseURL.
func New(baseURL, token string) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("daemon address is empty")
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse daemon address: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Status fetches daemon and workflow status.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &out)
	return out, err
}

// Submit enqueues new content.
func (c *Client) Submit(ctx context.Context, req api.SubmitRequest) (api.SubmitResponse, error) {
	var out api.SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/content", nil, req, &out)
	return out, err
}

// List returns content items, optionally filtered by state.
func (c *Client) List(ctx context.Context, states []string) ([]api.ContentItem, error) {
	query := url.Values{}
	for _, state := range states {
		if state = strings.TrimSpace(state); state != "" {
			query.Add("state", state)
		}
	}
	var out api.ContentListResponse
	if err := c.do(ctx, http.MethodGet, "/api/content", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Describe fetches one item with its jobs and history.
func (c *Client) Describe(ctx context.Context, id string) (*api.ContentDetail, error) {
	var out api.ContentDetail
	if err := c.do(ctx, http.MethodGet, "/api/content/"+id, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel requests cancellation of an item.
func (c *Client) Cancel(ctx context.Context, id string) (api.ContentItem, error) {
	var out api.ContentItem
	err := c.do(ctx, http.MethodPost, "/api/content/"+id+"/cancel", nil, nil, &out)
	return out, err
}

// Review records a review decision.
func (c *Client) Review(ctx context.Context, req api.ReviewRequest) (api.ContentItem, error) {
	var out api.ContentItem
	err := c.do(ctx, http.MethodPost, "/api/review", nil, req, &out)
	return out, err
}

// Sweep triggers a scheduler sweep.
func (c *Client) Sweep(ctx context.Context) (api.SweepResponse, error) {
	var out api.SweepResponse
	err := c.do(ctx, http.MethodPost, "/api/scheduler/sweep", nil, nil, &out)
	return out, err
}

// Platforms lists the platform rule table the daemon is using.
func (c *Client) Platforms(ctx context.Context) ([]api.PlatformSpec, error) {
	var out []api.PlatformSpec
	err := c.do(ctx, http.MethodGet, "/api/platforms", nil, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c == nil {
		return ErrDaemonUnavailable
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &Error{Status: resp.StatusCode}
		var payload api.ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Kind = payload.Kind
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
