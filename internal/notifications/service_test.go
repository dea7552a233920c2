package notifications_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"postflow/internal/config"
	"postflow/internal/notifications"
)

func TestNewServiceReturnsNoopWhenDisabled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.URL = server.URL
	cfg.Notifications.Errors = false
	cfg.Notifications.Completed = false
	svc := notifications.NewService(&cfg)
	if svc.Enabled(notifications.EventError) {
		t.Fatal("expected errors disabled")
	}
	if err := svc.Publish(context.Background(), "", notifications.Notification{Type: notifications.EventError, Message: "boom"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestPublishPostsJSON(t *testing.T) {
	stamp := time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)
	tests := []struct {
		name        string
		useTarget   bool
		payload     notifications.Notification
		expectType  string
		expectBody  string
		expectStamp string
	}{
		{
			name:        "completed to default url",
			payload:     notifications.Notification{Type: notifications.EventCompleted, ContentID: "c-1", Message: " published to twitter ", Timestamp: stamp},
			expectType:  "completed",
			expectBody:  "published to twitter",
			expectStamp: "2026-05-01T08:30:00Z",
		},
		{
			name:        "error to callback url",
			useTarget:   true,
			payload:     notifications.Notification{Type: notifications.EventError, ContentID: "c-2", Message: "moderation rejected", Timestamp: stamp},
			expectType:  "error",
			expectBody:  "moderation rejected",
			expectStamp: "2026-05-01T08:30:00Z",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var (
				path    string
				decoded map[string]any
			)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				if ct := r.Header.Get("Content-Type"); ct != "application/json" {
					t.Errorf("unexpected content type %q", ct)
				}
				path = r.URL.Path
				if err := json.NewDecoder(r.Body).Decode(&decoded); err != nil {
					t.Errorf("decode body: %v", err)
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.URL = server.URL + "/default"
			cfg.Notifications.Errors = true
			cfg.Notifications.Completed = true
			cfg.Notifications.RequestTimeout = 5

			target := ""
			if tc.useTarget {
				target = server.URL + "/callback"
			}
			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), target, tc.payload); err != nil {
				t.Fatalf("Publish: %v", err)
			}
			wantPath := "/default"
			if tc.useTarget {
				wantPath = "/callback"
			}
			if path != wantPath {
				t.Fatalf("expected post to %s, got %s", wantPath, path)
			}
			if decoded["type"] != tc.expectType || decoded["message"] != tc.expectBody {
				t.Fatalf("unexpected body %v", decoded)
			}
			if decoded["content_id"] != tc.payload.ContentID {
				t.Fatalf("expected content id %q, got %v", tc.payload.ContentID, decoded["content_id"])
			}
			if decoded["timestamp"] != tc.expectStamp {
				t.Fatalf("expected timestamp %q, got %v", tc.expectStamp, decoded["timestamp"])
			}
		})
	}
}

func TestPublishSkipsSuppressedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.URL = server.URL
	cfg.Notifications.Errors = true
	cfg.Notifications.Completed = false

	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), "", notifications.Notification{Type: notifications.EventCompleted, Message: "ignored"}); err != nil {
		t.Fatalf("expected no error for suppressed event, got %v", err)
	}
}

func TestPublishWithoutTargetIsNoop(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.URL = ""
	cfg.Notifications.Errors = true
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), "", notifications.Notification{Type: notifications.EventError, Message: "x"}); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := svc.Test(context.Background()); err == nil {
		t.Fatal("expected test notification to fail without a url")
	}
}

func TestPublishReportsReceiverErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.URL = server.URL
	cfg.Notifications.Errors = true
	svc := notifications.NewService(&cfg)
	err := svc.Publish(context.Background(), "", notifications.Notification{Type: notifications.EventError, Message: "x"})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected 502 error, got %v", err)
	}
}
