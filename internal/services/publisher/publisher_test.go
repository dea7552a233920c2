package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"postflow/internal/config"
	"postflow/internal/platform"
	"postflow/internal/services"
)

func TestDryRunIsDeterministic(t *testing.T) {
	pub := NewDryRun()
	render := platform.Render{Platform: platform.Twitter, Text: "hi"}
	first, err := pub.Publish(context.Background(), "content-1", render)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	second, _ := pub.Publish(context.Background(), "content-1", render)
	if first.PostID != second.PostID || first.PostID == "" {
		t.Fatalf("expected stable post id, got %q and %q", first.PostID, second.PostID)
	}
	other, _ := pub.Publish(context.Background(), "content-1", platform.Render{Platform: platform.Instagram})
	if other.PostID == first.PostID {
		t.Fatal("expected distinct post ids per platform")
	}
	snap, err := pub.Collect(context.Background(), platform.Twitter, first.PostID)
	if err != nil || snap.CollectedAt.IsZero() {
		t.Fatalf("Collect: %+v %v", snap, err)
	}
}

func TestHTTPPublish(t *testing.T) {
	var gotKey, gotAuth string
	var gotBody publishRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/posts":
			gotKey = r.Header.Get("Idempotency-Key")
			gotAuth = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			_ = json.NewEncoder(w).Encode(map[string]any{"post_id": "123", "url": "https://x.example/123"})
		case "/posts/123/metrics":
			_ = json.NewEncoder(w).Encode(map[string]any{"impressions": 40, "likes": 3})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	pub := NewHTTP(config.Publisher{
		Endpoints: map[string]string{"Twitter": server.URL + "/"},
		Token:     "secret",
		Burst:     1,
	})
	receipt, err := pub.Publish(context.Background(), "c-1", platform.Render{
		Platform: platform.Twitter, Text: "hello", Hashtags: []string{"go"},
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if receipt.PostID != "123" || receipt.PublishedAt.IsZero() {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if gotKey != "c-1/twitter" || gotAuth != "Bearer secret" {
		t.Fatalf("unexpected headers key=%q auth=%q", gotKey, gotAuth)
	}
	if gotBody.Caption != "hello\n\n#go" {
		t.Fatalf("unexpected caption %q", gotBody.Caption)
	}

	snap, err := pub.Collect(context.Background(), platform.Twitter, "123")
	if err != nil || snap.Impressions != 40 || snap.Likes != 3 {
		t.Fatalf("Collect: %+v %v", snap, err)
	}
}

func TestHTTPClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   services.ErrorKind
	}{
		{"server error", http.StatusServiceUnavailable, `{}`, services.KindTransient},
		{"rate limited", http.StatusTooManyRequests, `{}`, services.KindTransient},
		{"bad request", http.StatusBadRequest, `{"error":"too long"}`, services.KindPermanent},
		{"malformed", http.StatusOK, `not json`, services.KindPermanent},
		{"missing post id", http.StatusOK, `{"url":"x"}`, services.KindPermanent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			pub := NewHTTP(config.Publisher{Endpoints: map[string]string{"linkedin": server.URL}})
			_, err := pub.Publish(context.Background(), "c", platform.Render{Platform: platform.LinkedIn, Text: "x"})
			if got := services.KindOf(err); got != tc.want {
				t.Fatalf("kind = %s, want %s (err %v)", got, tc.want, err)
			}
			if calls.Load() != 1 {
				t.Fatalf("expected exactly one request, got %d", calls.Load())
			}
		})
	}
}

func TestHTTPMissingEndpoint(t *testing.T) {
	pub := NewHTTP(config.Publisher{})
	_, err := pub.Publish(context.Background(), "c", platform.Render{Platform: platform.TikTok})
	if !errors.Is(err, services.ErrConfiguration) || services.KindOf(err) != services.KindPermanent {
		t.Fatalf("expected permanent configuration error, got %v", err)
	}
	if pub.HealthCheck(context.Background()).Ready {
		t.Fatal("expected unhealthy publisher without endpoints")
	}
}

func TestNewSelectsMode(t *testing.T) {
	if svc, err := New(config.Publisher{Mode: config.PublisherDryRun}); err != nil {
		t.Fatalf("dry run: %v", err)
	} else if _, ok := svc.(*DryRun); !ok {
		t.Fatalf("expected *DryRun, got %T", svc)
	}
	if _, err := New(config.Publisher{Mode: "carrier-pigeon"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
