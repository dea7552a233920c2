package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"postflow/internal/api"
)

func TestClientSendsTokenAndDecodes(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		if r.URL.Path != "/api/content" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(api.ContentListResponse{Items: []api.ContentItem{{ID: "c-1", State: "received"}}})
	}))
	defer srv.Close()

	client, err := New(strings.TrimPrefix(srv.URL, "http://"), "secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	items, err := client.List(context.Background(), []string{"received", " "})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].ID != "c-1" {
		t.Fatalf("unexpected items: %+v", items)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotQuery != "state=received" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
}

func TestClientSubmitPostsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("missing content type")
		}
		var req api.SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(api.SubmitResponse{ID: "new", State: "moderating"})
	}))
	defer srv.Close()

	client, _ := New(srv.URL, "")
	resp, err := client.Submit(context.Background(), api.SubmitRequest{Text: "hi", TargetPlatforms: []string{"twitter"}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.ID != "new" || resp.State != "moderating" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestClientErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind string
		notFound bool
	}{
		{name: "json error", status: http.StatusConflict, body: `{"error":"item is not awaiting review","kind":"invalid_content"}`, wantKind: "invalid_content"},
		{name: "not found", status: http.StatusNotFound, body: `{"error":"content not found"}`, notFound: true},
		{name: "plain text", status: http.StatusBadGateway, body: "upstream down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client, _ := New(srv.URL, "")
			_, err := client.Describe(context.Background(), "x")
			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if apiErr.Status != tt.status || apiErr.Kind != tt.wantKind {
				t.Fatalf("unexpected error: %+v", apiErr)
			}
			if IsNotFound(err) != tt.notFound {
				t.Fatalf("IsNotFound = %v", IsNotFound(err))
			}
		})
	}
}

func TestClientUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	client, _ := New(addr, "")
	if _, err := client.Status(context.Background()); !errors.Is(err, ErrDaemonUnavailable) {
		t.Fatalf("expected ErrDaemonUnavailable, got %v", err)
	}
}

func TestNewRejectsEmptyAddress(t *testing.T) {
	if _, err := New("  ", ""); err == nil {
		t.Fatal("expected error for empty address")
	}
}
