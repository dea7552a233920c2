package queueaccess_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"postflow/internal/api"
	"postflow/internal/apiclient"
	"postflow/internal/platform"
	"postflow/internal/queue"
	"postflow/internal/queueaccess"
	"postflow/internal/testsupport"
)

func TestOpenWithFallbackUsesStoreWhenDaemonDown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	seed := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewItem(t, seed, "offline read", platform.Twitter)

	client, err := apiclient.New("127.0.0.1:1", "")
	if err != nil {
		t.Fatalf("apiclient.New: %v", err)
	}
	session, err := queueaccess.OpenWithFallback(context.Background(), client, func() (*queue.Store, error) {
		return queue.Open(cfg)
	})
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	defer session.Close()
	if !session.Offline {
		t.Fatal("expected offline session")
	}

	items, err := session.Access.List(context.Background(), []string{string(item.State)})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].ID != item.ID {
		t.Fatalf("unexpected items %+v", items)
	}
	detail, err := session.Access.Describe(context.Background(), item.ID)
	if err != nil || detail == nil || detail.Item.Text != "offline read" {
		t.Fatalf("Describe: %+v, %v", detail, err)
	}
	counts, err := session.Access.StateCounts(context.Background())
	if err != nil {
		t.Fatalf("StateCounts: %v", err)
	}
	if counts[string(item.State)] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
	if _, err := session.Access.List(context.Background(), []string{"bogus"}); err == nil {
		t.Fatal("expected unknown state error")
	}
}

func TestOpenWithFallbackPrefersDaemon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/status":
			_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true, Workflow: api.WorkflowStatus{States: map[string]int{"published": 3}}})
		case "/api/content/missing":
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "content not found"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, err := apiclient.New(srv.URL, "")
	if err != nil {
		t.Fatalf("apiclient.New: %v", err)
	}
	opened := false
	session, err := queueaccess.OpenWithFallback(context.Background(), client, func() (*queue.Store, error) {
		opened = true
		return nil, errors.New("should not open")
	})
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	defer session.Close()
	if session.Offline || opened {
		t.Fatal("expected daemon-backed session")
	}
	counts, err := session.Access.StateCounts(context.Background())
	if err != nil || counts["published"] != 3 {
		t.Fatalf("StateCounts = %v, %v", counts, err)
	}
	detail, err := session.Access.Describe(context.Background(), "missing")
	if err != nil || detail != nil {
		t.Fatalf("expected nil detail for missing item, got %+v, %v", detail, err)
	}
}

func TestOpenWithFallbackSurfacesAuthErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
	}))
	defer srv.Close()

	client, err := apiclient.New(srv.URL, "wrong")
	if err != nil {
		t.Fatalf("apiclient.New: %v", err)
	}
	_, err = queueaccess.OpenWithFallback(context.Background(), client, func() (*queue.Store, error) {
		t.Fatal("store should not be opened on auth failure")
		return nil, nil
	})
	var apiErr *apiclient.Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 error, got %v", err)
	}
}
