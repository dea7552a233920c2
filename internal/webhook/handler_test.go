package webhook_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"postflow/internal/lifecycle"
	"postflow/internal/logging"
	"postflow/internal/queue"
	"postflow/internal/services/analyzer"
	"postflow/internal/testsupport"
	"postflow/internal/webhook"
	"postflow/internal/workflow"
)

type countingRecorder struct {
	mu   sync.Mutex
	seen map[string]int
}

func (r *countingRecorder) WebhookRequest(action, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen == nil {
		r.seen = map[string]int{}
	}
	r.seen[action+"/"+outcome]++
}

type webhookFixture struct {
	store    *queue.Store
	handler  *webhook.Handler
	recorder *countingRecorder
}

func newWebhookFixture(t *testing.T, secret string) *webhookFixture {
	t.Helper()
	opts := []testsupport.ConfigOption{}
	if secret != "" {
		opts = append(opts, testsupport.WithWebhookSecret(secret))
	}
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Webhook.DefaultPlatforms = []string{"linkedin"}
	store := testsupport.MustOpenStore(t, cfg)
	orch := workflow.NewOrchestrator(cfg, store, logging.NewNop())
	dispatcher := webhook.NewDispatcher(cfg, orch, store, analyzer.NewLexicon(5), logging.NewNop())
	recorder := &countingRecorder{}
	return &webhookFixture{
		store:    store,
		handler:  webhook.NewHandler(dispatcher, cfg.Webhook.Secret, recorder, logging.NewNop()),
		recorder: recorder,
	}
}

func (f *webhookFixture) post(t *testing.T, body, signature string) (*httptest.ResponseRecorder, webhook.Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(webhook.SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	var resp webhook.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return w, resp
}

func TestProcessContentSubmits(t *testing.T) {
	f := newWebhookFixture(t, "")
	w, resp := f.post(t, `{"action":"process_content","content_data":{"text":"Fresh bread daily"},"callback_url":"https://hooks.example.com/cb"}`, "")
	if w.Code != http.StatusOK || !resp.Success || resp.ContentID == "" {
		t.Fatalf("unexpected response %d %+v", w.Code, resp)
	}
	item, err := f.store.GetContent(context.Background(), resp.ContentID)
	if err != nil || item == nil {
		t.Fatalf("GetContent: %v %v", item, err)
	}
	if item.Origin != queue.OriginWebhook || item.CallbackURL != "https://hooks.example.com/cb" {
		t.Fatalf("unexpected origin/callback: %s %q", item.Origin, item.CallbackURL)
	}
	if len(item.TargetPlatforms) != 1 || item.TargetPlatforms[0] != "linkedin" {
		t.Fatalf("expected webhook default platforms, got %v", item.TargetPlatforms)
	}
	if item.State != lifecycle.StateModerating || resp.State != lifecycle.StateModerating {
		t.Fatalf("expected moderating, got item %s response %s", item.State, resp.State)
	}
}

func TestGenerateContentUsesPrompt(t *testing.T) {
	f := newWebhookFixture(t, "")
	_, resp := f.post(t, `{"action":"generate_content","prompt":"Announce the summer sale","target_platforms":["twitter"]}`, "")
	if !resp.Success {
		t.Fatalf("unexpected failure %+v", resp)
	}
	item, _ := f.store.GetContent(context.Background(), resp.ContentID)
	if item.Text != "Announce the summer sale" || item.Prompt != "Announce the summer sale" {
		t.Fatalf("expected prompt as draft text, got %q / %q", item.Text, item.Prompt)
	}
}

func TestAnalyzeContentIsSynchronous(t *testing.T) {
	f := newWebhookFixture(t, "")
	_, created := f.post(t, `{"action":"process_content","content_data":{"text":"We love this amazing launch"}}`, "")

	w, resp := f.post(t, `{"action":"analyze_content","content_data":{"id":"`+created.ContentID+`"}}`, "")
	if w.Code != http.StatusOK || resp.Analysis == nil {
		t.Fatalf("expected analysis, got %d %+v", w.Code, resp)
	}
	if resp.Analysis.Sentiment != "positive" {
		t.Fatalf("expected positive sentiment, got %q", resp.Analysis.Sentiment)
	}
	item, _ := f.store.GetContent(context.Background(), created.ContentID)
	if item.State != lifecycle.StateModerating || item.Analysis != nil {
		t.Fatalf("analyze_content must not change the item: %s %+v", item.State, item.Analysis)
	}

	w, resp = f.post(t, `{"action":"analyze_content","content_data":{"id":"missing"}}`, "")
	if w.Code != http.StatusNotFound || resp.Success {
		t.Fatalf("expected 404, got %d %+v", w.Code, resp)
	}
}

func TestHandlerRejectsBadRequests(t *testing.T) {
	f := newWebhookFixture(t, "")
	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed", `not json`, http.StatusBadRequest},
		{"unknown action", `{"action":"explode"}`, http.StatusBadRequest},
		{"unknown platform", `{"action":"process_content","content_data":{"text":"x"},"target_platforms":["myspace"]}`, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, resp := f.post(t, tc.body, "")
			if w.Code != tc.code || resp.Success || resp.Error == "" {
				t.Fatalf("expected %d failure, got %d %+v", tc.code, w.Code, resp)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestHandlerVerifiesSignature(t *testing.T) {
	f := newWebhookFixture(t, "hook-secret")
	body := `{"action":"process_content","content_data":{"text":"signed"}}`

	w, resp := f.post(t, body, "")
	if w.Code != http.StatusUnauthorized || resp.Success {
		t.Fatalf("unsigned request: expected 401, got %d", w.Code)
	}
	w, _ = f.post(t, body, webhook.Sign("wrong", []byte(body)))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature: expected 401, got %d", w.Code)
	}
	w, resp = f.post(t, body, webhook.Sign("hook-secret", []byte(body)))
	if w.Code != http.StatusOK || !resp.Success {
		t.Fatalf("signed request: expected 200, got %d %+v", w.Code, resp)
	}

	items, err := f.store.ListContent(context.Background())
	if err != nil {
		t.Fatalf("ListContent: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("only the signed request may create content, found %d", len(items))
	}
	f.recorder.mu.Lock()
	defer f.recorder.mu.Unlock()
	if f.recorder.seen["unknown/unauthorized"] != 2 || f.recorder.seen["process_content/accepted"] != 1 {
		t.Fatalf("unexpected recorder counts %v", f.recorder.seen)
	}
}
