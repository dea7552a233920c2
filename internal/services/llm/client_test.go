package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"postflow/internal/services"
)

func completionServer(t *testing.T, status int, payload any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Errorf("unexpected authorization header %q", got)
		}
		w.WriteHeader(status)
		if s, ok := payload.(string); ok {
			_, _ = w.Write([]byte(s))
			return
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func messageChoice(content string) map[string]any {
	return map[string]any{"choices": []any{map[string]any{"message": map[string]any{"content": content}}}}
}

func TestClientHealthCheck(t *testing.T) {
	server := completionServer(t, http.StatusOK, messageChoice("```json\n{\"ok\":true}\n```"))
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestCompleteJSONExtractsAlternateShapes(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"delta", map[string]any{"choices": []any{map[string]any{"delta": map[string]any{"content": `{"a":1}`}}}}},
		{"legacy text", map[string]any{"choices": []any{map[string]any{"text": `{"a":1}`}}}},
		{"tool call", map[string]any{"choices": []any{map[string]any{"message": map[string]any{
			"tool_calls": []any{map[string]any{"type": "function", "function": map[string]any{"name": "f", "arguments": `{"a":1}`}}},
		}}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := completionServer(t, http.StatusOK, tc.payload)
			client := NewClient(Config{APIKey: "test", BaseURL: server.URL})
			content, err := client.CompleteJSON(context.Background(), "analyze", "system", "user")
			if err != nil {
				t.Fatalf("CompleteJSON: %v", err)
			}
			if content != `{"a":1}` {
				t.Fatalf("unexpected content %q", content)
			}
		})
	}
}

func TestCompleteJSONClassifiesFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload any
		want    error
	}{
		{"server error", http.StatusBadGateway, map[string]string{"error": "upstream"}, services.ErrTransient},
		{"rate limited", http.StatusTooManyRequests, map[string]string{"error": "slow down"}, services.ErrTransient},
		{"unauthorized", http.StatusUnauthorized, map[string]string{"error": "bad key"}, services.ErrPermanent},
		{"malformed body", http.StatusOK, "not json", services.ErrPermanent},
		{"empty content", http.StatusOK, messageChoice(""), services.ErrTransient},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := completionServer(t, tc.status, tc.payload)
			client := NewClient(Config{APIKey: "test", BaseURL: server.URL})
			_, err := client.CompleteJSON(context.Background(), "analyze", "system", "user")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCompleteJSONRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := client.CompleteJSON(context.Background(), "analyze", "system", "user")
	if services.KindOf(err) != services.KindPermanent {
		t.Fatalf("expected permanent configuration error, got %v", err)
	}
}

func TestDecodeLLMJSON(t *testing.T) {
	var out struct {
		Sentiment string `json:"sentiment"`
	}
	if err := DecodeLLMJSON("```json\n{\"sentiment\":\"positive\"}\n```", &out); err != nil || out.Sentiment != "positive" {
		t.Fatalf("expected fenced JSON to decode, got %+v %v", out, err)
	}
	if err := DecodeLLMJSON("here you go: {\"sentiment\":\"negative\"} thanks", &out); err != nil || out.Sentiment != "negative" {
		t.Fatalf("expected prose-wrapped JSON to decode, got %+v %v", out, err)
	}
	if err := DecodeLLMJSON("no json here", &out); err == nil || !strings.Contains(err.Error(), "snippet") {
		t.Fatalf("expected snippet in decode error, got %v", err)
	}
}
