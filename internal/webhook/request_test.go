package webhook_test

import (
	"errors"
	"testing"

	"postflow/internal/services"
	"postflow/internal/webhook"
)

func TestDecodeVariants(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    webhook.Action
		wantErr bool
	}{
		{"process", `{"action":"process_content","content_data":{"text":"hi"},"target_platforms":["twitter"]}`, webhook.ActionProcess, false},
		{"process uppercase action", `{"action":"PROCESS_CONTENT","content_data":{"text":"hi"}}`, webhook.ActionProcess, false},
		{"generate top-level prompt", `{"action":"generate_content","prompt":"write about spring"}`, webhook.ActionGenerate, false},
		{"generate content prompt", `{"action":"generate_content","content_data":{"prompt":"write about spring"}}`, webhook.ActionGenerate, false},
		{"analyze by id", `{"action":"analyze_content","content_data":{"id":"abc"}}`, webhook.ActionAnalyze, false},
		{"analyze ad-hoc", `{"action":"analyze_content","content_data":{"text":"great day"}}`, webhook.ActionAnalyze, false},
		{"malformed", `{"action":`, "", true},
		{"missing action", `{"content_data":{"text":"hi"}}`, "", true},
		{"unknown action", `{"action":"delete_everything"}`, "", true},
		{"process without content", `{"action":"process_content"}`, "", true},
		{"generate without prompt", `{"action":"generate_content"}`, "", true},
		{"analyze without target", `{"action":"analyze_content","content_data":{}}`, "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := webhook.Decode([]byte(tc.body))
			if tc.wantErr {
				if !errors.Is(err, services.ErrInvalidContent) {
					t.Fatalf("expected ErrInvalidContent, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if req.Action() != tc.want {
				t.Fatalf("action = %s, want %s", req.Action(), tc.want)
			}
		})
	}
}

func TestDecodeDefaultsAnalyzeWithAI(t *testing.T) {
	req, err := webhook.Decode([]byte(`{"action":"process_content","content_data":{"text":"hi","media_urls":["https://x/a.png"]}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	process := req.(webhook.ProcessRequest)
	if !process.AnalyzeWithAI {
		t.Fatal("analyze_with_ai should default to true")
	}
	if len(process.Content.MediaURLs) != 1 {
		t.Fatalf("expected media urls decoded, got %v", process.Content.MediaURLs)
	}

	req, err = webhook.Decode([]byte(`{"action":"process_content","content_data":{"text":"hi"},"analyze_with_ai":false}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if req.(webhook.ProcessRequest).AnalyzeWithAI {
		t.Fatal("explicit false must be honored")
	}
}

func TestSignatureRoundTrip(t *testing.T) {
	body := []byte(`{"action":"process_content"}`)
	sig := webhook.Sign("s3cret", body)
	tests := []struct {
		name   string
		secret string
		header string
		want   bool
	}{
		{"valid with prefix", "s3cret", sig, true},
		{"valid bare hex", "s3cret", sig[len("sha256="):], true},
		{"wrong secret", "other", sig, false},
		{"missing header", "s3cret", "", false},
		{"not hex", "s3cret", "sha256=zz", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := webhook.VerifySignature(tc.secret, body, tc.header); got != tc.want {
				t.Fatalf("VerifySignature = %v, want %v", got, tc.want)
			}
		})
	}
	if webhook.VerifySignature("s3cret", append(body, ' '), sig) {
		t.Fatal("tampered body must not verify")
	}
}
