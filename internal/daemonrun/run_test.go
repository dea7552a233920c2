package daemonrun

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"postflow/internal/api"
	"postflow/internal/apiclient"
	"postflow/internal/daemon"
	"postflow/internal/logging"
	"postflow/internal/queue"
	"postflow/internal/testsupport"
	"postflow/internal/webhook"
)

const webhookSecret = "n8n-secret"

func startDaemon(t *testing.T) (*daemon.Daemon, *apiclient.Client) {
	t.Helper()
	cfg := testsupport.NewConfig(t,
		testsupport.WithAPIToken("tok"),
		testsupport.WithWebhookSecret(webhookSecret),
	)
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	d, err := Assemble(cfg, store, logging.NewNop())
	if err != nil {
		_ = store.Close()
		t.Fatalf("Assemble: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		_ = d.Close()
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		_ = d.Close()
	})
	client, err := apiclient.New(d.Address(), "tok")
	if err != nil {
		t.Fatalf("apiclient.New: %v", err)
	}
	return d, client
}

func waitForState(t *testing.T, client *apiclient.Client, id, want string) api.ContentItem {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for {
		detail, err := client.Describe(context.Background(), id)
		if err != nil {
			t.Fatalf("Describe: %v", err)
		}
		if detail.Item.State == want {
			return detail.Item
		}
		if detail.Item.Terminal {
			t.Fatalf("item %s ended %s (%+v), want %s", id, detail.Item.State, detail.Item.Error, want)
		}
		if time.Now().After(deadline) {
			t.Fatalf("item %s stuck in %s, want %s", id, detail.Item.State, want)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestAssembledDaemonPublishesApprovedContent(t *testing.T) {
	d, client := startDaemon(t)
	ctx := context.Background()

	resp, err := client.Submit(ctx, api.SubmitRequest{
		OwnerID:         "owner-1",
		Text:            "We love this amazing launch",
		Hashtags:        []string{"launch"},
		TargetPlatforms: []string{"twitter", "linkedin"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	reviewed := waitForState(t, client, resp.ID, "awaiting_review")
	if reviewed.Analysis == nil || reviewed.Analysis.Sentiment != "positive" {
		t.Fatalf("expected positive analysis, got %+v", reviewed.Analysis)
	}
	for _, name := range []string{"twitter", "linkedin"} {
		if render := reviewed.Renders[name]; !render.Validated || !render.Valid {
			t.Fatalf("expected valid %s render, got %+v", name, render)
		}
	}

	if _, err := client.Review(ctx, api.ReviewRequest{ContentID: resp.ID, ReviewerID: "editor", Decision: "approve"}); err != nil {
		t.Fatalf("Review: %v", err)
	}
	published := waitForState(t, client, resp.ID, "published")
	for _, name := range []string{"twitter", "linkedin"} {
		if res := published.PublishResults[name]; res.PostID == "" || res.Error != "" {
			t.Fatalf("expected %s publish result, got %+v", name, res)
		}
	}

	detail, err := client.Describe(ctx, resp.ID)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if len(detail.Decisions) != 1 || detail.Decisions[0].ReviewerID != "editor" {
		t.Fatalf("unexpected decisions: %+v", detail.Decisions)
	}
	if len(detail.History) == 0 || detail.History[len(detail.History)-1].To != "published" {
		t.Fatalf("unexpected history tail: %+v", detail.History)
	}

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || !status.Workflow.Running || status.Workflow.States["published"] != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.NextSweep == "" {
		t.Fatal("expected next sweep time")
	}

	for _, want := range []string{
		`postflow_content_transitions_total{from="publishing",to="published"} 1`,
		`postflow_publish_results_total{platform="twitter",result="published"} 1`,
		`postflow_content_items{state="published"} 1`,
	} {
		waitForMetric(t, d.Address(), want)
	}
}

// waitForMetric polls the scrape endpoint since observers run after the
// commit the client already sees.
func waitForMetric(t *testing.T, addr, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			t.Fatalf("scrape: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if strings.Contains(string(body), want) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("metrics missing %q", want)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestAssembledDaemonAcceptsSignedWebhook(t *testing.T) {
	d, client := startDaemon(t)

	body, _ := json.Marshal(map[string]any{
		"action": "process_content",
		"content_data": map[string]any{
			"owner_id": "n8n",
			"text":     "Automated post from the workflow",
		},
		"target_platforms": []string{"facebook"},
		"analyze_with_ai":  false,
	})
	post := func(signature string) *http.Response {
		req, _ := http.NewRequest(http.MethodPost, "http://"+d.Address()+"/webhook", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if signature != "" {
			req.Header.Set(webhook.SignatureHeader, signature)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("post webhook: %v", err)
		}
		return resp
	}

	unsigned := post("")
	unsigned.Body.Close()
	if unsigned.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without signature, got %d", unsigned.StatusCode)
	}

	signed := post(webhook.Sign(webhookSecret, body))
	defer signed.Body.Close()
	if signed.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", signed.StatusCode)
	}
	var reply webhook.Response
	if err := json.NewDecoder(signed.Body).Decode(&reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if !reply.Success || reply.ContentID == "" {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	item := waitForState(t, client, reply.ContentID, "awaiting_review")
	if item.Origin != string(queue.OriginWebhook) {
		t.Fatalf("expected webhook origin, got %q", item.Origin)
	}
	if item.Analysis == nil || !item.Analysis.Skipped {
		t.Fatalf("expected skipped analysis, got %+v", item.Analysis)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	d, _ := startDaemon(t)
	anonymous, err := apiclient.New(d.Address(), "")
	if err != nil {
		t.Fatalf("apiclient.New: %v", err)
	}
	_, err = anonymous.List(context.Background(), nil)
	var apiErr *apiclient.Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}
