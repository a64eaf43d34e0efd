//go:build integration

// Package test contains integration tests that exercise the full dispatch
// stack: HTTP surface -> pipeline -> channel adapters -> ledger. The webhook
// targets are local TLS servers and the ledger is an embedded SQLite file,
// so no external services are required. The suite is still gated behind the
// integration build tag to keep `go test ./...` on unit tests:
//
//	go test -v -tags integration ./test/
package test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"herald/internal/api/handlers"
	"herald/internal/auth"
	"herald/internal/channels"
	"herald/internal/config"
	"herald/internal/core"
	"herald/internal/db"
	"herald/internal/dispatch"
)

// Secrets for the provisioned test identities. All satisfy the registry's
// 16-character floor.
const (
	adminSecret     = "integration-admin-secret-01"
	rsvpSecret      = "wedding-rsvp-secret-0001"
	buildBotSecret  = "build-bot-secret-00001"
	brokenBotSecret = "broken-bot-secret-0001"
)

// recordedDelivery is one webhook POST as seen by the target server.
type recordedDelivery struct {
	Path        string
	ContentType string
	Body        []byte
}

// webhookRecorder plays the part of Discord and Slack. It captures every
// delivery and answers each path with that service's success contract;
// /broken always fails so delivery-failure handling can be observed.
type webhookRecorder struct {
	mu         sync.Mutex
	deliveries []recordedDelivery
}

func (rec *webhookRecorder) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.deliveries = append(rec.deliveries, recordedDelivery{
			Path:        r.URL.Path,
			ContentType: r.Header.Get("Content-Type"),
			Body:        body,
		})
		rec.mu.Unlock()

		switch r.URL.Path {
		case "/discord":
			w.WriteHeader(http.StatusNoContent)
		case "/slack":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("boom"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

// recorded returns a copy of the captured deliveries.
func (rec *webhookRecorder) recorded() []recordedDelivery {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]recordedDelivery, len(rec.deliveries))
	copy(out, rec.deliveries)
	return out
}

// writeCallersFile provisions three callers against the webhook target:
// wedding-rsvp with both channels and no rate cap, build-bot with Discord
// only and a one-per-minute cap, and broken-bot routed at the failing path.
func writeCallersFile(t *testing.T, dir, webhookBase string) string {
	t.Helper()

	registry := `callers:
  - id: wedding-rsvp
    display_name: Wedding RSVP
    secret: ` + rsvpSecret + `
    rate_limit: 0
    channels:
      discord:
        webhook_url: ` + webhookBase + `/discord
        accent_color: "#5865F2"
        footer: sent by herald
      slack:
        webhook_url: ` + webhookBase + `/slack
  - id: build-bot
    display_name: Build Bot
    secret: ` + buildBotSecret + `
    rate_limit: 1
    channels:
      discord:
        webhook_url: ` + webhookBase + `/discord
        username: buildbot
  - id: broken-bot
    display_name: Broken Bot
    secret: ` + brokenBotSecret + `
    rate_limit: 0
    channels:
      discord:
        webhook_url: ` + webhookBase + `/broken
`
	path := filepath.Join(dir, "callers.yaml")
	if err := os.WriteFile(path, []byte(registry), 0o600); err != nil {
		t.Fatalf("writing callers file: %v", err)
	}
	return path
}

// buildIntegrationServer wires the production components end to end: real
// config loading, real caller index, real SQLite ledger, real adapters. The
// one substitution is the sender's HTTP client: the SSRF-safe production
// client refuses loopback destinations, so the sender gets the webhook
// server's own client, which also trusts its TLS certificate.
func buildIntegrationServer(t *testing.T) (*httptest.Server, *webhookRecorder) {
	t.Helper()

	rec := &webhookRecorder{}
	webhook := httptest.NewTLSServer(rec.handler())
	t.Cleanup(webhook.Close)

	dir := t.TempDir()
	callersPath := writeCallersFile(t, dir, webhook.URL)

	t.Setenv("APP_ENV", "local")
	t.Setenv("ADMIN_SECRET", adminSecret)
	t.Setenv("CALLERS_FILE", callersPath)
	t.Setenv("LEDGER_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "herald.db"))

	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	callers, err := config.LoadCallers(cfg.Auth.CallersFile)
	if err != nil {
		t.Fatalf("LoadCallers: %v", err)
	}
	index, err := auth.NewIndex(cfg.Auth.AdminSecret, callers, logger)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}

	ledger, err := db.OpenSQLite(cfg.Ledger.SQLitePath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })

	sender := channels.NewSenderWithClient(&cfg.Webhook, webhook.Client(), logger)
	registry := channels.NewRegistry(sender)
	pipeline := dispatch.NewPipeline(index, registry, ledger, cfg.Webhook.Timeout, logger)

	srv, err := core.NewServer(cfg, ledger, logger)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	srv.Auth = index

	notifyHandler := handlers.NewNotifyHandler(pipeline, logger)
	messagesHandler := handlers.NewMessagesHandler(ledger, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		notifyHandler.RegisterRoutes,
		func(r chi.Router) {
			r.Group(func(g chi.Router) {
				g.Use(srv.RequireSecret)
				messagesHandler.RegisterRoutes(g)
			})
		},
	)
	srv.HealthProbes = append(srv.HealthProbes, core.NewPingProbe("ledger", ledger.Ping))
	srv.MountRoutes()

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, rec
}

// TestIntegration_DispatchLedgerJourney exercises the primary flow:
// 1. Health endpoint answers healthy.
// 2. A caller dispatches to Discord and to Slack; both deliver.
// 3. The webhook target received both payloads.
// 4. The caller reads back its own messages and the per-message records.
// 5. The admin reads ledger statistics.
func TestIntegration_DispatchLedgerJourney(t *testing.T) {
	ts, rec := buildIntegrationServer(t)
	client := ts.Client()

	resp := doRequest(t, client, "GET", ts.URL+"/health", "", nil)
	assertStatus(t, resp, http.StatusOK)

	// Dispatch to Discord.
	discordBody := `{
		"channel": "discord",
		"subject": "Seating chart updated",
		"body": "The seating chart for Saturday has been updated, table four moved to the terrace.",
		"sender": {"name": "Planner Bot"},
		"metadata": {"revision": 4}
	}`
	resp = doRequest(t, client, "POST", ts.URL+"/v1/notify", rsvpSecret, []byte(discordBody))
	assertStatus(t, resp, http.StatusCreated)

	var discordReceipt struct {
		Data struct {
			MessageID int64  `json:"message_id"`
			Status    string `json:"status"`
		} `json:"data"`
	}
	parseResponse(t, resp, &discordReceipt)
	if discordReceipt.Data.MessageID == 0 {
		t.Fatal("discord receipt has no message id")
	}
	if discordReceipt.Data.Status != "sent" {
		t.Errorf("discord receipt status: got %q, want %q", discordReceipt.Data.Status, "sent")
	}

	// Dispatch to Slack.
	slackBody := `{
		"channel": "slack",
		"body": "Rehearsal dinner moved to seven, meet at the north entrance."
	}`
	resp = doRequest(t, client, "POST", ts.URL+"/v1/notify", rsvpSecret, []byte(slackBody))
	assertStatus(t, resp, http.StatusCreated)

	var slackReceipt struct {
		Data struct {
			MessageID int64  `json:"message_id"`
			Status    string `json:"status"`
		} `json:"data"`
	}
	parseResponse(t, resp, &slackReceipt)

	// The webhook target saw one delivery per channel, in dispatch order.
	deliveries := rec.recorded()
	if len(deliveries) != 2 {
		t.Fatalf("webhook deliveries: got %d, want 2", len(deliveries))
	}
	if deliveries[0].Path != "/discord" || deliveries[1].Path != "/slack" {
		t.Errorf("delivery paths: got %q then %q", deliveries[0].Path, deliveries[1].Path)
	}
	for _, d := range deliveries {
		if d.ContentType != "application/json" {
			t.Errorf("delivery to %s content type: got %q", d.Path, d.ContentType)
		}
	}
	if !bytes.Contains(deliveries[0].Body, []byte("Seating chart updated")) {
		t.Error("discord payload does not carry the subject")
	}
	if !bytes.Contains(deliveries[1].Body, []byte("Rehearsal dinner")) {
		t.Error("slack payload does not carry the body")
	}

	// Read back the Discord record.
	msgURL := ts.URL + "/v1/messages/" + itoa(discordReceipt.Data.MessageID)
	resp = doRequest(t, client, "GET", msgURL, rsvpSecret, nil)
	assertStatus(t, resp, http.StatusOK)

	var getResp struct {
		Data struct {
			ID               int64   `json:"id"`
			CallerID         string  `json:"caller_id"`
			Channel          string  `json:"channel"`
			Status           string  `json:"status"`
			Body             string  `json:"body"`
			DeliveryResponse *string `json:"delivery_response"`
			SentAt           *string `json:"sent_at"`
		} `json:"data"`
	}
	parseResponse(t, resp, &getResp)
	if getResp.Data.CallerID != "wedding-rsvp" {
		t.Errorf("message caller_id: got %q", getResp.Data.CallerID)
	}
	if getResp.Data.Status != "sent" {
		t.Errorf("message status: got %q, want sent", getResp.Data.Status)
	}
	if getResp.Data.DeliveryResponse == nil || *getResp.Data.DeliveryResponse != "status 204" {
		t.Errorf("delivery_response: got %v, want \"status 204\"", getResp.Data.DeliveryResponse)
	}
	if getResp.Data.SentAt == nil {
		t.Error("sent message has no sent_at")
	}

	// List the caller's ledger.
	resp = doRequest(t, client, "GET", ts.URL+"/v1/messages", rsvpSecret, nil)
	assertStatus(t, resp, http.StatusOK)

	var listResp struct {
		Data struct {
			Messages []json.RawMessage `json:"messages"`
			Total    int               `json:"total"`
		} `json:"data"`
	}
	parseResponse(t, resp, &listResp)
	if listResp.Data.Total != 2 {
		t.Errorf("caller ledger total: got %d, want 2", listResp.Data.Total)
	}
	if len(listResp.Data.Messages) != 2 {
		t.Errorf("caller ledger page: got %d messages, want 2", len(listResp.Data.Messages))
	}

	// Admin statistics.
	resp = doRequest(t, client, "GET", ts.URL+"/v1/messages/stats", adminSecret, nil)
	assertStatus(t, resp, http.StatusOK)

	var statsResp struct {
		Data struct {
			Callers []struct {
				CallerID string `json:"caller_id"`
				Total    int64  `json:"total"`
				Sent     int64  `json:"sent"`
			} `json:"callers"`
			Total int64 `json:"total"`
		} `json:"data"`
	}
	parseResponse(t, resp, &statsResp)
	if statsResp.Data.Total != 2 {
		t.Errorf("stats grand total: got %d, want 2", statsResp.Data.Total)
	}
	found := false
	for _, c := range statsResp.Data.Callers {
		if c.CallerID == "wedding-rsvp" {
			found = true
			if c.Sent != 2 {
				t.Errorf("wedding-rsvp sent count: got %d, want 2", c.Sent)
			}
		}
	}
	if !found {
		t.Error("stats do not include wedding-rsvp")
	}
}

// TestIntegration_SpamIsRejectedButLedgered verifies the spam contract:
// the caller gets a rejection, nothing reaches the webhook, and the attempt
// is still recorded for the audit trail.
func TestIntegration_SpamIsRejectedButLedgered(t *testing.T) {
	ts, rec := buildIntegrationServer(t)
	client := ts.Client()

	body := `{
		"channel": "discord",
		"body": "Cheap viagra available now with the best online pharmacy deals."
	}`
	resp := doRequest(t, client, "POST", ts.URL+"/v1/notify", rsvpSecret, []byte(body))
	assertStatus(t, resp, http.StatusUnprocessableEntity)

	code, details := parseError(t, resp)
	if code != "spam_rejected" {
		t.Fatalf("error code: got %q, want spam_rejected", code)
	}
	if details["category"] != "medical" {
		t.Errorf("spam category: got %v, want medical", details["category"])
	}
	msgID, ok := details["message_id"].(float64)
	if !ok || msgID < 1 {
		t.Fatalf("spam rejection carries no ledger id: %v", details["message_id"])
	}

	if n := len(rec.recorded()); n != 0 {
		t.Errorf("webhook received %d deliveries, want 0", n)
	}

	// The attempt is on the ledger, terminal as spam.
	resp = doRequest(t, client, "GET", ts.URL+"/v1/messages/"+itoa(int64(msgID)), adminSecret, nil)
	assertStatus(t, resp, http.StatusOK)

	var getResp struct {
		Data struct {
			Status    string  `json:"status"`
			ErrorText *string `json:"error_text"`
			SentAt    *string `json:"sent_at"`
		} `json:"data"`
	}
	parseResponse(t, resp, &getResp)
	if getResp.Data.Status != "spam" {
		t.Errorf("ledgered status: got %q, want spam", getResp.Data.Status)
	}
	if getResp.Data.ErrorText == nil || *getResp.Data.ErrorText != "spam: medical" {
		t.Errorf("ledgered error_text: got %v, want \"spam: medical\"", getResp.Data.ErrorText)
	}
	if getResp.Data.SentAt != nil {
		t.Error("spam record must not carry sent_at")
	}
}

// TestIntegration_UnprovisionedChannelIsRefused posts to a channel the
// caller is not registered for. The refusal happens before persistence.
func TestIntegration_UnprovisionedChannelIsRefused(t *testing.T) {
	ts, rec := buildIntegrationServer(t)
	client := ts.Client()

	body := `{
		"channel": "slack",
		"body": "Nightly build 412 finished green in nine minutes."
	}`
	resp := doRequest(t, client, "POST", ts.URL+"/v1/notify", buildBotSecret, []byte(body))
	assertStatus(t, resp, http.StatusUnprocessableEntity)

	code, details := parseError(t, resp)
	if code != "channel_not_configured" {
		t.Fatalf("error code: got %q, want channel_not_configured", code)
	}
	if details["channel"] != "slack" {
		t.Errorf("error details channel: got %v, want slack", details["channel"])
	}
	if n := len(rec.recorded()); n != 0 {
		t.Errorf("webhook received %d deliveries, want 0", n)
	}

	// Nothing was ledgered for the caller.
	resp = doRequest(t, client, "GET", ts.URL+"/v1/messages", buildBotSecret, nil)
	assertStatus(t, resp, http.StatusOK)

	var listResp struct {
		Data struct {
			Total int `json:"total"`
		} `json:"data"`
	}
	parseResponse(t, resp, &listResp)
	if listResp.Data.Total != 0 {
		t.Errorf("build-bot ledger total: got %d, want 0", listResp.Data.Total)
	}
}

// TestIntegration_RateLimitExhausts drives build-bot past its one-per-minute
// cap. The first dispatch delivers; the second is throttled before any work.
func TestIntegration_RateLimitExhausts(t *testing.T) {
	ts, rec := buildIntegrationServer(t)
	client := ts.Client()

	body := `{
		"channel": "discord",
		"body": "Nightly build 412 finished green in nine minutes."
	}`
	resp := doRequest(t, client, "POST", ts.URL+"/v1/notify", buildBotSecret, []byte(body))
	assertStatus(t, resp, http.StatusCreated)
	io.Copy(io.Discard, resp.Body)

	resp = doRequest(t, client, "POST", ts.URL+"/v1/notify", buildBotSecret, []byte(body))
	assertStatus(t, resp, http.StatusTooManyRequests)
	code, _ := parseError(t, resp)
	if code != "rate_limited" {
		t.Errorf("error code: got %q, want rate_limited", code)
	}

	if n := len(rec.recorded()); n != 1 {
		t.Errorf("webhook received %d deliveries, want 1", n)
	}
}

// TestIntegration_AdminCannotDispatch confirms the admin identity observes
// the ledger but is refused at the dispatch door.
func TestIntegration_AdminCannotDispatch(t *testing.T) {
	ts, _ := buildIntegrationServer(t)
	client := ts.Client()

	body := `{
		"channel": "discord",
		"body": "Admin attempting to dispatch a notification."
	}`
	resp := doRequest(t, client, "POST", ts.URL+"/v1/notify", adminSecret, []byte(body))
	assertStatus(t, resp, http.StatusForbidden)
	code, _ := parseError(t, resp)
	if code != "auth_admin_not_allowed" {
		t.Errorf("error code: got %q, want auth_admin_not_allowed", code)
	}
}

// TestIntegration_DeliveryFailureIsRecorded routes a dispatch at a webhook
// that answers 500. The caller gets a 502 and the ledger records the failure.
func TestIntegration_DeliveryFailureIsRecorded(t *testing.T) {
	ts, rec := buildIntegrationServer(t)
	client := ts.Client()

	body := `{
		"channel": "discord",
		"body": "Deploy of release candidate seven failed on the staging cluster."
	}`
	resp := doRequest(t, client, "POST", ts.URL+"/v1/notify", brokenBotSecret, []byte(body))
	assertStatus(t, resp, http.StatusBadGateway)

	code, details := parseError(t, resp)
	if code != "channel_delivery_failed" {
		t.Fatalf("error code: got %q, want channel_delivery_failed", code)
	}
	msgID, ok := details["message_id"].(float64)
	if !ok || msgID < 1 {
		t.Fatalf("delivery failure carries no ledger id: %v", details["message_id"])
	}

	// The attempt reached the webhook.
	deliveries := rec.recorded()
	if len(deliveries) != 1 || deliveries[0].Path != "/broken" {
		t.Fatalf("unexpected deliveries: %+v", deliveries)
	}

	// The record is terminal as failed with the upstream error preserved.
	resp = doRequest(t, client, "GET", ts.URL+"/v1/messages/"+itoa(int64(msgID)), adminSecret, nil)
	assertStatus(t, resp, http.StatusOK)

	var getResp struct {
		Data struct {
			Status    string  `json:"status"`
			ErrorText *string `json:"error_text"`
		} `json:"data"`
	}
	parseResponse(t, resp, &getResp)
	if getResp.Data.Status != "failed" {
		t.Errorf("ledgered status: got %q, want failed", getResp.Data.Status)
	}
	if getResp.Data.ErrorText == nil || *getResp.Data.ErrorText == "" {
		t.Error("failed record has no error_text")
	}
}

// TestIntegration_LedgerRoutesRequireSecret confirms the read routes sit
// behind the secret gate while the dispatch route performs its own auth.
func TestIntegration_LedgerRoutesRequireSecret(t *testing.T) {
	ts, _ := buildIntegrationServer(t)
	client := ts.Client()

	resp := doRequest(t, client, "GET", ts.URL+"/v1/messages", "", nil)
	assertStatus(t, resp, http.StatusUnauthorized)
	code, _ := parseError(t, resp)
	if code != "auth_secret_missing" {
		t.Errorf("error code: got %q, want auth_secret_missing", code)
	}

	resp = doRequest(t, client, "GET", ts.URL+"/v1/messages", "not-a-registered-secret", nil)
	assertStatus(t, resp, http.StatusUnauthorized)
	code, _ = parseError(t, resp)
	if code != "auth_secret_invalid" {
		t.Errorf("error code: got %q, want auth_secret_invalid", code)
	}
}

// =============================================================================
// Test Helpers
// =============================================================================

// doRequest creates and executes an HTTP request. A non-empty secret is sent
// as an Authorization bearer token.
func doRequest(t *testing.T, client *http.Client, method, url, secret string, body []byte) *http.Response {
	t.Helper()

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		t.Fatalf("failed to create %s %s request: %v", method, url, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	return resp
}

// assertStatus checks the response status code and logs the body on failure.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body = io.NopCloser(bytes.NewReader(body))
		t.Fatalf("expected status %d, got %d; body: %s", expected, resp.StatusCode, string(body))
	}
}

// parseResponse reads and unmarshals the JSON response body into v.
func parseResponse(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("failed to unmarshal response: %v; body: %s", err, string(body))
	}
}

// parseError decodes the error envelope and returns the code with details.
func parseError(t *testing.T, resp *http.Response) (string, map[string]any) {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	parseResponse(t, resp, &envelope)
	return envelope.Error.Code, envelope.Error.Details
}

// itoa formats a ledger id for URL building.
func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
