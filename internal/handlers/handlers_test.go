package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ananth-NQI/kb-request-bot/internal/metrics"
	"github.com/Ananth-NQI/kb-request-bot/internal/models"
	"github.com/Ananth-NQI/kb-request-bot/internal/services"
	"github.com/Ananth-NQI/kb-request-bot/internal/storage"
)

type recordingFlow struct {
	mu         sync.Mutex
	starts     []models.Conversation
	messages   []models.InboundMessage
	selections []models.InboundSelection
}

func (f *recordingFlow) Start(_ context.Context, conv models.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, conv)
	return nil
}

func (f *recordingFlow) HandleMessage(_ context.Context, msg models.InboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *recordingFlow) HandleSelection(_ context.Context, sel models.InboundSelection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selections = append(f.selections, sel)
	return nil
}

// inlineDispatcher runs jobs synchronously so assertions can follow the request.
type inlineDispatcher struct {
	keys []string
}

func (d *inlineDispatcher) Dispatch(key string, job services.Job) error {
	d.keys = append(d.keys, key)
	job(context.Background())
	return nil
}

// deferredDispatcher holds jobs until run is called, like the real dispatcher
// running work after the webhook has been acknowledged.
type deferredDispatcher struct {
	jobs []services.Job
}

func (d *deferredDispatcher) Dispatch(_ string, job services.Job) error {
	d.jobs = append(d.jobs, job)
	return nil
}

func (d *deferredDispatcher) run() {
	for _, job := range d.jobs {
		job(context.Background())
	}
	d.jobs = nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSlackApp(t *testing.T) (*fiber.App, *recordingFlow, *inlineDispatcher) {
	t.Helper()
	flow := &recordingFlow{}
	dispatcher := &inlineDispatcher{}
	h := NewSlackHandler(flow, dispatcher, "/kb-request", metrics.NewRecorder(prometheus.NewRegistry()), discard())

	app := fiber.New()
	app.Post("/slack/commands", h.HandleCommand)
	app.Post("/slack/events", h.HandleEvent)
	app.Post("/slack/interactive", h.HandleInteraction)
	return app, flow, dispatcher
}

func postForm(t *testing.T, app *fiber.App, path string, form url.Values) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func postJSON(t *testing.T, app *fiber.App, path, body string, header map[string]string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestSlackCommandStartsConversation(t *testing.T) {
	app, flow, dispatcher := newSlackApp(t)

	resp := postForm(t, app, "/slack/commands", url.Values{"command": {"/kb-request"}, "user_id": {"U0ALICE"}, "channel_id": {"C1"}})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ephemeral", body["response_type"])

	require.Len(t, flow.starts, 1)
	assert.Equal(t, models.Conversation{Platform: models.PlatformSlack, UserID: "U0ALICE"}, flow.starts[0])
	assert.Equal(t, []string{"slack:U0ALICE"}, dispatcher.keys)
}

func TestSlackCommandQueuedWorkKeepsItsUser(t *testing.T) {
	flow := &recordingFlow{}
	dispatcher := &deferredDispatcher{}
	h := NewSlackHandler(flow, dispatcher, "/kb-request", nil, discard())
	app := fiber.New()
	app.Post("/slack/commands", h.HandleCommand)

	postForm(t, app, "/slack/commands", url.Values{"command": {"/kb-request"}, "user_id": {"U0ALICE"}})
	postForm(t, app, "/slack/commands", url.Values{"command": {"/kb-request"}, "user_id": {"U0BOBXX"}})
	dispatcher.run()

	require.Len(t, flow.starts, 2)
	assert.Equal(t, "U0ALICE", flow.starts[0].UserID)
	assert.Equal(t, "U0BOBXX", flow.starts[1].UserID)
}

func TestSlackCommandRejectsOtherCommands(t *testing.T) {
	app, flow, _ := newSlackApp(t)

	resp := postForm(t, app, "/slack/commands", url.Values{"command": {"/other"}, "user_id": {"U0ALICE"}})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, flow.starts)
}

func TestSlackURLVerification(t *testing.T) {
	app, _, _ := newSlackApp(t)

	resp := postJSON(t, app, "/slack/events", `{"type":"url_verification","token":"t","challenge":"abc123"}`, nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "abc123", body["challenge"])
}

const dmEvent = `{
  "type": "event_callback",
  "team_id": "T1",
  "api_app_id": "A1",
  "event": {
    "type": "message",
    "user": "U0ALICE",
    "text": "  Update pricing page ",
    "channel": "D123",
    "channel_type": "im",
    "ts": "1.1",
    "subtype": "file_share",
    "files": [{"id": "F1"}, {"id": "F2"}]
  }
}`

func TestSlackMessageEventIsDispatched(t *testing.T) {
	app, flow, _ := newSlackApp(t)

	resp := postJSON(t, app, "/slack/events", dmEvent, nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, flow.messages, 1)
	msg := flow.messages[0]
	assert.Equal(t, "Update pricing page", msg.Text)
	assert.Equal(t, []string{"F1", "F2"}, msg.Files)
	assert.Equal(t, "im", msg.ChannelType)
	assert.Equal(t, "D123", msg.Channel)
}

func TestSlackIgnoresRetriesBotsAndEdits(t *testing.T) {
	app, flow, _ := newSlackApp(t)

	postJSON(t, app, "/slack/events", dmEvent, map[string]string{"X-Slack-Retry-Num": "1"})
	postJSON(t, app, "/slack/events", `{"type":"event_callback","event":{"type":"message","bot_id":"B1","text":"hi","channel":"D123","channel_type":"im"}}`, nil)
	postJSON(t, app, "/slack/events", `{"type":"event_callback","event":{"type":"message","subtype":"message_changed","channel":"D123","channel_type":"im"}}`, nil)

	assert.Empty(t, flow.messages)
}

func TestSlackInteraction(t *testing.T) {
	app, flow, _ := newSlackApp(t)

	payload := `{
  "type": "block_actions",
  "user": {"id": "U0ALICE"},
  "channel": {"id": "D123"},
  "actions": [
    {"action_id": "task_type", "block_id": "kb_task_type", "type": "static_select", "selected_option": {"value": "Content Edit"}},
    {"action_id": "submit_request", "block_id": "kb_actions", "type": "button", "value": "submit"}
  ]
}`
	resp := postForm(t, app, "/slack/interactive", url.Values{"payload": {payload}})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, flow.selections, 2)
	assert.Equal(t, "task_type", flow.selections[0].ActionID)
	assert.Equal(t, "Content Edit", flow.selections[0].Value)
	assert.Equal(t, models.ActionSubmit, flow.selections[1].ActionID)
	assert.Equal(t, "submit", flow.selections[1].Value)
	assert.Equal(t, "D123", flow.selections[1].Channel)
}

func TestSlackInteractionRejectsGarbage(t *testing.T) {
	app, _, _ := newSlackApp(t)

	resp := postForm(t, app, "/slack/interactive", url.Values{"payload": {"{not json"}})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWhatsAppWebhook(t *testing.T) {
	flow := &recordingFlow{}
	h := NewWhatsAppHandler(flow, &inlineDispatcher{}, nil, discard())
	app := fiber.New()
	app.Post("/webhook/whatsapp", h.HandleWebhook)

	resp := postForm(t, app, "/webhook/whatsapp", url.Values{
		"From":      {"whatsapp:+15551234567"},
		"Body":      {" kb-request "},
		"NumMedia":  {"2"},
		"MediaUrl0": {"https://api.twilio.com/Media/ME1"},
		"MediaUrl1": {"https://api.twilio.com/Media/ME2"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	postForm(t, app, "/webhook/whatsapp", url.Values{"MessageSid": {"SM1"}, "MessageStatus": {"delivered"}})

	require.Len(t, flow.messages, 1)
	msg := flow.messages[0]
	assert.Equal(t, models.PlatformWhatsApp, msg.Platform)
	assert.Equal(t, "+15551234567", msg.UserID)
	assert.Equal(t, "whatsapp:+15551234567", msg.Channel)
	assert.Equal(t, "kb-request", msg.Text)
	assert.Equal(t, []string{"https://api.twilio.com/Media/ME1", "https://api.twilio.com/Media/ME2"}, msg.Files)
}

func TestWhatsAppQueuedWorkKeepsItsMessage(t *testing.T) {
	flow := &recordingFlow{}
	dispatcher := &deferredDispatcher{}
	h := NewWhatsAppHandler(flow, dispatcher, nil, discard())
	app := fiber.New()
	app.Post("/webhook/whatsapp", h.HandleWebhook)

	postForm(t, app, "/webhook/whatsapp", url.Values{
		"From":      {"whatsapp:+15551234567"},
		"Body":      {"Pricing page is out of date"},
		"NumMedia":  {"1"},
		"MediaUrl0": {"https://api.twilio.com/Media/ME1"},
	})
	postForm(t, app, "/webhook/whatsapp", url.Values{
		"From":      {"whatsapp:+15559876543"},
		"Body":      {"kb-request"},
		"NumMedia":  {"1"},
		"MediaUrl0": {"https://api.twilio.com/Media/ME9"},
	})
	dispatcher.run()

	require.Len(t, flow.messages, 2)
	first := flow.messages[0]
	assert.Equal(t, "+15551234567", first.UserID)
	assert.Equal(t, "whatsapp:+15551234567", first.Channel)
	assert.Equal(t, "Pricing page is out of date", first.Text)
	assert.Equal(t, []string{"https://api.twilio.com/Media/ME1"}, first.Files)
	assert.Equal(t, "+15559876543", flow.messages[1].UserID)
}

type stubReporter services.HealthReport

func (s stubReporter) Check(context.Context) services.HealthReport { return services.HealthReport(s) }

func TestHealthStatusCodes(t *testing.T) {
	for _, tt := range []struct {
		status string
		want   int
	}{
		{services.HealthHealthy, http.StatusOK},
		{"degraded", http.StatusOK},
		{services.HealthUnhealthy, http.StatusServiceUnavailable},
	} {
		app := fiber.New()
		app.Get("/health", NewHealthHandler(stubReporter{Status: tt.status}).Check)

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		require.NoError(t, err)
		assert.Equal(t, tt.want, resp.StatusCode, tt.status)
	}
}

func TestSubmissionEndpoints(t *testing.T) {
	store := storage.NewMemoryStore()
	sub := &models.Submission{UserKey: "slack:U0ALICE", ItemID: "1001", Subject: "Pricing"}
	require.NoError(t, store.SaveSubmission(sub))

	h := NewSubmissionHandler(store, discard())
	app := fiber.New()
	app.Get("/api/submissions", h.List)
	app.Get("/api/submissions/:ref", h.Get)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/submissions?user=slack:U0ALICE", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Count       int                  `json:"count"`
		Submissions []*models.Submission `json:"submissions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "1001", list.Submissions[0].ItemID)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/submissions", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/submissions/"+sub.RequestRef, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/submissions/KB-20260101-DEADBEEF", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/submissions/KB-missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
