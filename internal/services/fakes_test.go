package services

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Ananth-NQI/kb-request-bot/internal/apperr"
	"github.com/Ananth-NQI/kb-request-bot/internal/models"
	"github.com/Ananth-NQI/kb-request-bot/internal/retry"
	"github.com/Ananth-NQI/kb-request-bot/internal/session"
)

type posted struct {
	channel string
	prompt  Prompt
}

type fakeMessenger struct {
	mu    sync.Mutex
	posts []posted
}

func (m *fakeMessenger) OpenDirectChannel(_ context.Context, userID string) (string, error) {
	return "D-" + userID, nil
}

func (m *fakeMessenger) Post(_ context.Context, channel string, prompt Prompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = append(m.posts, posted{channel: channel, prompt: prompt})
	return nil
}

func (m *fakeMessenger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posts)
}

func (m *fakeMessenger) last() Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.posts) == 0 {
		return Prompt{}
	}
	return m.posts[len(m.posts)-1].prompt
}

type fakeFiles struct{}

func (fakeFiles) Fetch(_ context.Context, ref string) (*Attachment, error) {
	if ref == "F-MISSING" {
		return nil, &apperr.HTTPError{Service: "slack", StatusCode: http.StatusNotFound, Body: "file_not_found"}
	}
	return &Attachment{Name: ref + ".png", ContentType: "image/png", Content: []byte("png")}, nil
}

type fakeBoard struct {
	mu          sync.Mutex
	items       []BoardItem
	uploads     []string
	createCalls int
	createErr   error
}

func (b *fakeBoard) CreateItem(_ context.Context, item BoardItem) (*BoardRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.createCalls++
	if b.createErr != nil {
		return nil, b.createErr
	}
	b.items = append(b.items, item)
	return &BoardRecord{ID: "1001", URL: "https://acme.monday.com/boards/42/pulses/1001"}, nil
}

func (b *fakeBoard) UploadFile(_ context.Context, itemID, columnID string, file *Attachment) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploads = append(b.uploads, itemID+"/"+columnID+"/"+file.Name)
	return nil
}

type fakeEnricher struct {
	enabled bool
	out     *models.Enrichment
	err     error
	calls   int
}

func (e *fakeEnricher) Enabled() bool { return e.enabled }

func (e *fakeEnricher) Enrich(context.Context, string, string) (*models.Enrichment, error) {
	e.calls++
	return e.out, e.err
}

type fakeAudit struct {
	saved []*models.Submission
}

func (a *fakeAudit) SaveSubmission(sub *models.Submission) error {
	a.saved = append(a.saved, sub)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func instantPolicy() *retry.Policy {
	p := retry.NewPolicy(retry.Config{MaxAttempts: 3, BaseDelay: time.Second}, discardLogger())
	p.Sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

var alice = models.Conversation{Platform: models.PlatformSlack, UserID: "U0ALICE"}

type harness struct {
	flow       *FlowService
	submitter  *SubmissionService
	sessions   *session.Store
	messenger  *fakeMessenger
	board      *fakeBoard
	enricher   *fakeEnricher
	audit      *fakeAudit
	conv       models.Conversation
	transports Transports
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	logger := discardLogger()
	sessions := session.NewStore(30*time.Minute, session.WithLogger(logger))
	t.Cleanup(sessions.Close)

	messenger := &fakeMessenger{}
	transports := Transports{
		models.PlatformSlack: {Messenger: messenger, Files: fakeFiles{}, RestartHint: "/kb-request"},
	}
	board := &fakeBoard{}
	enricher := &fakeEnricher{}
	audit := &fakeAudit{}

	submitter := NewSubmissionService(SubmissionDeps{
		Sessions:   sessions,
		Catalog:    catalog,
		Enricher:   enricher,
		Board:      board,
		Transports: transports,
		Audit:      audit,
		Policy:     instantPolicy(),
		Logger:     logger,
	})

	conv := alice
	conv.Channel = "D-" + alice.UserID

	return &harness{
		flow:       NewFlowService(sessions, catalog, transports, submitter, []string{"kb-request"}, logger),
		submitter:  submitter,
		sessions:   sessions,
		messenger:  messenger,
		board:      board,
		enricher:   enricher,
		audit:      audit,
		conv:       conv,
		transports: transports,
	}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.flow.Start(context.Background(), alice))
}

func (h *harness) say(t *testing.T, text string, files ...string) error {
	t.Helper()
	return h.flow.HandleMessage(context.Background(), models.InboundMessage{
		Conversation: h.conv,
		Text:         text,
		Files:        files,
		ChannelType:  "im",
	})
}

func (h *harness) choose(t *testing.T, actionID, value string) error {
	t.Helper()
	return h.flow.HandleSelection(context.Background(), models.InboundSelection{
		Conversation: h.conv,
		ActionID:     actionID,
		Value:        value,
	})
}

func (h *harness) step(t *testing.T) models.Step {
	t.Helper()
	sess, ok := h.sessions.Get(h.conv.Key())
	if !ok {
		return ""
	}
	return sess.Step
}

// fillThroughProduct answers subject, task type, priority and product.
func (h *harness) fillThroughProduct(t *testing.T, taskType string) {
	t.Helper()
	h.start(t)
	require.NoError(t, h.say(t, "Update pricing page"))
	require.NoError(t, h.choose(t, models.StepTaskType.String(), taskType))
	require.NoError(t, h.choose(t, models.StepPriority.String(), "High"))
	require.NoError(t, h.say(t, "Stores"))
}
