package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/Ananth-NQI/kb-request-bot/internal/apperr"
	"github.com/Ananth-NQI/kb-request-bot/internal/logging"
	"github.com/Ananth-NQI/kb-request-bot/internal/metrics"
	"github.com/Ananth-NQI/kb-request-bot/internal/models"
	"github.com/Ananth-NQI/kb-request-bot/internal/retry"
	"github.com/Ananth-NQI/kb-request-bot/internal/session"
	"github.com/Ananth-NQI/kb-request-bot/internal/validation"
)

// Service names used in logs and metrics.
const (
	ServiceEnrichment = "enrichment"
	ServiceBoard      = "monday"
	ServiceFileUpload = "file_upload"
)

// Enricher infers structured fields from the free-text request.
type Enricher interface {
	Enabled() bool
	Enrich(ctx context.Context, message, userID string) (*models.Enrichment, error)
}

// BoardItem is a record to create on the project board.
type BoardItem struct {
	Name    string
	Columns map[string]any
}

// BoardRecord identifies a created record.
type BoardRecord struct {
	ID  string
	URL string
}

// Board is the project-tracking board.
type Board interface {
	CreateItem(ctx context.Context, item BoardItem) (*BoardRecord, error)
	UploadFile(ctx context.Context, itemID, columnID string, file *Attachment) error
}

// SubmissionLog persists an audit row per submission.
type SubmissionLog interface {
	SaveSubmission(sub *models.Submission) error
}

// SubmissionTimeouts bound each external call attempt.
type SubmissionTimeouts struct {
	Enrichment time.Duration
	Board      time.Duration
	File       time.Duration
}

// DefaultSubmissionTimeouts are the production per-attempt limits.
var DefaultSubmissionTimeouts = SubmissionTimeouts{
	Enrichment: 30 * time.Second,
	Board:      30 * time.Second,
	File:       90 * time.Second,
}

// SubmissionService turns a finished conversation into a board record.
type SubmissionService struct {
	sessions   *session.Store
	catalog    *Catalog
	enricher   Enricher
	board      Board
	transports Transports
	audit      SubmissionLog
	policy     *retry.Policy
	timeouts   SubmissionTimeouts
	metrics    *metrics.Recorder
	logger     *slog.Logger
	now        func() time.Time
}

// SubmissionDeps are the collaborators of a SubmissionService. Enricher, Audit
// and Metrics are optional.
type SubmissionDeps struct {
	Sessions   *session.Store
	Catalog    *Catalog
	Enricher   Enricher
	Board      Board
	Transports Transports
	Audit      SubmissionLog
	Policy     *retry.Policy
	Timeouts   SubmissionTimeouts
	Metrics    *metrics.Recorder
	Logger     *slog.Logger
}

// NewSubmissionService creates the orchestrator.
func NewSubmissionService(deps SubmissionDeps) *SubmissionService {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Policy == nil {
		deps.Policy = retry.NewPolicy(retry.DefaultConfig, deps.Logger)
	}
	if deps.Timeouts == (SubmissionTimeouts{}) {
		deps.Timeouts = DefaultSubmissionTimeouts
	}
	return &SubmissionService{
		sessions:   deps.Sessions,
		catalog:    deps.Catalog,
		enricher:   deps.Enricher,
		board:      deps.Board,
		transports: deps.Transports,
		audit:      deps.Audit,
		policy:     deps.Policy,
		timeouts:   deps.Timeouts,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        time.Now,
	}
}

// Submit validates the accumulated answers, enriches them, creates the board
// record and attaches files. Enrichment and file failures degrade the result;
// a board failure is returned. The session is destroyed on success.
func (s *SubmissionService) Submit(ctx context.Context, sess session.Session) (*models.SubmissionResult, error) {
	started := s.now()
	logger := logging.FromContext(ctx, s.logger).With("user", sess.Key)

	req, err := validation.ValidateRequest(sess.Data, sess.Files)
	if err != nil {
		var ve *validation.ValidationError
		if errors.As(err, &ve) {
			return nil, &apperr.IncompleteRequestError{Field: ve.Field, Reason: ve.Message}
		}
		return nil, err
	}

	result := &models.SubmissionResult{
		KBRequest:         *req,
		UserID:            sess.Conversation.UserID,
		EnrichmentEnabled: s.enricher != nil && s.enricher.Enabled(),
	}
	result.Enrichment, result.Degraded = s.enrich(ctx, logger, req, sess.Conversation.UserID)
	result.ProcessedAt = s.now()

	record, err := retry.Call(ctx, s.policy, ServiceBoard, func(ctx context.Context) (*BoardRecord, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeouts.Board)
		defer cancel()
		return s.board.CreateItem(ctx, BoardItem{
			Name:    html.UnescapeString(result.ItemName()),
			Columns: s.catalog.ColumnValues(result),
		})
	})
	if err != nil {
		s.metrics.ObserveSubmission("failed", s.now().Sub(started))
		return nil, fmt.Errorf("create board item: %w", err)
	}
	result.ItemID = record.ID
	result.ItemURL = record.URL
	logger.Info("board item created", "item_id", record.ID, "degraded", result.Degraded)

	s.attachFiles(ctx, logger, sess.Conversation.Platform, result)
	s.metrics.ObserveFiles(result.FilesAttached, result.FilesFailed)

	if s.audit != nil {
		if err := s.audit.SaveSubmission(models.NewSubmission(sess.Key, result)); err != nil {
			logger.Warn("failed to record submission", "item_id", record.ID, "error", err.Error())
		}
	}

	s.sessions.Destroy(sess.Key, session.ReasonSubmitted)

	outcome := "success"
	if result.Degraded {
		outcome = "degraded"
	}
	s.metrics.ObserveSubmission(outcome, s.now().Sub(started))
	return result, nil
}

func (s *SubmissionService) enrich(ctx context.Context, logger *slog.Logger, req *models.KBRequest, userID string) (models.Enrichment, bool) {
	fallback := FallbackEnrichment(req)
	if s.enricher == nil || !s.enricher.Enabled() {
		return fallback, false
	}

	message := EnrichmentMessage(req)
	out, err := retry.Call(ctx, s.policy, ServiceEnrichment, func(ctx context.Context) (*models.Enrichment, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeouts.Enrichment)
		defer cancel()
		return s.enricher.Enrich(ctx, message, userID)
	})
	if err != nil {
		logger.Warn("enrichment failed, continuing with user data", "error", err.Error())
		return fallback, true
	}
	return mergeEnrichment(out, fallback), false
}

func (s *SubmissionService) attachFiles(ctx context.Context, logger *slog.Logger, platform models.Platform, result *models.SubmissionResult) {
	if len(result.Files) == 0 {
		return
	}

	tr, err := s.transports.get(platform)
	if err == nil && tr.Files == nil {
		err = fmt.Errorf("platform %q cannot download files", platform)
	}

	for _, ref := range result.Files {
		attachErr := err
		if attachErr == nil {
			_, attachErr = retry.Call(ctx, s.policy, ServiceFileUpload, func(ctx context.Context) (struct{}, error) {
				ctx, cancel := context.WithTimeout(ctx, s.timeouts.File)
				defer cancel()

				file, err := tr.Files.Fetch(ctx, ref)
				if err != nil {
					return struct{}{}, err
				}
				return struct{}{}, s.board.UploadFile(ctx, result.ItemID, s.catalog.Columns.Attachments, file)
			})
		}
		if attachErr != nil {
			fe := &apperr.FileAttachmentError{FileRef: ref, Err: attachErr}
			logger.Warn("file not attached", "item_id", result.ItemID, "error", fe.Error())
			result.FilesFailed++
			continue
		}
		result.FilesAttached++
	}
}

// EnrichmentMessage is the free text sent to the enricher.
func EnrichmentMessage(req *models.KBRequest) string {
	parts := []struct{ label, value string }{
		{validation.LabelSubject, req.Subject},
		{validation.LabelTaskType, req.TaskType},
		{validation.LabelPriority, req.Priority},
		{validation.LabelProduct, req.Product},
		{validation.LabelDescription, req.Description},
		{validation.LabelKBURLs, req.KBURLs},
		{validation.LabelSupportingMaterials, req.SupportingMaterials},
	}

	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.value != "" {
			lines = append(lines, p.label+": "+html.UnescapeString(p.value))
		}
	}
	return strings.Join(lines, "\n\n")
}

// FallbackEnrichment derives enrichment fields from the user's own answers.
func FallbackEnrichment(req *models.KBRequest) models.Enrichment {
	link := ""
	if urls := strings.Fields(req.KBURLs); len(urls) > 0 {
		link = urls[0]
	}
	return models.Enrichment{
		RequestType:       req.TaskType,
		ChangeDescription: req.Description,
		ArticleLink:       link,
		UrgencyLevel:      models.DefaultUrgency,
		FeatureName:       req.Subject,
	}
}

func mergeEnrichment(out *models.Enrichment, fallback models.Enrichment) models.Enrichment {
	if out == nil {
		return fallback
	}
	merged := *out
	pick := func(v *string, def string) {
		if strings.TrimSpace(*v) == "" {
			*v = def
		}
	}
	pick(&merged.RequestType, fallback.RequestType)
	pick(&merged.ChangeDescription, fallback.ChangeDescription)
	pick(&merged.ArticleLink, fallback.ArticleLink)
	pick(&merged.UrgencyLevel, fallback.UrgencyLevel)
	pick(&merged.FeatureName, fallback.FeatureName)
	return merged
}
