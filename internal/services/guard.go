package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Ananth-NQI/kb-request-bot/internal/apperr"
	"github.com/Ananth-NQI/kb-request-bot/internal/logging"
	"github.com/Ananth-NQI/kb-request-bot/internal/models"
	"github.com/Ananth-NQI/kb-request-bot/internal/session"
	"github.com/Ananth-NQI/kb-request-bot/internal/validation"
)

// Guard runs conversation steps and resets the conversation when one fails.
type Guard struct {
	sessions   *session.Store
	transports Transports
	messages   Messages
	logger     *slog.Logger
}

// NewGuard creates a guard.
func NewGuard(sessions *session.Store, transports Transports, messages Messages, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		sessions:   sessions,
		transports: transports,
		messages:   messages,
		logger:     logger,
	}
}

// Run executes op. On failure the user's session is destroyed and the user is
// told what happened. Validation failures and incomplete requests are returned
// as is; any other failure is logged and replaced by apperr.ErrUnexpected.
func (g *Guard) Run(ctx context.Context, conv models.Conversation, op func(context.Context) error) error {
	err := op(ctx)
	if err == nil {
		return nil
	}

	logger := logging.FromContext(ctx, g.logger)
	logger.Error("conversation step failed",
		"user", conv.Key(),
		"channel", conv.Channel,
		"error", err.Error(),
	)
	g.sessions.Destroy(conv.Key(), session.ReasonFailed)

	if isUserError(err) {
		g.notify(ctx, conv, Prompt{
			Text: fmt.Sprintf("❌ %s\n\n"+g.messages.Restart, err.Error(), g.restartHint(conv.Platform)),
		})
		return err
	}

	text, retryable := g.describe(err)
	prompt := Prompt{Text: text}
	if retryable {
		prompt.Buttons = []Button{{
			ActionID: models.ActionRetry,
			Label:    "Try Again",
			Value:    "retry",
			Style:    "primary",
			Keyword:  g.restartHint(conv.Platform),
		}}
	}
	g.notify(ctx, conv, prompt)
	return apperr.ErrUnexpected
}

func (g *Guard) notify(ctx context.Context, conv models.Conversation, prompt Prompt) {
	if conv.Channel == "" {
		return
	}
	if err := g.transports.post(ctx, conv, prompt); err != nil {
		logging.FromContext(ctx, g.logger).Error("failed to send error message",
			"user", conv.Key(),
			"error", err.Error(),
		)
	}
}

func (g *Guard) restartHint(p models.Platform) string {
	if tr, ok := g.transports[p]; ok && tr.RestartHint != "" {
		return tr.RestartHint
	}
	return "/kb-request"
}

// describe maps a failure to a user message and whether offering a retry makes sense.
func (g *Guard) describe(err error) (string, bool) {
	switch {
	case apperr.IsConnectionError(err):
		return g.messages.ConnectionError, true
	case apperr.IsRateLimited(err):
		return g.messages.RateLimited, true
	case apperr.IsClientError(err):
		return g.messages.BadRequest, false
	case apperr.IsServerError(err), isServiceUnavailable(err):
		return g.messages.Unavailable, true
	default:
		return g.messages.GenericError, true
	}
}

func isUserError(err error) bool {
	var incomplete *apperr.IncompleteRequestError
	return validation.IsValidationError(err) || errors.As(err, &incomplete)
}

func isServiceUnavailable(err error) bool {
	var unavailable *apperr.ServiceUnavailableError
	return errors.As(err, &unavailable)
}
