package handlers

import (
	"context"
	"log/slog"

	"github.com/Ananth-NQI/kb-request-bot/internal/logging"
	"github.com/Ananth-NQI/kb-request-bot/internal/metrics"
	"github.com/Ananth-NQI/kb-request-bot/internal/models"
	"github.com/Ananth-NQI/kb-request-bot/internal/services"
)

// Conversations drives the KB request conversation.
type Conversations interface {
	Start(ctx context.Context, conv models.Conversation) error
	HandleMessage(ctx context.Context, msg models.InboundMessage) error
	HandleSelection(ctx context.Context, sel models.InboundSelection) error
}

// Dispatcher queues per-user work behind the webhook acknowledgement.
type Dispatcher interface {
	Dispatch(key string, job services.Job) error
}

// inbound is shared by the webhook handlers: it records the event and queues
// the conversation work for the user.
type inbound struct {
	flow       Conversations
	dispatcher Dispatcher
	metrics    *metrics.Recorder
	logger     *slog.Logger
}

func (in inbound) dispatch(conv models.Conversation, kind string, work func(ctx context.Context) error) {
	in.metrics.ObserveInbound(string(conv.Platform), kind)
	correlationID := logging.CorrelationID(logging.WithCorrelationID(context.Background(), ""))

	err := in.dispatcher.Dispatch(conv.Key(), func(ctx context.Context) {
		ctx = logging.WithCorrelationID(ctx, correlationID)
		if err := work(ctx); err != nil {
			logging.FromContext(ctx, in.logger).Debug("conversation event ended with error",
				"user", conv.Key(),
				"kind", kind,
				"error", err.Error(),
			)
		}
	})
	if err != nil {
		in.logger.Warn("dropping inbound event", "user", conv.Key(), "kind", kind, "error", err.Error())
	}
}
