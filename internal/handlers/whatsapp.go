package handlers

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/Ananth-NQI/kb-request-bot/internal/metrics"
	"github.com/Ananth-NQI/kb-request-bot/internal/models"
)

// maxMediaPerMessage is Twilio's limit on media items per WhatsApp message.
const maxMediaPerMessage = 10

// WhatsAppHandler handles WhatsApp webhook requests
type WhatsAppHandler struct {
	inbound
}

// NewWhatsAppHandler creates a new WhatsApp handler
func NewWhatsAppHandler(flow Conversations, dispatcher Dispatcher, recorder *metrics.Recorder, logger *slog.Logger) *WhatsAppHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WhatsAppHandler{
		inbound: inbound{flow: flow, dispatcher: dispatcher, metrics: recorder, logger: logger},
	}
}

// TwilioWebhookPayload represents incoming WhatsApp message from Twilio
type TwilioWebhookPayload struct {
	MessageSid string `form:"MessageSid"`
	AccountSid string `form:"AccountSid"`
	From       string `form:"From"` // WhatsApp number (whatsapp:+15551234567)
	To         string `form:"To"`   // Your Twilio number
	Body       string `form:"Body"` // Message text
	NumMedia   string `form:"NumMedia"`
}

// HandleWebhook processes incoming WhatsApp messages
func (h *WhatsAppHandler) HandleWebhook(c *fiber.Ctx) error {
	var payload TwilioWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		h.logger.Warn("error parsing webhook", "error", err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook payload",
		})
	}

	// Parsed fields alias fiber's request buffer; the dispatched job outlives it.
	payload.From = utils.CopyString(payload.From)
	payload.Body = utils.CopyString(payload.Body)

	// Status callbacks carry no sender text or media.
	if payload.From == "" {
		return c.SendStatus(fiber.StatusOK)
	}

	media := mediaURLs(c, payload.NumMedia)
	if strings.TrimSpace(payload.Body) == "" && len(media) == 0 {
		return c.SendStatus(fiber.StatusOK)
	}

	msg := models.InboundMessage{
		Conversation: models.Conversation{
			Platform: models.PlatformWhatsApp,
			UserID:   strings.TrimPrefix(payload.From, "whatsapp:"),
			Channel:  payload.From,
		},
		Text:        strings.TrimSpace(payload.Body),
		Files:       media,
		ChannelType: "im",
	}
	h.logger.Debug("whatsapp message received", "user", msg.Key(), "media", len(media))

	h.dispatch(msg.Conversation, "message", func(ctx context.Context) error {
		return h.flow.HandleMessage(ctx, msg)
	})

	// Acknowledge webhook receipt
	return c.SendStatus(fiber.StatusOK)
}

func mediaURLs(c *fiber.Ctx, numMedia string) []string {
	n, err := strconv.Atoi(numMedia)
	if err != nil || n <= 0 {
		return nil
	}
	if n > maxMediaPerMessage {
		n = maxMediaPerMessage
	}

	urls := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if u := c.FormValue("MediaUrl" + strconv.Itoa(i)); u != "" {
			urls = append(urls, utils.CopyString(u))
		}
	}
	return urls
}
