package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/Ananth-NQI/kb-request-bot/internal/metrics"
	"github.com/Ananth-NQI/kb-request-bot/internal/models"
)

// SlackHandler handles Slack slash commands, events and interactive payloads
type SlackHandler struct {
	inbound
	command string
}

// NewSlackHandler creates a new Slack handler
func NewSlackHandler(flow Conversations, dispatcher Dispatcher, command string, recorder *metrics.Recorder, logger *slog.Logger) *SlackHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlackHandler{
		inbound: inbound{flow: flow, dispatcher: dispatcher, metrics: recorder, logger: logger},
		command: command,
	}
}

// HandleCommand acknowledges the slash command and starts a conversation in the user's DM.
func (h *SlackHandler) HandleCommand(c *fiber.Ctx) error {
	// Form values alias fiber's request buffer; the dispatched job outlives it.
	command := c.FormValue("command")
	userID := utils.CopyString(c.FormValue("user_id"))
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid command payload",
		})
	}
	if h.command != "" && command != h.command {
		return c.JSON(fiber.Map{
			"response_type": "ephemeral",
			"text":          "Unknown command " + command,
		})
	}

	conv := models.Conversation{Platform: models.PlatformSlack, UserID: userID}
	h.dispatch(conv, "command", func(ctx context.Context) error {
		return h.flow.Start(ctx, conv)
	})

	return c.JSON(fiber.Map{
		"response_type": "ephemeral",
		"text":          "📝 Let's create a KB request. Check your direct messages.",
	})
}

// HandleEvent processes Events API callbacks.
func (h *SlackHandler) HandleEvent(c *fiber.Ctx) error {
	// Slack retries events it thinks we missed; the first delivery was already queued.
	if c.Get("X-Slack-Retry-Num") != "" {
		return c.SendStatus(fiber.StatusOK)
	}

	event, err := slackevents.ParseEvent(json.RawMessage(c.Body()), slackevents.OptionNoVerifyToken())
	if err != nil {
		h.logger.Warn("invalid slack event", "error", err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid event payload",
		})
	}

	switch event.Type {
	case slackevents.URLVerification:
		verification, ok := event.Data.(*slackevents.EventsAPIURLVerificationEvent)
		if !ok {
			return c.SendStatus(fiber.StatusBadRequest)
		}
		return c.JSON(fiber.Map{"challenge": verification.Challenge})

	case slackevents.CallbackEvent:
		if msg, ok := event.InnerEvent.Data.(*slackevents.MessageEvent); ok {
			h.handleMessage(msg)
		}
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *SlackHandler) handleMessage(ev *slackevents.MessageEvent) {
	// Edits, deletions and other housekeeping subtypes are not answers.
	if ev.SubType != "" && ev.SubType != "file_share" {
		return
	}
	if ev.User == "" || ev.BotID != "" {
		return
	}

	files := make([]string, 0, len(ev.Files))
	for _, f := range ev.Files {
		files = append(files, f.ID)
	}

	msg := models.InboundMessage{
		Conversation: models.Conversation{
			Platform: models.PlatformSlack,
			UserID:   ev.User,
			Channel:  ev.Channel,
		},
		Text:        strings.TrimSpace(ev.Text),
		Files:       files,
		ChannelType: ev.ChannelType,
	}

	h.dispatch(msg.Conversation, "message", func(ctx context.Context) error {
		return h.flow.HandleMessage(ctx, msg)
	})
}

// HandleInteraction processes button clicks and select menus.
func (h *SlackHandler) HandleInteraction(c *fiber.Ctx) error {
	var cb slack.InteractionCallback
	if err := json.Unmarshal([]byte(c.FormValue("payload")), &cb); err != nil {
		h.logger.Warn("invalid slack interaction", "error", err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid interaction payload",
		})
	}
	if cb.Type != slack.InteractionTypeBlockActions {
		return c.SendStatus(fiber.StatusOK)
	}

	channel := cb.Channel.ID
	if channel == "" {
		channel = cb.Container.ChannelID
	}
	conv := models.Conversation{Platform: models.PlatformSlack, UserID: cb.User.ID, Channel: channel}

	for _, action := range cb.ActionCallback.BlockActions {
		value := action.Value
		if action.SelectedOption.Value != "" {
			value = action.SelectedOption.Value
		}
		sel := models.InboundSelection{Conversation: conv, ActionID: action.ActionID, Value: value}
		h.dispatch(conv, "selection", func(ctx context.Context) error {
			return h.flow.HandleSelection(ctx, sel)
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
