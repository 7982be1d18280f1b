package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/slack-go/slack"

	"github.com/Ananth-NQI/kb-request-bot/internal/apperr"
	"github.com/Ananth-NQI/kb-request-bot/internal/config"
)

// maxSlackFileSize bounds downloads of user files.
const maxSlackFileSize = 50 << 20

// SlackService posts prompts to Slack DMs and downloads files users share there.
type SlackService struct {
	api    *slack.Client
	logger *slog.Logger
}

// NewSlackService creates a Slack client. Extra options are passed to slack.New,
// e.g. slack.OptionAPIURL in tests.
func NewSlackService(cfg config.SlackConfig, logger *slog.Logger, opts ...slack.Option) (*SlackService, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("missing SLACK_BOT_TOKEN")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SlackService{
		api:    slack.New(cfg.BotToken, opts...),
		logger: logger,
	}, nil
}

// OpenDirectChannel opens (or reuses) the DM channel with userID.
func (s *SlackService) OpenDirectChannel(ctx context.Context, userID string) (string, error) {
	ch, _, _, err := s.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{userID},
	})
	if err != nil {
		return "", slackError(err)
	}
	return ch.ID, nil
}

// Post sends prompt to channel as Block Kit.
func (s *SlackService) Post(ctx context.Context, channel string, prompt Prompt) error {
	_, ts, err := s.api.PostMessageContext(ctx, channel,
		slack.MsgOptionText(prompt.Text, false),
		slack.MsgOptionBlocks(SlackBlocks(prompt)...),
	)
	if err != nil {
		return slackError(err)
	}
	s.logger.Debug("slack message sent", "channel", channel, "ts", ts)
	return nil
}

// Fetch downloads a file shared in Slack by its file id.
func (s *SlackService) Fetch(ctx context.Context, ref string) (*Attachment, error) {
	file, _, _, err := s.api.GetFileInfoContext(ctx, ref, 0, 0)
	if err != nil {
		return nil, slackError(err)
	}
	if file.Size > maxSlackFileSize {
		return nil, fmt.Errorf("file %s is too large (%d bytes)", ref, file.Size)
	}

	url := file.URLPrivateDownload
	if url == "" {
		url = file.URLPrivate
	}
	var buf bytes.Buffer
	if err := s.api.GetFileContext(ctx, url, &buf); err != nil {
		return nil, slackError(err)
	}

	name := file.Name
	if name == "" {
		name = ref
	}
	return &Attachment{Name: name, ContentType: file.Mimetype, Content: buf.Bytes()}, nil
}

// SlackBlocks renders a prompt as a section followed by an optional actions block.
func SlackBlocks(prompt Prompt) []slack.Block {
	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, prompt.Text, false, false), nil, nil),
	}

	var elements []slack.BlockElement
	if sel := prompt.Select; sel != nil {
		options := make([]*slack.OptionBlockObject, 0, len(sel.Options))
		for _, o := range sel.Options {
			options = append(options, slack.NewOptionBlockObject(o.Value, slack.NewTextBlockObject(slack.PlainTextType, o.Label, false, false), nil))
		}
		placeholder := sel.Placeholder
		if placeholder == "" {
			placeholder = "Choose an option"
		}
		elements = append(elements, slack.NewOptionsSelectBlockElement(
			slack.OptTypeStatic,
			slack.NewTextBlockObject(slack.PlainTextType, placeholder, false, false),
			sel.ActionID,
			options...,
		))
	}
	for _, b := range prompt.Buttons {
		btn := slack.NewButtonBlockElement(b.ActionID, b.Value, slack.NewTextBlockObject(slack.PlainTextType, b.Label, false, false))
		switch b.Style {
		case "primary":
			btn = btn.WithStyle(slack.StylePrimary)
		case "danger":
			btn = btn.WithStyle(slack.StyleDanger)
		}
		elements = append(elements, btn)
	}

	if len(elements) > 0 {
		blocks = append(blocks, slack.NewActionBlock("", elements...))
	}
	return blocks
}

// slackError attaches an HTTP status to Slack failures so they can be classified.
func slackError(err error) error {
	var rateLimited *slack.RateLimitedError
	if errors.As(err, &rateLimited) {
		return &apperr.HTTPError{Service: "slack", StatusCode: http.StatusTooManyRequests, Body: err.Error()}
	}
	var statusErr slack.StatusCodeError
	if errors.As(err, &statusErr) {
		return &apperr.HTTPError{Service: "slack", StatusCode: statusErr.Code, Body: statusErr.Status}
	}
	var slackErr slack.SlackErrorResponse
	if errors.As(err, &slackErr) && strings.HasPrefix(slackErr.Err, "invalid_") {
		return &apperr.HTTPError{Service: "slack", StatusCode: http.StatusBadRequest, Body: slackErr.Err}
	}
	return fmt.Errorf("slack: %w", err)
}
