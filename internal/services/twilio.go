package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/Ananth-NQI/kb-request-bot/internal/apperr"
	"github.com/Ananth-NQI/kb-request-bot/internal/config"
)

// WhatsApp bodies are limited to 1600 characters.
const maxWhatsAppBody = 1600

const maxMediaSize = 16 << 20

// messageCreator is the part of the Twilio REST API the service uses.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

type TwilioService struct {
	api        messageCreator
	from       string // Your Twilio WhatsApp number, "whatsapp:+14155238886"
	accountSid string
	authToken  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewTwilioService creates a new Twilio service instance
func NewTwilioService(cfg config.TwilioConfig, logger *slog.Logger) (*TwilioService, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("missing Twilio credentials in environment variables")
	}
	if logger == nil {
		logger = slog.Default()
	}

	restClient := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &TwilioService{
		api:        restClient.Api,
		from:       whatsAppAddress(cfg.WhatsAppFrom),
		accountSid: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		httpClient: &http.Client{Timeout: 90 * time.Second},
		logger:     logger,
	}, nil
}

// OpenDirectChannel returns the WhatsApp address of userID; WhatsApp has no
// channel to open.
func (t *TwilioService) OpenDirectChannel(_ context.Context, userID string) (string, error) {
	return whatsAppAddress(userID), nil
}

// Post sends prompt as a plain WhatsApp message.
func (t *TwilioService) Post(_ context.Context, channel string, prompt Prompt) error {
	return t.SendWhatsAppMessage(channel, WhatsAppText(prompt))
}

// SendWhatsAppMessage sends a WhatsApp message via Twilio
func (t *TwilioService) SendWhatsAppMessage(to string, message string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo(whatsAppAddress(to))
	params.SetBody(message)

	resp, err := t.api.CreateMessage(params)
	if err != nil {
		t.logger.Error("failed to send whatsapp message", "to", to, "error", err.Error())
		return twilioError(err)
	}
	if resp.ErrorCode != nil && *resp.ErrorCode != 0 {
		msg := ""
		if resp.ErrorMessage != nil {
			msg = *resp.ErrorMessage
		}
		return fmt.Errorf("twilio error %d: %s", *resp.ErrorCode, msg)
	}

	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	t.logger.Debug("whatsapp message sent", "to", to, "sid", sid)
	return nil
}

// Fetch downloads a media attachment by its Twilio media URL.
func (t *TwilioService) Fetch(ctx context.Context, ref string) (*Attachment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("build media request: %w", err)
	}
	req.SetBasicAuth(t.accountSid, t.authToken)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twilio media request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &apperr.HTTPError{Service: "twilio", StatusCode: resp.StatusCode, Body: string(body)}
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaSize+1))
	if err != nil {
		return nil, fmt.Errorf("read twilio media: %w", err)
	}
	if len(content) > maxMediaSize {
		return nil, fmt.Errorf("media %s exceeds %d bytes", ref, maxMediaSize)
	}

	contentType := resp.Header.Get("Content-Type")
	return &Attachment{
		Name:        mediaName(ref, contentType),
		ContentType: contentType,
		Content:     content,
	}, nil
}

// WhatsAppText renders a prompt as numbered plain text.
func WhatsAppText(prompt Prompt) string {
	var b strings.Builder
	b.WriteString(html.UnescapeString(prompt.Text))

	if sel := prompt.Select; sel != nil && len(sel.Options) > 0 {
		b.WriteString("\n")
		for i, o := range sel.Options {
			fmt.Fprintf(&b, "\n%d. %s", i+1, o.Label)
		}
		b.WriteString("\n\nReply with the number or the name.")
	}

	if len(prompt.Buttons) > 0 {
		b.WriteString("\n")
		for _, btn := range prompt.Buttons {
			if btn.Keyword == "" {
				continue
			}
			fmt.Fprintf(&b, "\nReply *%s* to %s.", btn.Keyword, strings.ToLower(btn.Label))
		}
	}

	text := b.String()
	if r := []rune(text); len(r) > maxWhatsAppBody {
		text = string(r[:maxWhatsAppBody-1]) + "…"
	}
	return text
}

func whatsAppAddress(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

func mediaName(ref, contentType string) string {
	name := path.Base(ref)
	if name == "." || name == "/" {
		name = "attachment"
	}
	if path.Ext(name) == "" && contentType != "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			name += exts[0]
		}
	}
	return name
}

func twilioError(err error) error {
	var restErr *client.TwilioRestError
	if errors.As(err, &restErr) {
		return &apperr.HTTPError{Service: "twilio", StatusCode: restErr.Status, Body: restErr.Message}
	}
	return err
}
