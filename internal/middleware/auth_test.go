package middleware

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }

// twilioSign signs the URL followed by the sorted form pairs.
func twilioSign(token, rawURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := rawURL
	for _, k := range keys {
		data += k + form.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestTwilioSignature(t *testing.T) {
	app := fiber.New()
	app.Post("/webhook/whatsapp", ValidateTwilioSignature("twilio-token", quietLogger()), okHandler)

	form := url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"kb-request"}}
	sig := twilioSign("twilio-token", "http://example.com/webhook/whatsapp", form)

	tests := []struct {
		name      string
		target    string
		signature string
		want      int
	}{
		{"valid", "/webhook/whatsapp", sig, http.StatusOK},
		{"absolute-form target", "http://example.com/webhook/whatsapp", sig, http.StatusOK},
		{"query string is signed", "/webhook/whatsapp?channel=kb", twilioSign("twilio-token", "http://example.com/webhook/whatsapp?channel=kb", form), http.StatusOK},
		{"query string changed", "/webhook/whatsapp?channel=other", twilioSign("twilio-token", "http://example.com/webhook/whatsapp?channel=kb", form), http.StatusUnauthorized},
		{"missing", "/webhook/whatsapp", "", http.StatusUnauthorized},
		{"forged", "/webhook/whatsapp", "bm90LWEtc2lnbmF0dXJl", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.target, strings.NewReader(form.Encode()))
			req.Host = "example.com"
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			if tt.signature != "" {
				req.Header.Set("X-Twilio-Signature", tt.signature)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestTwilioSignatureRequiresToken(t *testing.T) {
	app := fiber.New()
	app.Post("/webhook/whatsapp", ValidateTwilioSignature("", quietLogger()), okHandler)

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader("Body=hi"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", "anything")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func slackSign(secret, ts, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + ts + ":" + body))
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func TestSlackSignature(t *testing.T) {
	app := fiber.New()
	app.Post("/slack/events", ValidateSlackSignature("signing-secret", quietLogger()), okHandler)

	body := `{"type":"url_verification","challenge":"abc"}`
	now := strconv.FormatInt(time.Now().Unix(), 10)
	stale := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)

	tests := []struct {
		name      string
		ts        string
		signature string
		want      int
	}{
		{"valid", now, slackSign("signing-secret", now, body), http.StatusOK},
		{"wrong secret", now, slackSign("other", now, body), http.StatusUnauthorized},
		{"stale timestamp", stale, slackSign("signing-secret", stale, body), http.StatusUnauthorized},
		{"missing headers", "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			if tt.ts != "" {
				req.Header.Set("X-Slack-Request-Timestamp", tt.ts)
				req.Header.Set("X-Slack-Signature", tt.signature)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
