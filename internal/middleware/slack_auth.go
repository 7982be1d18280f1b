package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/slack-go/slack"
)

// ValidateSlackSignature checks the X-Slack-Signature header of Slack
// webhooks against the app's signing secret.
func ValidateSlackSignature(signingSecret string, logger *slog.Logger) fiber.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *fiber.Ctx) error {
		if signingSecret == "" {
			logger.Error("SLACK_SIGNING_SECRET not set, rejecting webhook")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Server configuration error",
			})
		}

		header := http.Header{}
		header.Set("X-Slack-Signature", c.Get("X-Slack-Signature"))
		header.Set("X-Slack-Request-Timestamp", c.Get("X-Slack-Request-Timestamp"))

		verifier, err := slack.NewSecretsVerifier(header, signingSecret)
		if err != nil {
			logger.Warn("invalid slack signature headers", "path", c.Path(), "error", err.Error())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid signature",
			})
		}
		if _, err := verifier.Write(c.Body()); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Server configuration error",
			})
		}
		if err := verifier.Ensure(); err != nil {
			logger.Warn("invalid slack signature", "path", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid signature",
			})
		}

		return c.Next()
	}
}
