package routes

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ananth-NQI/kb-request-bot/internal/handlers"
	"github.com/Ananth-NQI/kb-request-bot/internal/middleware"
)

// Options carries the handlers and webhook secrets the routes are built from.
// Nil handlers leave their routes unregistered.
type Options struct {
	Version string

	Health      *handlers.HealthHandler
	Slack       *handlers.SlackHandler
	WhatsApp    *handlers.WhatsAppHandler
	Submissions *handlers.SubmissionHandler
	Gatherer    prometheus.Gatherer

	SlackSigningSecret       string
	TwilioAuthToken          string
	DisableWebhookValidation bool

	Logger *slog.Logger
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, opts Options) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		endpoints := fiber.Map{
			"health": "/health",
			"live":   "/live",
		}
		if opts.Slack != nil {
			endpoints["slack_commands"] = "/slack/commands"
			endpoints["slack_events"] = "/slack/events"
			endpoints["slack_interactive"] = "/slack/interactive"
		}
		if opts.WhatsApp != nil {
			endpoints["whatsapp"] = "/webhook/whatsapp"
		}
		if opts.Submissions != nil {
			endpoints["submissions"] = "/api/submissions"
		}
		if opts.Gatherer != nil {
			endpoints["metrics"] = "/metrics"
		}
		return c.JSON(fiber.Map{
			"message":   "KB Request Bot",
			"version":   opts.Version,
			"endpoints": endpoints,
		})
	})

	if opts.Health != nil {
		app.Get("/health", opts.Health.Check)
		app.Get("/live", opts.Health.Live)
	}

	if opts.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	if opts.DisableWebhookValidation {
		logger.Warn("webhook signature validation DISABLED")
	}

	// ========== SLACK ROUTES ==========
	if opts.Slack != nil {
		slackGroup := app.Group("/slack")
		if !opts.DisableWebhookValidation {
			slackGroup.Use(middleware.ValidateSlackSignature(opts.SlackSigningSecret, logger))
		}
		slackGroup.Post("/commands", opts.Slack.HandleCommand)
		slackGroup.Post("/events", opts.Slack.HandleEvent)
		slackGroup.Post("/interactive", opts.Slack.HandleInteraction)
	}

	// ========== WEBHOOK ROUTES ==========
	if opts.WhatsApp != nil {
		webhooks := app.Group("/webhook")
		if opts.DisableWebhookValidation {
			webhooks.Post("/whatsapp", opts.WhatsApp.HandleWebhook)
		} else {
			webhooks.Post("/whatsapp", middleware.ValidateTwilioSignature(opts.TwilioAuthToken, logger), opts.WhatsApp.HandleWebhook)
		}
	}

	// ========== API ROUTES ==========
	if opts.Submissions != nil {
		api := app.Group("/api")
		api.Get("/submissions", opts.Submissions.List)
		api.Get("/submissions/stats", opts.Submissions.Stats)
		api.Get("/submissions/:ref", opts.Submissions.Get)
	}
}
