package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	"github.com/Ananth-NQI/kb-request-bot/internal/handlers"
	"github.com/Ananth-NQI/kb-request-bot/internal/jobs"
	"github.com/Ananth-NQI/kb-request-bot/internal/routes"
)

const shutdownTimeout = 20 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}

		a, err := newApp(cfg, log)
		if err != nil {
			return err
		}
		defer a.close()

		sweeper := jobs.NewSessionSweepJob(a.sessions, cfg.Session.SweepInterval, log)
		sweeper.Start()
		defer sweeper.Stop()

		// Create fiber app
		app := fiber.New(fiber.Config{
			AppName:               "KB Request Bot v" + Version,
			DisableStartupMessage: true,
			// Handlers queue work that runs after the request returns.
			Immutable:             true,
			ErrorHandler: func(c *fiber.Ctx, err error) error {
				code := fiber.StatusInternalServerError
				var e *fiber.Error
				if errors.As(err, &e) {
					code = e.Code
				}
				return c.Status(code).JSON(fiber.Map{
					"error": err.Error(),
				})
			},
		})

		// Middleware
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
		app.Use(recover.New())
		app.Use(cors.New(cors.Config{
			AllowOrigins: "*",
			AllowHeaders: "Origin, Content-Type, Accept, Authorization",
			AllowMethods: "GET, POST, OPTIONS",
		}))

		opts := routes.Options{
			Version:                  Version,
			Health:                   handlers.NewHealthHandler(a.health),
			Submissions:              handlers.NewSubmissionHandler(a.store, log),
			Gatherer:                 a.registry,
			SlackSigningSecret:       cfg.Slack.SigningSecret,
			TwilioAuthToken:          cfg.Twilio.AuthToken,
			DisableWebhookValidation: cfg.Server.DisableWebhookValidation,
			Logger:                   log,
		}
		if a.slack != nil {
			opts.Slack = handlers.NewSlackHandler(a.flow, a.dispatcher, cfg.Slack.TriggerCommand, a.recorder, log)
		}
		if a.twilio != nil {
			opts.WhatsApp = handlers.NewWhatsAppHandler(a.flow, a.dispatcher, a.recorder, log)
		}
		routes.SetupRoutes(app, opts)

		// Handle graceful shutdown
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			errCh <- app.Listen(":" + cfg.Server.Port)
		}()

		log.Info("KB Request Bot starting",
			"port", cfg.Server.Port,
			"environment", cfg.Server.Environment,
			"platforms", describePlatforms(a.transports),
			"memory_store", cfg.Database.UseMemoryStore,
			"session_timeout", cfg.Session.IdleTimeout.String(),
		)

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		log.Info("gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err.Error())
		}
		if err := a.dispatcher.Close(shutdownCtx); err != nil {
			log.Warn("pending conversation work abandoned", "error", err.Error())
		}
		log.Info("shutdown complete")
		return nil
	},
}
