package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Ananth-NQI/kb-request-bot/database"
	"github.com/Ananth-NQI/kb-request-bot/internal/config"
	"github.com/Ananth-NQI/kb-request-bot/internal/metrics"
	"github.com/Ananth-NQI/kb-request-bot/internal/models"
	"github.com/Ananth-NQI/kb-request-bot/internal/retry"
	"github.com/Ananth-NQI/kb-request-bot/internal/services"
	"github.com/Ananth-NQI/kb-request-bot/internal/session"
	"github.com/Ananth-NQI/kb-request-bot/internal/storage"
)

// enricher is an enrichment backend that can report its own health.
type enricher interface {
	services.Enricher
	services.HealthChecker
}

// app holds the wired service graph.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	recorder *metrics.Recorder

	sessions   *session.Store
	store      storage.Store
	transports services.Transports
	dispatcher *services.Dispatcher
	flow       *services.FlowService
	health     *services.HealthService

	slack  *services.SlackService
	twilio *services.TwilioService
}

// newApp builds every collaborator from cfg.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.recorder = metrics.NewRecorder(a.registry)

	store, err := openStore(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	a.store = store

	if err := a.initTransports(); err != nil {
		return nil, err
	}

	catalog, err := services.DefaultCatalog()
	if err != nil {
		return nil, err
	}

	a.sessions = session.NewStore(cfg.Session.IdleTimeout,
		session.WithLogger(logger),
		session.WithObserver(a.recorder),
	)

	policy := retry.NewPolicy(retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}, logger)
	policy.Observer = a.recorder

	enrich := selectEnricher(cfg, logger)
	board := services.NewMondayClient(cfg.Monday)

	submitter := services.NewSubmissionService(services.SubmissionDeps{
		Sessions:   a.sessions,
		Catalog:    catalog,
		Enricher:   enrich,
		Board:      board,
		Transports: a.transports,
		Audit:      store,
		Policy:     policy,
		Timeouts: services.SubmissionTimeouts{
			Enrichment: cfg.Workflow.Timeout,
			Board:      cfg.Monday.Timeout,
			File:       cfg.Monday.FileTimeout,
		},
		Metrics: a.recorder,
		Logger:  logger,
	})

	a.flow = services.NewFlowService(a.sessions, catalog, a.transports, submitter, triggers(cfg), logger)
	a.dispatcher = services.NewDispatcher(logger)

	a.health = services.NewHealthService(Version, enrich, board, a.sessions)
	a.health.AddCheck("database", services.HealthCheckFunc(func(context.Context) services.ComponentHealth {
		if err := store.Ping(); err != nil {
			return services.ComponentHealth{Status: services.HealthUnhealthy, Message: err.Error()}
		}
		return services.ComponentHealth{Status: services.HealthHealthy}
	}), false)

	return a, nil
}

func (a *app) initTransports() error {
	a.transports = services.Transports{}

	if a.cfg.Slack.Enabled() {
		svc, err := services.NewSlackService(a.cfg.Slack, a.logger)
		if err != nil {
			return err
		}
		a.slack = svc
		a.transports[models.PlatformSlack] = services.Transport{
			Messenger:   svc,
			Files:       svc,
			RestartHint: a.cfg.Slack.TriggerCommand,
		}
	} else {
		a.logger.Warn("Slack credentials not found, Slack transport disabled")
	}

	if a.cfg.Twilio.Enabled() {
		svc, err := services.NewTwilioService(a.cfg.Twilio, a.logger)
		if err != nil {
			return err
		}
		a.twilio = svc
		a.transports[models.PlatformWhatsApp] = services.Transport{
			Messenger:   svc,
			Files:       svc,
			RestartHint: a.cfg.Twilio.TriggerKeyword,
		}
	} else {
		a.logger.Warn("Twilio credentials not found, WhatsApp transport disabled")
	}

	if len(a.transports) == 0 {
		a.logger.Warn("no messaging platform configured, the bot will not receive requests")
	}
	return nil
}

// selectEnricher prefers the hosted workflow, then OpenAI. With neither
// configured a disabled workflow client keeps submissions on user data.
func selectEnricher(cfg *config.Config, logger *slog.Logger) enricher {
	switch {
	case cfg.Workflow.Enabled():
		logger.Info("enrichment via workflow", "url", cfg.Workflow.URL)
		return services.NewWorkflowClient(cfg.Workflow)
	case cfg.OpenAI.Enabled():
		logger.Info("enrichment via OpenAI", "model", cfg.OpenAI.Model)
		return services.NewOpenAIEnricher(cfg.OpenAI)
	default:
		logger.Warn("no enrichment backend configured, submissions use the user's answers")
		return services.NewWorkflowClient(cfg.Workflow)
	}
}

func openStore(cfg config.DatabaseConfig, logger *slog.Logger) (storage.Store, error) {
	if cfg.UseMemoryStore {
		logger.Warn("using in-memory storage (not for production!)")
		return storage.NewMemoryStore(), nil
	}

	db, err := database.Connect(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	logger.Info("using PostgreSQL database storage")
	return storage.NewPostgresStore(db), nil
}

// triggers are the texts that start a request when typed into a conversation.
func triggers(cfg *config.Config) []string {
	var out []string
	if kw := strings.TrimSpace(cfg.Twilio.TriggerKeyword); kw != "" {
		out = append(out, kw)
	}
	if cmd := strings.TrimPrefix(strings.TrimSpace(cfg.Slack.TriggerCommand), "/"); cmd != "" {
		out = append(out, cmd)
	}
	return out
}

func (a *app) close() {
	a.sessions.Close()
}

func describePlatforms(t services.Transports) string {
	if len(t) == 0 {
		return "none"
	}
	names := make([]string, 0, len(t))
	for _, p := range []models.Platform{models.PlatformSlack, models.PlatformWhatsApp} {
		if _, ok := t[p]; ok {
			names = append(names, string(p))
		}
	}
	return strings.Join(names, ", ")
}
