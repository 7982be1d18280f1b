package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates every setting of the service.
type Config struct {
	Server   ServerConfig
	Slack    SlackConfig
	Twilio   TwilioConfig
	Workflow WorkflowConfig
	OpenAI   OpenAIConfig
	Monday   MondayConfig
	Session  SessionConfig
	Retry    RetryConfig
	Database DatabaseConfig
	Log      LogConfig
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Port                     string
	Environment              string
	DisableWebhookValidation bool
}

// Production reports whether the service runs on Cloud Run.
func (s ServerConfig) Production() bool {
	return s.Environment == "production"
}

// SlackConfig holds Slack app credentials.
type SlackConfig struct {
	BotToken       string
	SigningSecret  string
	TriggerCommand string
}

// Enabled reports whether the Slack transport is configured.
func (c SlackConfig) Enabled() bool {
	return c.BotToken != ""
}

// TwilioConfig holds WhatsApp credentials.
type TwilioConfig struct {
	AccountSID     string
	AuthToken      string
	WhatsAppFrom   string
	TriggerKeyword string
}

// Enabled reports whether the WhatsApp transport is configured.
func (c TwilioConfig) Enabled() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.WhatsAppFrom != ""
}

// WorkflowConfig describes the enrichment workflow endpoint.
type WorkflowConfig struct {
	URL           string
	Token         string
	Timeout       time.Duration
	HealthTimeout time.Duration
}

// Enabled reports whether the workflow endpoint is configured.
func (c WorkflowConfig) Enabled() bool {
	return c.URL != ""
}

// OpenAIConfig describes the optional OpenAI enricher used when no workflow URL is set.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Enabled reports whether an API key is present.
func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != ""
}

// MondayConfig describes the project board.
type MondayConfig struct {
	APIURL      string
	FileURL     string
	Token       string
	BoardID     string
	Timeout     time.Duration
	FileTimeout time.Duration
}

// SessionConfig bounds conversation lifetime.
type SessionConfig struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// RetryConfig configures external call retries.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DatabaseConfig selects and configures the audit store.
type DatabaseConfig struct {
	UseMemoryStore         bool
	User                   string
	Password               string
	Name                   string
	Host                   string
	Port                   string
	InstanceConnectionName string
}

// LogConfig configures the logger.
type LogConfig struct {
	Level string
}

// Load reads all env vars and builds the config.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:                     getEnv("PORT", "8080"),
			Environment:              getEnv("ENVIRONMENT", "development"),
			DisableWebhookValidation: getBoolEnv("DISABLE_WEBHOOK_VALIDATION", false),
		},
		Slack: SlackConfig{
			BotToken:       getEnv("SLACK_BOT_TOKEN", ""),
			SigningSecret:  getEnv("SLACK_SIGNING_SECRET", ""),
			TriggerCommand: getEnv("SLACK_TRIGGER_COMMAND", "/kb-request"),
		},
		Twilio: TwilioConfig{
			AccountSID:     getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:      getEnv("TWILIO_AUTH_TOKEN", ""),
			WhatsAppFrom:   getEnv("TWILIO_WHATSAPP_FROM", ""),
			TriggerKeyword: getEnv("WHATSAPP_TRIGGER_KEYWORD", "kb-request"),
		},
		Workflow: WorkflowConfig{
			URL:   strings.TrimRight(getEnv("WORKFLOW_URL", ""), "/"),
			Token: getEnv("MODEL_HUB_TOKEN", ""),
		},
		OpenAI: OpenAIConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
		},
		Monday: MondayConfig{
			APIURL:  getEnv("MONDAY_API_URL", "https://api.monday.com/v2"),
			FileURL: getEnv("MONDAY_FILE_URL", "https://api.monday.com/v2/file"),
			Token:   getEnv("MONDAY_API_TOKEN", ""),
			BoardID: getEnv("MONDAY_BOARD_ID", ""),
		},
		Database: DatabaseConfig{
			UseMemoryStore:         getBoolEnv("USE_MEMORY_STORE", false),
			User:                   getEnv("DB_USER", "postgres"),
			Password:               getEnv("DB_PASS", ""),
			Name:                   getEnv("DB_NAME", "kbrequests"),
			Host:                   getEnv("DB_HOST", "localhost"),
			Port:                   getEnv("DB_PORT", "5432"),
			InstanceConnectionName: getEnv("INSTANCE_CONNECTION_NAME", ""),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	var err error
	durations := []struct {
		dst *time.Duration
		key string
		def time.Duration
	}{
		{&cfg.Workflow.Timeout, "WORKFLOW_TIMEOUT", 30 * time.Second},
		{&cfg.Workflow.HealthTimeout, "WORKFLOW_HEALTH_TIMEOUT", 5 * time.Second},
		{&cfg.Monday.Timeout, "MONDAY_TIMEOUT", 30 * time.Second},
		{&cfg.Monday.FileTimeout, "MONDAY_FILE_TIMEOUT", 90 * time.Second},
		{&cfg.Session.IdleTimeout, "SESSION_IDLE_TIMEOUT", 30 * time.Minute},
		{&cfg.Session.SweepInterval, "SESSION_SWEEP_INTERVAL", 5 * time.Minute},
		{&cfg.Retry.BaseDelay, "RETRY_BASE_DELAY", time.Second},
		{&cfg.Retry.MaxDelay, "RETRY_MAX_DELAY", 30 * time.Second},
	}
	for _, d := range durations {
		if *d.dst, err = getDurationEnv(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if cfg.Retry.MaxAttempts, err = getIntEnv("RETRY_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if strings.ContainsAny(c.Server.Port, " \t") {
		return fmt.Errorf("invalid PORT value: %q", c.Server.Port)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Session.IdleTimeout <= 0 || c.Session.SweepInterval <= 0 {
		return fmt.Errorf("session timeout and sweep interval must be positive")
	}
	if c.Server.Production() {
		if c.Monday.Token == "" || c.Monday.BoardID == "" {
			return fmt.Errorf("MONDAY_API_TOKEN and MONDAY_BOARD_ID must be set in production")
		}
		if !c.Slack.Enabled() && !c.Twilio.Enabled() {
			return fmt.Errorf("at least one of SLACK_BOT_TOKEN or the TWILIO_* credentials must be set in production")
		}
		if c.Slack.Enabled() && c.Slack.SigningSecret == "" && !c.Server.DisableWebhookValidation {
			return fmt.Errorf("SLACK_SIGNING_SECRET must be set in production")
		}
	}
	return nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getIntEnv(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	return n, nil
}

func getDurationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	return d, nil
}
