package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Ananth-NQI/kb-request-bot/internal/config"
	"github.com/Ananth-NQI/kb-request-bot/internal/logging"
)

// Version is set at build time with -ldflags.
var Version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "kb-request-bot",
	Short: "Conversational KB request intake for Slack and WhatsApp",
	Long: `kb-request-bot walks users through a knowledge-base change request in a
direct conversation, enriches it and files it on the Monday.com board.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadDotEnv()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

// Execute runs the CLI.
func Execute() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(healthCmd)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// loadDotEnv reads a .env file for local development. Cloud Run injects the
// environment directly.
func loadDotEnv() {
	if os.Getenv("INSTANCE_CONNECTION_NAME") != "" || os.Getenv("ENVIRONMENT") == "production" {
		return
	}
	if err := godotenv.Load(".env"); err != nil {
		if err := godotenv.Load("environments/.env.development"); err != nil {
			slog.Debug("no .env file found, using process environment")
		}
	}
}

// setup loads the configuration and installs the process logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(cfg.Log.Level)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
