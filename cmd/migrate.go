package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ananth-NQI/kb-request-bot/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the submission audit tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		if cfg.Database.UseMemoryStore {
			return fmt.Errorf("USE_MEMORY_STORE is set; nothing to migrate")
		}

		db, err := database.Connect(cfg.Database, log)
		if err != nil {
			return err
		}
		if err := database.Migrate(db); err != nil {
			return err
		}
		log.Info("database migrations completed")
		return nil
	},
}
