package cmd

import (
	"example.com/flightguild/bot/internal/database"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the postgres ban table",
	Long:  `Run the database migrations needed by the postgres ban store backend`,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.AutoMigrate(db); err != nil {
		return err
	}

	log.Info().Msg("Migrations completed")
	return nil
}
