package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fedus/safe-crossing-cf/internal/infra/server"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Run safe-crossing setup",
	Long:  "Runs the setup routines for the configured storage, which for SQL stores means applying pending migrations",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		storage, err := server.OpenStorage(appConfig.Storage)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not open storage")
		}
		defer closeStorage(storage)

		if err := storage.Setup.RunIfNeeded(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to set up storage")
		}
		log.Info().Msg("Setup complete.")
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func closeStorage(storage *server.Storage) {
	if err := storage.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close storage")
	}
}
