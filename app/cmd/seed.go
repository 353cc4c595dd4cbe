package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fedus/safe-crossing-cf/internal/domain/voting"
	apmTracing "github.com/fedus/safe-crossing-cf/internal/infra/apm/tracing"
	"github.com/fedus/safe-crossing-cf/internal/infra/seed"
	"github.com/fedus/safe-crossing-cf/internal/infra/server"
)

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Import crossings",
	Long: `Imports the crossings listed in a YAML seed file. Crossings that already exist are left alone;
new ones are made visible to every user that has already been initialized.
Needs a persistent store; the in-memory store is seeded through storage.seed_file instead.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		crossings, err := seed.Load(args[0])
		if err != nil {
			log.Fatal().Err(err).Str("file", args[0]).Msg("Could not load seed file")
		}

		if appConfig.Storage.InMemory() {
			log.Fatal().Msg("The in-memory store does not outlive this command; set storage.seed_file so the server imports it on start")
		}

		storage, err := server.OpenStorage(appConfig.Storage)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not open storage")
		}

		ctx := context.Background()
		if err := storage.Setup.Check(ctx); err != nil {
			closeStorage(storage)
			log.Fatal().Err(err).Msg("Storage is not set up, run the setup command first")
		}

		tracer := apmTracing.NewTracer()
		tx := tracer.BackgroundTx("seed")
		service := voting.NewService(storage.Store, tracer, appConfig.Voting)
		imported, err := service.ImportCrossings(tx.Context(), crossings)
		tx.End()
		closeStorage(storage)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to import crossings")
		}
		log.Info().
			Int("in_file", len(crossings)).
			Uint("imported", imported).
			Msg("Seed complete.")
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
