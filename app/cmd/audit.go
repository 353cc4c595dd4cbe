package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fedus/safe-crossing-cf/internal/domain/voting"
	apmTracing "github.com/fedus/safe-crossing-cf/internal/infra/apm/tracing"
	"github.com/fedus/safe-crossing-cf/internal/infra/server"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check the vote counters",
	Long: `Scans every crossing and checks that its total matches its per-category counts, and that the
meta aggregate matches what the crossings add up to. Prints the report as JSON and exits non-zero
when anything is off.`,
	Run: func(cmd *cobra.Command, args []string) {
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
		tx := tracer.BackgroundTx("crossings-audit")
		report, err := voting.NewService(storage.Store, tracer, appConfig.Voting).Audit(tx.Context())
		tx.End()
		closeStorage(storage)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to run audit")
		}

		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			log.Fatal().Err(err).Msg("Error marshalling report to JSON")
		}
		fmt.Println(string(out))
		if !report.Ok() {
			closeLogFile()
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
}
