package cmd

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fedus/safe-crossing-cf/internal/infra/server"
)

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.AddCommand(showConfigCmd)
	showCmd.AddCommand(showSetupCmd)
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show information",
	Long:  `Sometimes you just need to know more`,
}

var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config",
	Long:  `Renders the config that we end up using, minus secrets`,
	Run: func(cmd *cobra.Command, args []string) {
		out, err := json.MarshalIndent(&appConfig, "", "  ")
		if err != nil {
			log.Fatal().Err(err).Msg("Error marshalling config to JSON")
		} else {
			log.Info().Msg(string(out))
		}
	},
}

var showSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Show setup status",
	Long:  `Reports whether the configured storage still needs the setup command to be run`,
	Run: func(cmd *cobra.Command, args []string) {
		storage, err := server.OpenStorage(appConfig.Storage)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not open storage")
		}
		defer closeStorage(storage)
		if err := storage.Setup.Check(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Setup needed")
		} else {
			log.Info().Msg("Setup complete")
		}
	},
}
