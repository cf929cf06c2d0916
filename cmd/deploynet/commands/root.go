// Package commands defines the CLI command structure and flag bindings.
//
// Command execution is delegated to handler functions in the handlers
// package; this package only parses arguments.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Root returns the root command for the deploynet CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploynet",
		Short: "Deploy a multi-team validator testnet on Hetzner Cloud",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			// A local .env is a convenience for tokens; absence is fine.
			_ = godotenv.Load()
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "deploynet.yaml", "Path to configuration file")

	cmd.AddCommand(Infra())
	cmd.AddCommand(App())
	cmd.AddCommand(Apply())
	cmd.AddCommand(Compose())
	cmd.AddCommand(SyncState())
	cmd.AddCommand(Validate())
	cmd.AddCommand(Version())

	return cmd
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
