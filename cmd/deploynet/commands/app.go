package commands

import (
	"github.com/spf13/cobra"

	"github.com/pathfinder-net/deploynet/cmd/deploynet/handlers"
)

// App returns the command that (re)deploys node containers onto already
// provisioned instances. With a warm state cache it makes no cloud API
// calls at all.
func App() *cobra.Command {
	return &cobra.Command{
		Use:   "app",
		Short: "Deploy or redeploy node containers over SSH",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.App(cmd.Context(), configPath(cmd))
		},
	}
}
