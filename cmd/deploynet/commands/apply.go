package commands

import (
	"github.com/spf13/cobra"

	"github.com/pathfinder-net/deploynet/cmd/deploynet/handlers"
)

// Apply returns the command that runs the full pipeline: infrastructure
// reconciliation followed by application deployment.
func Apply() *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Provision infrastructure and deploy containers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Apply(cmd.Context(), configPath(cmd))
		},
	}
}
