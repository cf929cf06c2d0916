package commands

import (
	"github.com/spf13/cobra"

	"github.com/pathfinder-net/deploynet/cmd/deploynet/handlers"
)

// Compose returns the command that generates a docker-compose.yml for
// running the whole network locally.
func Compose() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Generate a docker-compose.yml for local runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Compose(cmd.Context(), configPath(cmd), output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "docker-compose.yml", "Output file")

	return cmd
}
