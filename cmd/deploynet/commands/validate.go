package commands

import (
	"github.com/spf13/cobra"

	"github.com/pathfinder-net/deploynet/cmd/deploynet/handlers"
)

// Validate returns the command that checks per-team validator
// submissions and optionally writes the merged canonical list.
func Validate() *cobra.Command {
	var writePath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate team validator submissions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Validate(cmd.Context(), configPath(cmd), writePath)
		},
	}

	cmd.Flags().StringVarP(&writePath, "write", "w", "", "Write the merged validator list to this file")

	return cmd
}
