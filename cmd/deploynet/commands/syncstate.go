package commands

import (
	"github.com/spf13/cobra"

	"github.com/pathfinder-net/deploynet/cmd/deploynet/handlers"
)

// SyncState returns the command that rebuilds the deployed-state cache
// from live cloud resources, for when the local file is lost or stale.
func SyncState() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-state",
		Short: "Rebuild the deployed-state cache from live cloud resources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.SyncState(cmd.Context(), configPath(cmd))
		},
	}
}
