package commands

import (
	"github.com/spf13/cobra"

	"github.com/pathfinder-net/deploynet/cmd/deploynet/handlers"
)

// Infra returns the command that reconciles cloud resources against the
// node metadata: instances, data disks, public IPs and the shared
// peer firewall.
func Infra() *cobra.Command {
	return &cobra.Command{
		Use:   "infra",
		Short: "Provision instances, disks and the peer firewall",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Infra(cmd.Context(), configPath(cmd))
		},
	}
}
