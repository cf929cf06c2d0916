package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/pathfinder-net/deploynet/internal/cloud"
	"github.com/pathfinder-net/deploynet/internal/config"
	"github.com/pathfinder-net/deploynet/internal/state"
)

// SyncState rebuilds the deployed-state cache from live cloud
// resources, replacing the local file's node entries wholesale.
func SyncState(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.HCloudToken == "" {
		return fmt.Errorf("hcloud_token is required (in config or env HCLOUD_TOKEN)")
	}
	nodes, err := config.LoadNodeSet(cfg)
	if err != nil {
		return err
	}

	provider := cloud.NewClient(cfg.HCloudToken, cfg.Location)
	instances, err := provider.ListInstances(ctx, "network="+cfg.Network)
	if err != nil {
		return err
	}

	store, err := state.Open(cfg.StateFile, cfg.Network, cfg.Location)
	if err != nil {
		return err
	}
	if err := store.Replace(rebuildNodes(nodes, instances)); err != nil {
		return err
	}

	mirror, err := newMirror(cfg)
	if err != nil {
		return err
	}
	if mirror != nil {
		if err := mirror.Push(ctx, cfg.StateFile); err != nil {
			fmt.Fprintf(os.Stderr, "warning: state push failed: %v\n", err)
		}
	}

	fmt.Printf("Synced %d instances into %s\n", len(instances), cfg.StateFile)
	return nil
}

// rebuildNodes derives state entries from live instances. Identity
// fields come from the node metadata when the instance matches a
// declared node; unmatched instances keep only their IP.
func rebuildNodes(nodes *config.NodeSet, instances []cloud.Instance) map[string]state.Node {
	rebuilt := make(map[string]state.Node, len(instances))
	for _, instance := range instances {
		entry := state.Node{IP: instance.PublicIP}
		if spec, ok := nodes.ByName(instance.Name); ok {
			entry.Team = spec.Team
			entry.Address = spec.Address
			entry.PeerID = spec.PeerID
		}
		rebuilt[instance.Name] = entry
	}
	return rebuilt
}
