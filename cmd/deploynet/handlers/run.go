// Package handlers implements the CLI command logic.
package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/pathfinder-net/deploynet/internal/cloud"
	"github.com/pathfinder-net/deploynet/internal/config"
	"github.com/pathfinder-net/deploynet/internal/orchestrate"
	"github.com/pathfinder-net/deploynet/internal/state"
)

// loadConfig reads the configuration file, falling back to defaults
// when the file does not exist so commands work in a bare checkout.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.LoadFile(path)
}

func newMirror(cfg *config.Config) (*state.Mirror, error) {
	if !cfg.RemoteState.Enabled {
		return nil, nil
	}
	return state.NewMirror(state.MirrorOptions{
		Endpoint:  cfg.RemoteState.Endpoint,
		Region:    cfg.RemoteState.Region,
		Bucket:    cfg.RemoteState.Bucket,
		Key:       cfg.RemoteState.Key,
		AccessKey: cfg.RemoteState.AccessKey,
		SecretKey: cfg.RemoteState.SecretKey,
	})
}

// runStages executes a stage pipeline against the live cloud, pulling
// and pushing the shared state mirror around it. Mirror failures are
// warnings; the local state file stays authoritative.
func runStages(ctx context.Context, configPath string, build func(cfg *config.Config) ([]orchestrate.Stage, error)) error {
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
	stages, err := build(cfg)
	if err != nil {
		return err
	}

	mirror, err := newMirror(cfg)
	if err != nil {
		return err
	}
	if mirror != nil {
		if pulled, err := mirror.Pull(ctx, cfg.StateFile); err != nil {
			fmt.Fprintf(os.Stderr, "warning: state pull failed: %v\n", err)
		} else if pulled {
			fmt.Println("Pulled shared state from remote bucket")
		}
	}

	store, err := state.Open(cfg.StateFile, cfg.Network, cfg.Location)
	if err != nil {
		return err
	}

	octx := orchestrate.NewContext(ctx, cfg, nodes, store, cloud.NewClient(cfg.HCloudToken, cfg.Location))
	runErr := orchestrate.RunStages(octx, stages)

	if mirror != nil {
		if err := mirror.Push(ctx, cfg.StateFile); err != nil {
			fmt.Fprintf(os.Stderr, "warning: state push failed: %v\n", err)
		}
	}

	fmt.Print(renderResults(octx.Results))
	if runErr != nil {
		return runErr
	}
	if failed := octx.Results.FailureCount(); failed > 0 {
		return fmt.Errorf("%d of %d node operations failed", failed, len(octx.Results.List()))
	}
	return nil
}
