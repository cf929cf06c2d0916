package handlers

import (
	"context"

	"github.com/pathfinder-net/deploynet/internal/config"
	"github.com/pathfinder-net/deploynet/internal/orchestrate"
	"github.com/pathfinder-net/deploynet/internal/reconcile"
)

// Apply runs the full pipeline: infra reconciliation, then app
// deployment.
func Apply(ctx context.Context, configPath string) error {
	return runStages(ctx, configPath, func(cfg *config.Config) ([]orchestrate.Stage, error) {
		app, err := deployStage(cfg)
		if err != nil {
			return nil, err
		}
		return []orchestrate.Stage{reconcile.New(), app}, nil
	})
}
