package handlers

import (
	"context"

	"github.com/pathfinder-net/deploynet/internal/config"
	"github.com/pathfinder-net/deploynet/internal/orchestrate"
	"github.com/pathfinder-net/deploynet/internal/reconcile"
)

// Infra runs the infrastructure reconciliation stage.
func Infra(ctx context.Context, configPath string) error {
	return runStages(ctx, configPath, func(_ *config.Config) ([]orchestrate.Stage, error) {
		return []orchestrate.Stage{reconcile.New()}, nil
	})
}
