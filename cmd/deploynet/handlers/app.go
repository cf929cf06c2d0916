package handlers

import (
	"context"

	"github.com/pathfinder-net/deploynet/internal/config"
	"github.com/pathfinder-net/deploynet/internal/deploy"
	"github.com/pathfinder-net/deploynet/internal/orchestrate"
	"github.com/pathfinder-net/deploynet/internal/ssh"
)

func deployStage(cfg *config.Config) (orchestrate.Stage, error) {
	dialer, err := ssh.NewDialer(cfg.SSHUser, cfg.SSHKeyPath)
	if err != nil {
		return nil, err
	}
	return deploy.New(dialer), nil
}

// App runs the application deployment stage.
func App(ctx context.Context, configPath string) error {
	return runStages(ctx, configPath, func(cfg *config.Config) ([]orchestrate.Stage, error) {
		stage, err := deployStage(cfg)
		if err != nil {
			return nil, err
		}
		return []orchestrate.Stage{stage}, nil
	})
}
