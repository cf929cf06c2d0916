package handlers

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/pathfinder-net/deploynet/internal/compose"
	"github.com/pathfinder-net/deploynet/internal/config"
)

type stdLogger struct{}

func (stdLogger) Printf(format string, v ...interface{}) {
	log.Printf(format, v...)
}

// Compose generates a docker-compose.yml from the node metadata and
// team run configs.
func Compose(_ context.Context, configPath, output string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	nodes, err := config.LoadNodeSet(cfg)
	if err != nil {
		return err
	}

	file, err := compose.Generate(nodes, config.NewRunConfigResolver(cfg.TeamsDir), compose.Options{
		TeamsDir: cfg.TeamsDir,
		Network:  cfg.Network,
		Style:    cfg.PeerAddressStyle,
	}, stdLogger{})
	if err != nil {
		return err
	}

	data, err := file.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	fmt.Printf("Generated %s with %d services\n", output, len(file.Services))
	return nil
}
