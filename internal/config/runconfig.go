package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// DefaultDBDiskGB is the persistent disk size used when a validator's
// run config does not declare one.
const DefaultDBDiskGB = 50

// DefaultIdentityPath is the in-container path nodes read their
// identity key from unless the run config overrides it.
const DefaultIdentityPath = "/identity.json"

// PortSpec is one port publication declared by a run config.
type PortSpec struct {
	Host      int    `mapstructure:"host" yaml:"host"`
	Container int    `mapstructure:"container" yaml:"container"`
	Protocol  string `mapstructure:"protocol" yaml:"protocol"`
}

// RunConfig describes how to run one team's node containers for a given
// node kind.
type RunConfig struct {
	Image           string            `mapstructure:"image" yaml:"image"`
	DataDir         string            `mapstructure:"data_dir" yaml:"data_dir"`
	Cmd             []string          `mapstructure:"cmd" yaml:"cmd"`
	DBDiskGB        int               `mapstructure:"db_disk_gb" yaml:"db_disk_gb"`
	P2PIdentityPath string            `mapstructure:"p2p_identity_path" yaml:"p2p_identity_path"`
	Env             map[string]string `mapstructure:"env" yaml:"env"`
	Ports           []PortSpec        `mapstructure:"ports" yaml:"ports"`
}

// MissingKeyError reports a run config lacking a required key. It is
// fatal for the affected node only.
type MissingKeyError struct {
	Path string
	Key  string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("run config %s is missing required key %q", e.Path, e.Key)
}

// RunConfigNotFoundError reports that no run config file exists for a
// team and kind.
type RunConfigNotFoundError struct {
	Team string
	Kind Kind
}

func (e *RunConfigNotFoundError) Error() string {
	return fmt.Sprintf("no %s run config found for team %q", e.Kind, e.Team)
}

// runConfigPaths returns the candidate file paths for a team and kind,
// most specific first.
func runConfigPaths(teamsDir, team string, kind Kind) []string {
	if kind == KindBoot {
		return []string{
			filepath.Join(teamsDir, team, "run_boot.yaml"),
			filepath.Join("boot_nodes", team, "run.yaml"),
		}
	}
	return []string{
		filepath.Join(teamsDir, team, "run_validator.yaml"),
		filepath.Join(teamsDir, team, "run.yaml"),
	}
}

// LoadRunConfig resolves and loads the run config for a team and kind.
// Required keys (image, data_dir, cmd) are checked at load time so a
// broken config fails before any cloud call is made for that node.
func LoadRunConfig(teamsDir, team string, kind Kind) (*RunConfig, error) {
	var path string
	for _, candidate := range runConfigPaths(teamsDir, team, kind) {
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
			break
		}
	}
	if path == "" {
		return nil, &RunConfigNotFoundError{Team: team, Kind: kind}
	}

	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run config %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}

	for _, key := range []string{"image", "data_dir", "cmd"} {
		if _, ok := raw[key]; !ok {
			return nil, &MissingKeyError{Path: path, Key: key}
		}
	}

	var cfg RunConfig
	if err := mapstructure.Decode(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode run config %s: %w", path, err)
	}

	// An explicit db_disk_gb of 0 opts out of persistent storage; the
	// default applies only when the key is absent.
	if _, ok := raw["db_disk_gb"]; !ok {
		cfg.DBDiskGB = DefaultDBDiskGB
	}
	if cfg.P2PIdentityPath == "" {
		cfg.P2PIdentityPath = DefaultIdentityPath
	}
	for i := range cfg.Ports {
		if cfg.Ports[i].Protocol == "" {
			cfg.Ports[i].Protocol = "tcp"
		}
	}
	return &cfg, nil
}
