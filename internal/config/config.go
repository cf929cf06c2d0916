// Package config loads and validates the three inputs of a deployment
// run: the tool configuration, the canonical node metadata (validators
// and boot nodes), and the per-team runtime configs.
package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Peer address styles supported by the deployer. The exact bootstrap
// address format expected by a node binary varies, so it is a policy
// knob rather than a constant.
const (
	PeerAddressStyleMultiaddr = "multiaddr" // /ip4/<ip>/tcp/<port>/p2p/<peer_id>
	PeerAddressStyleIP        = "ip"        // <ip>:<port>
)

// Config holds the tool configuration for a deployment run.
type Config struct {
	// Network is the testnet name, used for firewall naming and as the
	// {{network}} template variable.
	Network string `mapstructure:"network" yaml:"network"`

	// HCloudToken authenticates against the Hetzner Cloud API. Usually
	// supplied via the HCLOUD_TOKEN environment variable.
	HCloudToken string `mapstructure:"hcloud_token" yaml:"hcloud_token"`

	Location   string `mapstructure:"location" yaml:"location"`
	ServerType string `mapstructure:"server_type" yaml:"server_type"`
	Image      string `mapstructure:"image" yaml:"image"`

	SSHUser    string `mapstructure:"ssh_user" yaml:"ssh_user"`
	SSHKeyPath string `mapstructure:"ssh_key_path" yaml:"ssh_key_path"`
	SSHKeyName string `mapstructure:"ssh_key_name" yaml:"ssh_key_name"`

	ValidatorsFile string `mapstructure:"validators_file" yaml:"validators_file"`
	BootNodesFile  string `mapstructure:"boot_nodes_file" yaml:"boot_nodes_file"`
	TeamsFile      string `mapstructure:"teams_file" yaml:"teams_file"`
	TeamsDir       string `mapstructure:"teams_dir" yaml:"teams_dir"`
	StateFile      string `mapstructure:"state_file" yaml:"state_file"`

	PeerAddressStyle string `mapstructure:"peer_address_style" yaml:"peer_address_style"`

	RemoteState RemoteStateConfig `mapstructure:"remote_state" yaml:"remote_state"`
}

// RemoteStateConfig configures the optional S3-compatible mirror of the
// deployed-state file, so multiple teams can share one cache.
type RemoteStateConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	Region    string `mapstructure:"region" yaml:"region"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Key       string `mapstructure:"key" yaml:"key"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
}

// LoadFile reads and parses the tool configuration from a YAML file,
// applies environment overrides and defaults, and validates the result.
func LoadFile(path string) (*Config, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var rawConfig map[string]interface{}
	if err := yaml.Unmarshal(data, &rawConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	var cfg Config
	if err := mapstructure.Decode(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns a configuration with defaults and environment
// overrides applied, for commands that can run without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyEnv() {
	if token := os.Getenv("HCLOUD_TOKEN"); token != "" {
		c.HCloudToken = token
	}
	if key := os.Getenv("DEPLOYNET_STATE_ACCESS_KEY"); key != "" {
		c.RemoteState.AccessKey = key
	}
	if key := os.Getenv("DEPLOYNET_STATE_SECRET_KEY"); key != "" {
		c.RemoteState.SecretKey = key
	}
}

func (c *Config) applyDefaults() {
	if c.Network == "" {
		c.Network = "interop"
	}
	if c.Location == "" {
		c.Location = "nbg1"
	}
	if c.ServerType == "" {
		c.ServerType = "cx22"
	}
	if c.Image == "" {
		c.Image = "debian-12"
	}
	if c.SSHUser == "" {
		c.SSHUser = "root"
	}
	if c.SSHKeyPath == "" {
		c.SSHKeyPath = os.ExpandEnv("$HOME/.ssh/interop.pem")
	}
	if c.ValidatorsFile == "" {
		c.ValidatorsFile = "network-config/validators.json"
	}
	if c.BootNodesFile == "" {
		c.BootNodesFile = "network-config/boot_nodes.json"
	}
	if c.TeamsFile == "" {
		c.TeamsFile = "network-config/teams.json"
	}
	if c.TeamsDir == "" {
		c.TeamsDir = "validators"
	}
	if c.StateFile == "" {
		c.StateFile = ".deployed-state.json"
	}
	if c.PeerAddressStyle == "" {
		c.PeerAddressStyle = PeerAddressStyleMultiaddr
	}
	if c.RemoteState.Key == "" {
		c.RemoteState.Key = "deployed-state.json"
	}
}

// Validate checks cross-field constraints that cannot be defaulted.
func (c *Config) Validate() error {
	if c.PeerAddressStyle != PeerAddressStyleMultiaddr && c.PeerAddressStyle != PeerAddressStyleIP {
		return fmt.Errorf("peer_address_style must be %q or %q, got %q",
			PeerAddressStyleMultiaddr, PeerAddressStyleIP, c.PeerAddressStyle)
	}
	if c.RemoteState.Enabled {
		if c.RemoteState.Bucket == "" || c.RemoteState.Endpoint == "" || c.RemoteState.Region == "" {
			return fmt.Errorf("remote_state requires endpoint, region and bucket")
		}
	}
	return nil
}
