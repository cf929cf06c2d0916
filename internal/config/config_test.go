package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile_DefaultsApplied(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "deploynet.yaml", "network: interop\nhcloud_token: abc\n")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "interop", cfg.Network)
	assert.Equal(t, "nbg1", cfg.Location)
	assert.Equal(t, "cx22", cfg.ServerType)
	assert.Equal(t, "debian-12", cfg.Image)
	assert.Equal(t, PeerAddressStyleMultiaddr, cfg.PeerAddressStyle)
	assert.Equal(t, ".deployed-state.json", cfg.StateFile)
	assert.Equal(t, "network-config/validators.json", cfg.ValidatorsFile)
}

func TestLoadFile_EnvOverridesToken(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "deploynet.yaml", "hcloud_token: from-file\n")
	t.Setenv("HCLOUD_TOKEN", "from-env")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.HCloudToken)
}

func TestLoadFile_RejectsBadPeerAddressStyle(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "deploynet.yaml", "peer_address_style: dns\n")

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "peer_address_style")
}

func TestLoadFile_RemoteStateRequiresBucket(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "deploynet.yaml", "remote_state:\n  enabled: true\n")

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote_state")
}
