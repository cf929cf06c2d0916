package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathfinder-net/deploynet/internal/cloud"
	"github.com/pathfinder-net/deploynet/internal/config"
	"github.com/pathfinder-net/deploynet/internal/orchestrate"
)

func TestLoadConfig_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "interop", cfg.Network)
}

func TestLoadConfig_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deploynet.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network: devnet\n"), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "devnet", cfg.Network)
}

func TestRebuildNodes_MatchesMetadata(t *testing.T) {
	nodes := &config.NodeSet{Validators: []config.NodeSpec{{
		Team: "alpha", NodeName: "v1", Address: "0x1001", PeerID: "Peer1",
		ListenAddresses: []string{"/ip4/0.0.0.0/tcp/50001"},
		Kind:            config.KindValidator,
	}}}
	instances := []cloud.Instance{
		{Name: "v1", PublicIP: "203.0.113.5"},
		{Name: "orphan", PublicIP: "203.0.113.6"},
	}

	rebuilt := rebuildNodes(nodes, instances)

	require.Len(t, rebuilt, 2)
	assert.Equal(t, "alpha", rebuilt["v1"].Team)
	assert.Equal(t, "0x1001", rebuilt["v1"].Address)
	assert.Equal(t, "203.0.113.5", rebuilt["v1"].IP)
	assert.Equal(t, "203.0.113.6", rebuilt["orphan"].IP)
	assert.Empty(t, rebuilt["orphan"].Team, "unknown instances keep only their IP")
}

func TestRenderResults_ListsOutcomes(t *testing.T) {
	results := orchestrate.NewResults()
	results.Add(orchestrate.NodeResult{Node: "v1", Team: "alpha", Kind: config.KindValidator, Stage: "infra"})
	results.Add(orchestrate.NodeResult{Node: "v2", Team: "beta", Kind: config.KindValidator, Stage: "infra", Err: errors.New("quota exceeded")})

	out := renderResults(results)

	assert.Contains(t, out, "v1")
	assert.Contains(t, out, "FAILED: quota exceeded")
	assert.Contains(t, out, "1 of 2 node operations failed")
}

func TestRenderResults_EmptyIsSilent(t *testing.T) {
	assert.Empty(t, renderResults(orchestrate.NewResults()))
}

func TestRunStages_RequiresToken(t *testing.T) {
	t.Setenv("HCLOUD_TOKEN", "")

	err := Infra(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hcloud_token is required")
}

func TestCompose_WritesComposeFile(t *testing.T) {
	dir := t.TempDir()

	validators := []map[string]interface{}{{
		"team": "alpha", "node_name": "v1", "address": "0x1001", "peer_id": "Peer1",
		"listen_addresses": []string{"/ip4/0.0.0.0/tcp/50001"},
	}}
	data, err := json.Marshal(validators)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "network-config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "network-config", "validators.json"), data, 0o644))

	teamsDir := filepath.Join(dir, "validators")
	require.NoError(t, os.MkdirAll(filepath.Join(teamsDir, "alpha"), 0o755))
	runYAML := "image: node:latest\ndata_dir: /data\ncmd: [start]\n"
	require.NoError(t, os.WriteFile(filepath.Join(teamsDir, "alpha", "run.yaml"), []byte(runYAML), 0o644))

	cfgYAML := "validators_file: " + filepath.Join(dir, "network-config", "validators.json") + "\n" +
		"boot_nodes_file: " + filepath.Join(dir, "network-config", "boot_nodes.json") + "\n" +
		"teams_dir: " + teamsDir + "\n"
	cfgPath := filepath.Join(dir, "deploynet.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o644))

	output := filepath.Join(dir, "docker-compose.yml")
	require.NoError(t, Compose(context.Background(), cfgPath, output))

	content, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(content), "v1:")
	assert.Contains(t, string(content), "image: node:latest")
}

func TestVersion_PrintsBuildInfo(t *testing.T) {
	var buf bytes.Buffer
	Version(&buf)
	assert.Contains(t, buf.String(), "deploynet dev")
}
