package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathfinder-net/deploynet/internal/cloud"
	"github.com/pathfinder-net/deploynet/internal/config"
	"github.com/pathfinder-net/deploynet/internal/orchestrate"
	"github.com/pathfinder-net/deploynet/internal/state"
)

func validator(name, team, address, peerID string) config.NodeSpec {
	return config.NodeSpec{
		Team: team, NodeName: name, Address: address, PeerID: peerID,
		ListenAddresses: []string{"/ip4/0.0.0.0/tcp/50001"},
		Kind:            config.KindValidator,
	}
}

func bootNode(name, team, address, peerID string) config.NodeSpec {
	spec := validator(name, team, address, peerID)
	spec.Kind = config.KindBoot
	return spec
}

func writeRunConfig(t *testing.T, teamsDir, team string) {
	t.Helper()
	dir := filepath.Join(teamsDir, team)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := "image: node:latest\ndata_dir: /data\ncmd: [run]\ndb_disk_gb: 10\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.yaml"), []byte(content), 0o644))
}

func testContext(t *testing.T, fake *cloud.Fake, nodes *config.NodeSet) *orchestrate.Context {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.TeamsDir = filepath.Join(dir, "validators")
	for _, spec := range nodes.All() {
		writeRunConfig(t, cfg.TeamsDir, spec.Team)
	}

	store, err := state.Open(filepath.Join(dir, "state.json"), cfg.Network, cfg.Location)
	require.NoError(t, err)

	return orchestrate.NewContext(context.Background(), cfg, nodes, store, fake)
}

func fastReconciler() *Reconciler {
	return NewWithOptions(Options{IPMaxAttempts: 3, IPInitialDelay: time.Millisecond})
}

func TestRun_ProvisionsAllNodes(t *testing.T) {
	fake := cloud.NewFake()
	nodes := &config.NodeSet{
		BootNodes:  []config.NodeSpec{bootNode("boot-1", "core", "0xB1", "PeerB")},
		Validators: []config.NodeSpec{validator("v1", "alpha", "0x1001", "Peer1"), validator("v2", "beta", "0x1002", "Peer2")},
	}
	ctx := testContext(t, fake, nodes)

	require.NoError(t, fastReconciler().Run(ctx))

	assert.Equal(t, 0, ctx.Results.FailureCount())
	assert.Equal(t, 3, fake.CreateInstanceCalls)
	assert.Equal(t, 2, fake.CreateDiskCalls, "disks for validators only")

	for _, name := range []string{"boot-1", "v1", "v2"} {
		entry, ok := ctx.Store.Get(name)
		require.True(t, ok, "state entry for %s", name)
		assert.NotEmpty(t, entry.IP)
		assert.NotEmpty(t, entry.Team)
		assert.NotEmpty(t, entry.Address)
		assert.NotEmpty(t, entry.PeerID)
	}

	firewall, err := fake.GetFirewall(context.Background(), "interop-p2p")
	require.NoError(t, err)
	require.NotNil(t, firewall)
	require.Len(t, firewall.Rules, 2)
	assert.Equal(t, "22", firewall.Rules[0].Port, "ssh stays reachable for deploys")
	assert.Equal(t, "50001", firewall.Rules[1].Port)
	assert.Equal(t, "tcp", firewall.Rules[1].Protocol)
	assert.Len(t, firewall.Rules[1].SourceCIDRs, 3, "p2p sources are the group members, not 0.0.0.0/0")
}

func TestRun_IsIdempotent(t *testing.T) {
	fake := cloud.NewFake()
	nodes := &config.NodeSet{
		Validators: []config.NodeSpec{validator("v1", "alpha", "0x1001", "Peer1"), validator("v2", "beta", "0x1002", "Peer2")},
	}
	ctx := testContext(t, fake, nodes)

	require.NoError(t, fastReconciler().Run(ctx))
	firstSnapshot := ctx.Store.Snapshot()
	createInstances := fake.CreateInstanceCalls
	createDisks := fake.CreateDiskCalls
	firewallCalls := fake.EnsureFirewallCalls

	// Second run against unchanged cloud state.
	ctx.Results = orchestrate.NewResults()
	require.NoError(t, fastReconciler().Run(ctx))

	assert.Equal(t, createInstances, fake.CreateInstanceCalls, "no duplicate instances")
	assert.Equal(t, createDisks, fake.CreateDiskCalls, "no duplicate disks")
	assert.Equal(t, firewallCalls, fake.EnsureFirewallCalls, "firewall untouched when rules unchanged")
	assert.Equal(t, 0, ctx.Results.FailureCount())

	secondSnapshot := ctx.Store.Snapshot()
	assert.Equal(t, firstSnapshot.Validators, secondSnapshot.Validators, "state content stable")
}

func TestRun_IPDelayedThenResolved(t *testing.T) {
	fake := cloud.NewFake()
	fake.IPAssignAfter["v1"] = 2
	nodes := &config.NodeSet{Validators: []config.NodeSpec{validator("v1", "alpha", "0x1001", "Peer1")}}
	ctx := testContext(t, fake, nodes)

	require.NoError(t, fastReconciler().Run(ctx))

	assert.Equal(t, 0, ctx.Results.FailureCount())
	ip, ok := ctx.Store.IP("v1")
	require.True(t, ok)
	assert.NotEmpty(t, ip)
}

func TestRun_IPTimeoutIsNodeScoped(t *testing.T) {
	fake := cloud.NewFake()
	fake.IPAssignAfter["v1"] = 100 // never resolves within 3 attempts
	nodes := &config.NodeSet{
		Validators: []config.NodeSpec{validator("v1", "alpha", "0x1001", "Peer1"), validator("v2", "beta", "0x1002", "Peer2")},
	}
	ctx := testContext(t, fake, nodes)

	require.NoError(t, fastReconciler().Run(ctx))

	require.Equal(t, 1, ctx.Results.FailureCount())
	for _, result := range ctx.Results.List() {
		if result.Node != "v1" {
			assert.NoError(t, result.Err)
			continue
		}
		var timeout *ProvisioningTimeoutError
		require.ErrorAs(t, result.Err, &timeout)
		assert.Equal(t, "v1", timeout.Node)
	}

	// v1 has no state entry; v2 does.
	_, ok := ctx.Store.IP("v1")
	assert.False(t, ok)
	_, ok = ctx.Store.IP("v2")
	assert.True(t, ok)
}

func TestRun_CreateFailureDoesNotAbortSiblings(t *testing.T) {
	fake := cloud.NewFake()
	fake.FailCreateInstance["v2"] = errors.New("quota exceeded")
	nodes := &config.NodeSet{
		Validators: []config.NodeSpec{
			validator("v1", "alpha", "0x1001", "Peer1"),
			validator("v2", "beta", "0x1002", "Peer2"),
			validator("v3", "gamma", "0x1003", "Peer3"),
		},
	}
	ctx := testContext(t, fake, nodes)

	require.NoError(t, fastReconciler().Run(ctx))

	assert.Equal(t, 1, ctx.Results.FailureCount())
	_, ok := ctx.Store.IP("v1")
	assert.True(t, ok)
	_, ok = ctx.Store.IP("v3")
	assert.True(t, ok)
}

func TestRun_ExistingInstanceReused(t *testing.T) {
	fake := cloud.NewFake()
	fake.SeedInstance("v1", "198.51.100.9", map[string]string{"network": "interop"})
	nodes := &config.NodeSet{Validators: []config.NodeSpec{validator("v1", "alpha", "0x1001", "Peer1")}}
	ctx := testContext(t, fake, nodes)

	require.NoError(t, fastReconciler().Run(ctx))

	assert.Equal(t, 0, fake.CreateInstanceCalls)
	ip, ok := ctx.Store.IP("v1")
	require.True(t, ok)
	assert.Equal(t, "198.51.100.9", ip)
}
