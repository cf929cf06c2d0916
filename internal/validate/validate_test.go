package validate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakePeerID(seed string) string {
	return "12D3KooW" + seed + strings.Repeat("A", 44-len(seed))
}

type entryOpts struct {
	nodeName   string
	peerID     string
	keypairID  string // "" means same as peerID
	noKeypair  bool
	listenAddr string
}

func writeEntry(t *testing.T, teamsDir, team, address string, opts entryOpts) {
	t.Helper()
	dir := filepath.Join(teamsDir, team)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	if opts.listenAddr == "" {
		opts.listenAddr = "/ip4/0.0.0.0/tcp/50001"
	}
	meta := map[string]interface{}{
		"node_name":        opts.nodeName,
		"address":          address,
		"peer_id":          opts.peerID,
		"listen_addresses": []string{opts.listenAddr},
	}
	data, err := json.Marshal(meta)
	require.NoError(t, err)
	metaName := fmt.Sprintf("validator_%s.json", address)
	require.NoError(t, os.WriteFile(filepath.Join(dir, metaName), data, 0o644))

	if opts.noKeypair {
		return
	}
	keypairID := opts.keypairID
	if keypairID == "" {
		keypairID = opts.peerID
	}
	keypair := fmt.Sprintf(`{"private_key": "secret", "peer_id": %q}`, keypairID)
	keypairName := fmt.Sprintf("id_%s.json", address)
	require.NoError(t, os.WriteFile(filepath.Join(dir, keypairName), []byte(keypair), 0o644))
}

func TestRun_MergesSortedByAddress(t *testing.T) {
	teamsDir := t.TempDir()
	writeEntry(t, teamsDir, "beta", "0x2001", entryOpts{nodeName: "beta-1", peerID: fakePeerID("b1")})
	writeEntry(t, teamsDir, "alpha", "0x1001", entryOpts{nodeName: "alpha-1", peerID: fakePeerID("a1")})
	writeEntry(t, teamsDir, "alpha", "0x1002", entryOpts{nodeName: "alpha-2", peerID: fakePeerID("a2")})

	result, err := Run(teamsDir, nil)
	require.NoError(t, err)
	require.True(t, result.OK(), "unexpected issues: %v", result.Issues)

	require.Len(t, result.Validators, 3)
	assert.Equal(t, "0x1001", result.Validators[0].Address)
	assert.Equal(t, "0x1002", result.Validators[1].Address)
	assert.Equal(t, "0x2001", result.Validators[2].Address)
	assert.Equal(t, "alpha", result.Validators[0].Team, "team inferred from directory")
}

func TestRun_DetectsCrossTeamDuplicates(t *testing.T) {
	teamsDir := t.TempDir()
	writeEntry(t, teamsDir, "alpha", "0x1001", entryOpts{nodeName: "node-1", peerID: fakePeerID("a1")})
	writeEntry(t, teamsDir, "beta", "0x2001", entryOpts{nodeName: "node-1", peerID: fakePeerID("a1")})

	result, err := Run(teamsDir, nil)
	require.NoError(t, err)

	require.False(t, result.OK())
	var msgs []string
	for _, issue := range result.Issues {
		msgs = append(msgs, issue.String())
	}
	joined := strings.Join(msgs, "\n")
	assert.Contains(t, joined, `node_name "node-1" already used by team alpha`)
	assert.Contains(t, joined, "peer_id already used by team alpha")
}

func TestRun_EnforcesTeamAddressRanges(t *testing.T) {
	teamsDir := t.TempDir()
	writeEntry(t, teamsDir, "alpha", "0x1001", entryOpts{nodeName: "alpha-1", peerID: fakePeerID("a1")})
	writeEntry(t, teamsDir, "alpha", "0x2001", entryOpts{nodeName: "alpha-2", peerID: fakePeerID("a2")})
	writeEntry(t, teamsDir, "newcomer", "0x3001", entryOpts{nodeName: "new-1", peerID: fakePeerID("n1")})

	ranges := TeamRanges{"alpha": {Start: "0x1000", End: "0x1fff"}}
	result, err := Run(teamsDir, ranges)
	require.NoError(t, err)

	require.Len(t, result.Issues, 2)
	var msgs []string
	for _, issue := range result.Issues {
		msgs = append(msgs, issue.String())
	}
	joined := strings.Join(msgs, "\n")
	assert.Contains(t, joined, "address 0x2001 is outside the team's range 0x1000..0x1fff")
	assert.Contains(t, joined, "team has no assigned address range")

	// Entries with issues still merge so one bad team does not hide
	// another team's findings.
	assert.Len(t, result.Validators, 3)
}

func TestRun_ReportsKeypairProblems(t *testing.T) {
	teamsDir := t.TempDir()
	writeEntry(t, teamsDir, "alpha", "0x1001", entryOpts{nodeName: "alpha-1", peerID: fakePeerID("a1"), noKeypair: true})
	writeEntry(t, teamsDir, "beta", "0x2001", entryOpts{nodeName: "beta-1", peerID: fakePeerID("b1"), keypairID: fakePeerID("zz")})

	result, err := Run(teamsDir, nil)
	require.NoError(t, err)

	require.Len(t, result.Issues, 2)
	var msgs []string
	for _, issue := range result.Issues {
		msgs = append(msgs, issue.String())
	}
	joined := strings.Join(msgs, "\n")
	assert.Contains(t, joined, "id_0x1001.json: keypair file is missing")
	assert.Contains(t, joined, "peer_id does not match validator metadata")
}

func TestRun_FlagsFilenameAddressMismatch(t *testing.T) {
	teamsDir := t.TempDir()
	dir := filepath.Join(teamsDir, "alpha")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	meta := fmt.Sprintf(`{"node_name": "alpha-1", "address": "0x1002", "peer_id": %q, "listen_addresses": ["/ip4/0.0.0.0/tcp/50001"]}`, fakePeerID("a1"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "validator_0x1001.json"), []byte(meta), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "id_0x1001.json"),
		[]byte(fmt.Sprintf(`{"private_key": "secret", "peer_id": %q}`, fakePeerID("a1"))), 0o644))

	result, err := Run(teamsDir, nil)
	require.NoError(t, err)

	require.False(t, result.OK())
	assert.Contains(t, result.Issues[0].String(), "declares address 0x1002 but filename says 0x1001")
}

func TestRun_RejectsMalformedPeerID(t *testing.T) {
	teamsDir := t.TempDir()
	writeEntry(t, teamsDir, "alpha", "0x1001", entryOpts{nodeName: "alpha-1", peerID: "not-a-peer-id"})

	result, err := Run(teamsDir, nil)
	require.NoError(t, err)

	require.False(t, result.OK())
	found := false
	for _, issue := range result.Issues {
		if strings.Contains(issue.Msg, "not a valid libp2p base58 identifier") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestLoadTeamRanges_MissingFileDisablesChecks(t *testing.T) {
	ranges, err := LoadTeamRanges(filepath.Join(t.TempDir(), "teams.json"))
	require.NoError(t, err)
	assert.Nil(t, ranges)
}

func TestWriteMerged_RoundTrips(t *testing.T) {
	teamsDir := t.TempDir()
	writeEntry(t, teamsDir, "alpha", "0x1001", entryOpts{nodeName: "alpha-1", peerID: fakePeerID("a1")})

	result, err := Run(teamsDir, nil)
	require.NoError(t, err)
	require.True(t, result.OK())

	out := filepath.Join(t.TempDir(), "network-config", "validators.json")
	require.NoError(t, WriteMerged(out, result.Validators))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"address": "0x1001"`)
}
