// Package validate checks the per-team validator submissions and merges
// them into the canonical network list.
//
// Teams contribute validators/<team>/validator_0x<address>.json files
// plus a matching id_0x<address>.json keypair. Validation is exhaustive:
// every problem across every team is collected and reported, never just
// the first one.
package validate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pathfinder-net/deploynet/internal/config"
)

var (
	metaFilePattern = regexp.MustCompile(`^validator_(0x[0-9a-fA-F]+)\.json$`)
	peerIDPattern   = regexp.MustCompile(`^12D3KooW[1-9A-HJ-NP-Za-km-z]{40,}$`)
)

// Range is a team's assigned validator address interval, inclusive on
// both ends.
type Range struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// TeamRanges maps team names to their assigned address ranges.
type TeamRanges map[string]Range

// LoadTeamRanges reads the address assignment file. A missing file
// disables range checks and is not an error.
func LoadTeamRanges(path string) (TeamRanges, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read team ranges %s: %w", path, err)
	}

	var ranges TeamRanges
	if err := json.Unmarshal(data, &ranges); err != nil {
		return nil, fmt.Errorf("failed to parse team ranges %s: %w", path, err)
	}
	return ranges, nil
}

func (r Range) contains(address string) bool {
	value, err := parseAddress(address)
	if err != nil {
		return false
	}
	start, err := parseAddress(r.Start)
	if err != nil {
		return false
	}
	end, err := parseAddress(r.End)
	if err != nil {
		return false
	}
	return value >= start && value <= end
}

func parseAddress(address string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(address, "0x"), 16, 64)
}

// Issue is one validation finding, attributed to the team and file that
// caused it.
type Issue struct {
	Team string
	File string
	Msg  string
}

func (i Issue) String() string {
	if i.File == "" {
		return fmt.Sprintf("%s: %s", i.Team, i.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", i.Team, i.File, i.Msg)
}

// Result is the merged validator list plus every finding.
type Result struct {
	Validators []config.NodeSpec
	Issues     []Issue
}

// OK reports whether validation found no issues.
func (r *Result) OK() bool { return len(r.Issues) == 0 }

type keypairFile struct {
	PrivateKey string `json:"private_key"`
	PeerID     string `json:"peer_id"`
}

// Run validates all team submissions under teamsDir and merges them,
// sorted by numeric address. ranges may be nil, which skips address
// range enforcement.
func Run(teamsDir string, ranges TeamRanges) (*Result, error) {
	entries, err := os.ReadDir(teamsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read teams dir %s: %w", teamsDir, err)
	}

	result := &Result{}
	seenName := make(map[string]string)   // node_name -> team
	seenAddr := make(map[string]string)   // address -> team
	seenPeerID := make(map[string]string) // peer_id -> team

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		team := entry.Name()
		teamDir := filepath.Join(teamsDir, team)

		files, err := os.ReadDir(teamDir)
		if err != nil {
			return nil, fmt.Errorf("failed to read team dir %s: %w", teamDir, err)
		}

		for _, file := range files {
			match := metaFilePattern.FindStringSubmatch(file.Name())
			if match == nil {
				continue
			}
			spec, issues := loadEntry(teamDir, team, file.Name(), match[1])
			result.Issues = append(result.Issues, issues...)
			if spec == nil {
				continue
			}

			if owner, dup := seenName[spec.NodeName]; dup {
				result.Issues = append(result.Issues, Issue{Team: team, File: file.Name(),
					Msg: fmt.Sprintf("node_name %q already used by team %s", spec.NodeName, owner)})
			}
			if owner, dup := seenAddr[spec.Address]; dup {
				result.Issues = append(result.Issues, Issue{Team: team, File: file.Name(),
					Msg: fmt.Sprintf("address %s already used by team %s", spec.Address, owner)})
			}
			if owner, dup := seenPeerID[spec.PeerID]; dup {
				result.Issues = append(result.Issues, Issue{Team: team, File: file.Name(),
					Msg: fmt.Sprintf("peer_id already used by team %s", owner)})
			}
			seenName[spec.NodeName] = team
			seenAddr[spec.Address] = team
			seenPeerID[spec.PeerID] = team

			if ranges != nil {
				teamRange, ok := ranges[team]
				switch {
				case !ok:
					result.Issues = append(result.Issues, Issue{Team: team, File: file.Name(),
						Msg: "team has no assigned address range"})
				case !teamRange.contains(spec.Address):
					result.Issues = append(result.Issues, Issue{Team: team, File: file.Name(),
						Msg: fmt.Sprintf("address %s is outside the team's range %s..%s", spec.Address, teamRange.Start, teamRange.End)})
				}
			}

			result.Validators = append(result.Validators, *spec)
		}
	}

	sort.Slice(result.Validators, func(i, j int) bool {
		a, errA := parseAddress(result.Validators[i].Address)
		b, errB := parseAddress(result.Validators[j].Address)
		if errA != nil || errB != nil {
			return result.Validators[i].Address < result.Validators[j].Address
		}
		return a < b
	})
	return result, nil
}

// loadEntry reads one metadata file and its keypair. A nil spec means
// the entry is too broken to merge; issues may be reported either way.
func loadEntry(teamDir, team, fileName, fileAddress string) (*config.NodeSpec, []Issue) {
	var issues []Issue
	fail := func(msg string) (*config.NodeSpec, []Issue) {
		return nil, append(issues, Issue{Team: team, File: fileName, Msg: msg})
	}

	// #nosec G304
	data, err := os.ReadFile(filepath.Join(teamDir, fileName))
	if err != nil {
		return fail(fmt.Sprintf("failed to read: %v", err))
	}

	var spec config.NodeSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return fail(fmt.Sprintf("invalid JSON: %v", err))
	}
	spec.Kind = config.KindValidator

	if spec.Team == "" {
		spec.Team = team
	} else if spec.Team != team {
		issues = append(issues, Issue{Team: team, File: fileName,
			Msg: fmt.Sprintf("declares team %q but lives in team directory %q", spec.Team, team)})
	}
	if spec.Address != fileAddress {
		issues = append(issues, Issue{Team: team, File: fileName,
			Msg: fmt.Sprintf("declares address %s but filename says %s", spec.Address, fileAddress)})
	}

	if err := spec.Validate(); err != nil {
		return fail(err.Error())
	}
	if !peerIDPattern.MatchString(spec.PeerID) {
		issues = append(issues, Issue{Team: team, File: fileName,
			Msg: fmt.Sprintf("peer_id %q is not a valid libp2p base58 identifier", spec.PeerID)})
	}
	if len(spec.ListenAddresses) == 0 {
		issues = append(issues, Issue{Team: team, File: fileName,
			Msg: "listen_addresses must be a non-empty list"})
	}

	issues = append(issues, checkKeypair(teamDir, team, fileAddress, spec.PeerID)...)
	return &spec, issues
}

// checkKeypair verifies that the identity keypair file exists and agrees
// with the metadata's peer_id.
func checkKeypair(teamDir, team, address, peerID string) []Issue {
	keypairName := fmt.Sprintf("id_%s.json", address)

	// #nosec G304
	data, err := os.ReadFile(filepath.Join(teamDir, keypairName))
	if os.IsNotExist(err) {
		return []Issue{{Team: team, File: keypairName, Msg: "keypair file is missing"}}
	}
	if err != nil {
		return []Issue{{Team: team, File: keypairName, Msg: fmt.Sprintf("failed to read: %v", err)}}
	}

	var keypair keypairFile
	if err := json.Unmarshal(data, &keypair); err != nil {
		return []Issue{{Team: team, File: keypairName, Msg: fmt.Sprintf("invalid JSON: %v", err)}}
	}

	var issues []Issue
	if keypair.PrivateKey == "" {
		issues = append(issues, Issue{Team: team, File: keypairName, Msg: "missing private_key"})
	}
	if keypair.PeerID == "" {
		issues = append(issues, Issue{Team: team, File: keypairName, Msg: "missing peer_id"})
	} else if peerID != "" && keypair.PeerID != peerID {
		issues = append(issues, Issue{Team: team, File: keypairName, Msg: "peer_id does not match validator metadata"})
	}
	return issues
}

// WriteMerged writes the merged validator list to path, creating parent
// directories as needed.
func WriteMerged(path string, validators []config.NodeSpec) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(validators, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal validators: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
