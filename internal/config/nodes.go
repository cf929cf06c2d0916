package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	ma "github.com/multiformats/go-multiaddr"
)

// Kind distinguishes validators from boot nodes.
type Kind string

const (
	KindValidator Kind = "validator"
	KindBoot      Kind = "boot"
)

var (
	nodeNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*[a-z0-9]$`)
	addressPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)
)

// NodeSpec is the desired-state record for one validator or boot node.
// It is immutable for the duration of a deployment run; identity key
// material lives in external files referenced by Address.
type NodeSpec struct {
	Team            string   `json:"team"`
	NodeName        string   `json:"node_name"`
	Address         string   `json:"address"`
	PeerID          string   `json:"peer_id"`
	ListenAddresses []string `json:"listen_addresses"`
	Kind            Kind     `json:"-"`
}

// Validate checks structural constraints on a single node record.
// Address-range membership is enforced upstream by the validate command
// and is not re-checked here.
func (n *NodeSpec) Validate() error {
	if !nodeNamePattern.MatchString(n.NodeName) {
		return fmt.Errorf("node_name %q is not DNS-safe", n.NodeName)
	}
	if n.Team == "" {
		return fmt.Errorf("node %s: team is required", n.NodeName)
	}
	if !addressPattern.MatchString(n.Address) {
		return fmt.Errorf("node %s: address %q is not a hex string", n.NodeName, n.Address)
	}
	if n.PeerID == "" {
		return fmt.Errorf("node %s: peer_id is required", n.NodeName)
	}
	for _, addr := range n.ListenAddresses {
		if _, err := ma.NewMultiaddr(addr); err != nil {
			return fmt.Errorf("node %s: invalid listen address %q: %w", n.NodeName, addr, err)
		}
	}
	return nil
}

// IdentityFile returns the path of the node's identity key file,
// relative to the repository root.
func (n *NodeSpec) IdentityFile(teamsDir string) string {
	if n.Kind == KindBoot {
		return fmt.Sprintf("%s/%s/id_boot.json", teamsDir, n.Team)
	}
	return fmt.Sprintf("%s/%s/id_%s.json", teamsDir, n.Team, n.Address)
}

// NodeSet is the full desired state of the network, ordered boot nodes
// first so bootstrap IPs exist before validators need them.
type NodeSet struct {
	BootNodes  []NodeSpec
	Validators []NodeSpec
}

// All returns boot nodes followed by validators.
func (s *NodeSet) All() []NodeSpec {
	all := make([]NodeSpec, 0, len(s.BootNodes)+len(s.Validators))
	all = append(all, s.BootNodes...)
	all = append(all, s.Validators...)
	return all
}

// ByName returns the spec with the given node name, if present.
func (s *NodeSet) ByName(name string) (NodeSpec, bool) {
	for _, n := range s.All() {
		if n.NodeName == name {
			return n, true
		}
	}
	return NodeSpec{}, false
}

// LoadNodeSet reads the canonical validator list and, if the file
// exists, the boot node list. A missing boot node file is not an error;
// small networks bootstrap off validators directly.
func LoadNodeSet(cfg *Config) (*NodeSet, error) {
	validators, err := loadNodeFile(cfg.ValidatorsFile, KindValidator)
	if err != nil {
		return nil, err
	}
	if len(validators) == 0 {
		return nil, fmt.Errorf("%s contains no validators", cfg.ValidatorsFile)
	}

	var bootNodes []NodeSpec
	if _, err := os.Stat(cfg.BootNodesFile); err == nil {
		bootNodes, err = loadNodeFile(cfg.BootNodesFile, KindBoot)
		if err != nil {
			return nil, err
		}
	}

	set := &NodeSet{BootNodes: bootNodes, Validators: validators}
	seen := make(map[string]bool)
	for _, n := range set.All() {
		if seen[n.NodeName] {
			return nil, fmt.Errorf("duplicate node_name %q", n.NodeName)
		}
		seen[n.NodeName] = true
	}
	return set, nil
}

func loadNodeFile(path string, kind Kind) ([]NodeSpec, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read node file %s: %w", path, err)
	}

	var nodes []NodeSpec
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	for i := range nodes {
		nodes[i].Kind = kind
		if err := nodes[i].Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return nodes, nil
}
