// Package compose generates a docker-compose.yml for running the whole
// validator set on one machine, typically for local integration
// testing before a cloud deployment.
//
// Services are derived from the same node metadata and run configs the
// cloud stages use. Peer addresses are anchored on loopback since every
// container shares the developer's host.
package compose

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pathfinder-net/deploynet/internal/config"
	"github.com/pathfinder-net/deploynet/internal/peers"
	"github.com/pathfinder-net/deploynet/internal/template"
)

// LocalIP is the address peers advertise in a compose deployment.
const LocalIP = "127.0.0.1"

// Logger is the minimal logging surface used for skip warnings.
type Logger interface {
	Printf(format string, v ...interface{})
}

// Service is one docker-compose service definition.
type Service struct {
	Image       string            `yaml:"image"`
	NetworkMode string            `yaml:"network_mode"`
	Ports       []string          `yaml:"ports,omitempty"`
	Volumes     []string          `yaml:"volumes,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
	Command     []string          `yaml:"command,omitempty"`
}

// File is the top-level docker-compose document.
type File struct {
	Services map[string]Service `yaml:"services"`
}

// Options carry the settings relevant to compose generation.
type Options struct {
	TeamsDir string
	Network  string
	Style    string // peer address style, see config.PeerAddressStyle*
}

// Generate builds the compose document for the node set. Teams without
// a run config are skipped with a warning rather than failing the whole
// generation; a broken run config is still an error.
func Generate(set *config.NodeSet, resolver *config.RunConfigResolver, opts Options, log Logger) (*File, error) {
	file := &File{Services: make(map[string]Service)}

	for _, spec := range set.All() {
		runCfg, err := resolver.Resolve(spec.Team, spec.Kind)
		if err != nil {
			var notFound *config.RunConfigNotFoundError
			if errors.As(err, &notFound) {
				log.Printf("[Compose] skipping %s: %v", spec.NodeName, err)
				continue
			}
			return nil, err
		}

		service, err := buildService(set, spec, runCfg, opts)
		if err != nil {
			return nil, err
		}
		file.Services[spec.NodeName] = service
	}
	return file, nil
}

// Marshal renders the document as YAML.
func (f *File) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal compose file: %w", err)
	}
	return data, nil
}

func buildService(set *config.NodeSet, spec config.NodeSpec, runCfg *config.RunConfig, opts Options) (Service, error) {
	vars, err := localVariables(set, spec, opts)
	if err != nil {
		return Service{}, err
	}
	command, err := template.Render(runCfg.Cmd, vars)
	if err != nil {
		return Service{}, fmt.Errorf("node %s: %w", spec.NodeName, err)
	}

	service := Service{
		Image: runCfg.Image,
		// Host networking mirrors the cloud deployment, so listen
		// addresses mean the same thing in both environments.
		NetworkMode: "host",
		Environment: runCfg.Env,
		Command:     command,
	}

	for _, port := range runCfg.Ports {
		mapping := fmt.Sprintf("%d:%d", port.Host, port.Container)
		if port.Protocol == "udp" {
			mapping += "/udp"
		}
		service.Ports = append(service.Ports, mapping)
	}

	service.Volumes = []string{
		fmt.Sprintf("./data/%s:%s", spec.NodeName, runCfg.DataDir),
		fmt.Sprintf("./%s:%s", spec.IdentityFile(opts.TeamsDir), runCfg.P2PIdentityPath),
	}
	return service, nil
}

// localVariables mirrors the deployer's variable set with every peer
// anchored on loopback.
func localVariables(set *config.NodeSet, spec config.NodeSpec, opts Options) (map[string]string, error) {
	var peerPool []config.NodeSpec
	for _, candidate := range set.BootNodes {
		if candidate.NodeName != spec.NodeName {
			peerPool = append(peerPool, candidate)
		}
	}
	if len(peerPool) == 0 {
		for _, candidate := range set.Validators {
			if candidate.NodeName != spec.NodeName {
				peerPool = append(peerPool, candidate)
			}
		}
	}

	peerAddrs := make([]string, 0, len(peerPool))
	for _, peer := range peerPool {
		addr, err := peers.Address(peer, LocalIP, opts.Style)
		if err != nil {
			return nil, err
		}
		peerAddrs = append(peerAddrs, addr)
	}

	var validatorAddrs []string
	for _, v := range set.Validators {
		if v.NodeName != spec.NodeName {
			validatorAddrs = append(validatorAddrs, v.Address)
		}
	}

	joined := strings.Join(peerAddrs, ",")
	return map[string]string{
		"address":          spec.Address,
		"node_name":        spec.NodeName,
		"peer_id":          spec.PeerID,
		"team":             spec.Team,
		"listen_addresses": strings.Join(spec.ListenAddresses, ","),
		"peer_addrs":       joined,
		"bootstrap_addrs":  joined,
		"validator_addrs":  strings.Join(validatorAddrs, ","),
		"network":          opts.Network,
	}, nil
}
