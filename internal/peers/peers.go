// Package peers computes the peer-discovery variables of a node: the
// bootstrap/peer address list and the validator address list, both with
// the node's own entry excluded.
//
// IPs come from the state store when cached; otherwise a single live
// lookup runs and the result is written back, keeping the cache
// self-healing.
package peers

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/pathfinder-net/deploynet/internal/config"
	"github.com/pathfinder-net/deploynet/internal/state"
)

// IPLookup resolves a node's public IP from the live cloud API.
type IPLookup func(ctx context.Context, nodeName string) (string, error)

// Resolver computes per-node peer variables over a desired-state set.
type Resolver struct {
	set    *config.NodeSet
	store  *state.Store
	lookup IPLookup
	style  string
}

// NewResolver creates a resolver. style is one of the
// config.PeerAddressStyle constants.
func NewResolver(set *config.NodeSet, store *state.Store, lookup IPLookup, style string) *Resolver {
	return &Resolver{set: set, store: store, lookup: lookup, style: style}
}

// NodeIP returns the node's public IP, from cache when available,
// otherwise via exactly one live lookup whose result is cached back.
func (r *Resolver) NodeIP(ctx context.Context, nodeName string) (string, error) {
	if ip, ok := r.store.IP(nodeName); ok {
		return ip, nil
	}

	ip, err := r.lookup(ctx, nodeName)
	if err != nil {
		return "", fmt.Errorf("live IP lookup for %s failed: %w", nodeName, err)
	}
	if ip == "" {
		return "", fmt.Errorf("node %s has no public IP assigned", nodeName)
	}
	if err := r.store.Upsert(nodeName, state.Node{IP: ip}); err != nil {
		return "", fmt.Errorf("failed to cache IP for %s: %w", nodeName, err)
	}
	return ip, nil
}

// PeerAddrs returns the CSV bootstrap/peer address list for self. Boot
// nodes are preferred when any exist; otherwise the other validators
// serve as peers. Self is always excluded.
func (r *Resolver) PeerAddrs(ctx context.Context, self config.NodeSpec) (string, error) {
	pool := excludeSelf(r.set.BootNodes, self)
	if len(pool) == 0 {
		pool = excludeSelf(r.set.Validators, self)
	}

	addrs := make([]string, 0, len(pool))
	for _, peer := range pool {
		ip, err := r.NodeIP(ctx, peer.NodeName)
		if err != nil {
			return "", err
		}
		addr, err := Address(peer, ip, r.style)
		if err != nil {
			return "", err
		}
		addrs = append(addrs, addr)
	}
	return strings.Join(addrs, ","), nil
}

// ValidatorAddrs returns the CSV list of the other validators'
// addresses, self excluded.
func (r *Resolver) ValidatorAddrs(self config.NodeSpec) string {
	others := excludeSelf(r.set.Validators, self)
	addrs := make([]string, 0, len(others))
	for _, v := range others {
		addrs = append(addrs, v.Address)
	}
	return strings.Join(addrs, ",")
}

func excludeSelf(specs []config.NodeSpec, self config.NodeSpec) []config.NodeSpec {
	out := make([]config.NodeSpec, 0, len(specs))
	for _, spec := range specs {
		if spec.NodeName == self.NodeName {
			continue
		}
		out = append(out, spec)
	}
	return out
}

// Address builds the advertised address for one peer by re-anchoring
// its listen transport on the given IP. The output format is a policy:
// "multiaddr" appends /p2p/<peer_id>, "ip" emits a plain ip:port.
func Address(peer config.NodeSpec, ip, style string) (string, error) {
	protocol, port, err := firstTransport(peer.ListenAddresses)
	if err != nil {
		return "", fmt.Errorf("node %s: %w", peer.NodeName, err)
	}

	if style == config.PeerAddressStyleIP {
		return fmt.Sprintf("%s:%s", ip, port), nil
	}

	base, err := ma.NewMultiaddr(fmt.Sprintf("/ip4/%s/%s/%s", ip, protocol, port))
	if err != nil {
		return "", fmt.Errorf("node %s: failed to build multiaddr: %w", peer.NodeName, err)
	}
	return fmt.Sprintf("%s/p2p/%s", base.String(), peer.PeerID), nil
}

// firstTransport extracts the transport protocol and port from a
// node's first listen address.
func firstTransport(listenAddresses []string) (protocol, port string, err error) {
	if len(listenAddresses) == 0 {
		return "", "", fmt.Errorf("no listen addresses declared")
	}
	addr, err := ma.NewMultiaddr(listenAddresses[0])
	if err != nil {
		return "", "", fmt.Errorf("invalid listen address %q: %w", listenAddresses[0], err)
	}
	if port, err := addr.ValueForProtocol(ma.P_TCP); err == nil {
		return "tcp", port, nil
	}
	if port, err := addr.ValueForProtocol(ma.P_UDP); err == nil {
		return "udp", port, nil
	}
	return "", "", fmt.Errorf("listen address %q has no tcp or udp port", listenAddresses[0])
}

// Port is one protocol/port pair exposed by the desired-state set.
type Port struct {
	Protocol string
	Port     string
}

// ListenPorts returns the union of ports implied by the nodes' listen
// addresses, deduplicated and sorted for stable firewall rules.
func ListenPorts(specs []config.NodeSpec) ([]Port, error) {
	seen := make(map[Port]bool)
	var ports []Port

	add := func(protocol, port string) {
		p := Port{Protocol: protocol, Port: port}
		if !seen[p] {
			seen[p] = true
			ports = append(ports, p)
		}
	}

	for _, spec := range specs {
		for _, listenAddr := range spec.ListenAddresses {
			addr, err := ma.NewMultiaddr(listenAddr)
			if err != nil {
				return nil, fmt.Errorf("node %s: invalid listen address %q: %w", spec.NodeName, listenAddr, err)
			}
			if port, err := addr.ValueForProtocol(ma.P_TCP); err == nil {
				add("tcp", port)
			}
			if port, err := addr.ValueForProtocol(ma.P_UDP); err == nil {
				add("udp", port)
			}
		}
	}

	sort.Slice(ports, func(i, j int) bool {
		if ports[i].Protocol != ports[j].Protocol {
			return ports[i].Protocol < ports[j].Protocol
		}
		a, _ := strconv.Atoi(ports[i].Port)
		b, _ := strconv.Atoi(ports[j].Port)
		return a < b
	})
	return ports, nil
}
