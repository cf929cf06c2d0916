// Package state persists the results of infrastructure provisioning so
// application redeploys can reuse resolved IPs without touching the
// cloud API.
//
// The store is a best-effort cache, never ground truth: identity and
// runtime configuration always come from the node metadata and run
// configs. A missing or corrupt state file therefore degrades to live
// lookups instead of failing the run.
package state

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Version is the current on-disk schema version. Unknown versions are a
// warning, not an error; old fields are carried through the merge.
const Version = 1

// Metadata records where and when the state was produced.
type Metadata struct {
	// Project is the testnet name the state belongs to.
	Project string `json:"project"`
	// Zone is the cloud location the instances run in.
	Zone        string    `json:"zone"`
	GeneratedAt time.Time `json:"generated_at"`
	Version     int       `json:"version"`
}

// Node is the cached provisioning result for one node.
type Node struct {
	NodeName string `json:"node_name"`
	Team     string `json:"team"`
	Address  string `json:"address"`
	PeerID   string `json:"peer_id"`
	IP       string `json:"ip"`
}

// DeployedState is the persisted document. Entries may be absent for
// nodes whose provisioning has not run or failed; callers must tolerate
// holes and fall back to live lookups.
type DeployedState struct {
	Metadata   Metadata        `json:"metadata"`
	Validators map[string]Node `json:"validators"`
}

// renameFile is swapped out in tests to simulate a crash between the
// temp-file write and the final rename.
var renameFile = os.Rename

func emptyState(project, zone string) *DeployedState {
	return &DeployedState{
		Metadata:   Metadata{Project: project, Zone: zone, Version: Version},
		Validators: make(map[string]Node),
	}
}

// Store serializes access to the deployed state. Concurrent node
// workers upsert through a single mutex; the disk write is atomic
// (temp file plus rename) so a crash mid-write never corrupts the
// previous file.
type Store struct {
	mu      sync.Mutex
	path    string
	project string
	zone    string
	state   *DeployedState
}

// Open creates a store bound to path and loads any existing content.
// An absent file is not an error; a corrupt file is treated as no
// cache.
func Open(path, project, zone string) (*Store, error) {
	s := &Store{path: path, project: project, zone: zone}
	s.state = s.read()
	return s, nil
}

func (s *Store) read() *DeployedState {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[State] cannot read %s (%v), starting with empty state", s.path, err)
		}
		return emptyState(s.project, s.zone)
	}

	var loaded DeployedState
	if err := json.Unmarshal(data, &loaded); err != nil {
		log.Printf("[State] %s is corrupt (%v), starting with empty state", s.path, err)
		return emptyState(s.project, s.zone)
	}
	if loaded.Metadata.Version > Version {
		log.Printf("[State] %s has schema version %d (newer than %d), proceeding anyway",
			s.path, loaded.Metadata.Version, Version)
	}
	if loaded.Validators == nil {
		loaded.Validators = make(map[string]Node)
	}
	return &loaded
}

// Upsert merges the given fields into the node's entry, creating it if
// absent, and persists the full store. Empty incoming fields never
// overwrite cached values.
func (s *Store) Upsert(nodeName string, node Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.state.Validators[nodeName]
	entry.NodeName = nodeName
	if node.Team != "" {
		entry.Team = node.Team
	}
	if node.Address != "" {
		entry.Address = node.Address
	}
	if node.PeerID != "" {
		entry.PeerID = node.PeerID
	}
	if node.IP != "" {
		entry.IP = node.IP
	}
	s.state.Validators[nodeName] = entry

	return s.persistLocked()
}

// IP returns the cached public IP for a node, if any.
func (s *Store) IP(nodeName string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.state.Validators[nodeName]
	if !ok || entry.IP == "" {
		return "", false
	}
	return entry.IP, true
}

// Get returns the full cached entry for a node, if any.
func (s *Store) Get(nodeName string) (Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.state.Validators[nodeName]
	return entry, ok
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() DeployedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := DeployedState{Metadata: s.state.Metadata, Validators: make(map[string]Node, len(s.state.Validators))}
	for name, node := range s.state.Validators {
		snapshot.Validators[name] = node
	}
	return snapshot
}

// Replace swaps the full node map and persists, used when rebuilding
// the cache from live cloud resources.
func (s *Store) Replace(nodes map[string]Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if nodes == nil {
		nodes = make(map[string]Node)
	}
	s.state.Validators = nodes
	return s.persistLocked()
}

// Path returns the on-disk location of the state file.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) persistLocked() error {
	s.state.Metadata.Project = s.project
	s.state.Metadata.Zone = s.zone
	s.state.Metadata.GeneratedAt = time.Now().UTC()
	s.state.Metadata.Version = Version

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".deployed-state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}

	if err := renameFile(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
