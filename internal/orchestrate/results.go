package orchestrate

import (
	"sort"
	"sync"

	"github.com/pathfinder-net/deploynet/internal/config"
)

// NodeResult is the outcome of one stage for one node.
type NodeResult struct {
	Node  string
	Team  string
	Kind  config.Kind
	Stage string
	Err   error
}

// Results collects per-node outcomes from concurrent workers. One
// node's failure is recorded, never propagated as a run abort.
type Results struct {
	mu   sync.Mutex
	list []NodeResult
}

// NewResults returns an empty collector.
func NewResults() *Results {
	return &Results{}
}

// Add records one outcome.
func (r *Results) Add(result NodeResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, result)
}

// List returns all outcomes, sorted by stage then node name.
func (r *Results) List() []NodeResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]NodeResult(nil), r.list...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stage != out[j].Stage {
			return out[i].Stage < out[j].Stage
		}
		return out[i].Node < out[j].Node
	})
	return out
}

// FailureCount returns the number of failed outcomes.
func (r *Results) FailureCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, result := range r.list {
		if result.Err != nil {
			count++
		}
	}
	return count
}
