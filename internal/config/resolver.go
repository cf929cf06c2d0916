package config

import "sync"

// RunConfigResolver resolves and caches run configs by team and kind,
// so concurrent node workers hit the filesystem once per team.
type RunConfigResolver struct {
	teamsDir string

	mu    sync.Mutex
	cache map[string]*RunConfig
	errs  map[string]error
}

// NewRunConfigResolver creates a resolver rooted at the teams
// directory.
func NewRunConfigResolver(teamsDir string) *RunConfigResolver {
	return &RunConfigResolver{
		teamsDir: teamsDir,
		cache:    make(map[string]*RunConfig),
		errs:     make(map[string]error),
	}
}

// Resolve returns the run config for a team and kind. Load errors are
// cached too; a broken config fails the same way for every node that
// references it.
func (r *RunConfigResolver) Resolve(team string, kind Kind) (*RunConfig, error) {
	key := team + "/" + string(kind)

	r.mu.Lock()
	defer r.mu.Unlock()

	if cfg, ok := r.cache[key]; ok {
		return cfg, nil
	}
	if err, ok := r.errs[key]; ok {
		return nil, err
	}

	cfg, err := LoadRunConfig(r.teamsDir, team, kind)
	if err != nil {
		r.errs[key] = err
		return nil, err
	}
	r.cache[key] = cfg
	return cfg, nil
}
