// Package orchestrate wires the deployment stages together: a shared
// context carrying the desired state and collaborators, a stage
// pipeline, and the per-node result list that forms the run's outcome.
package orchestrate

import (
	"context"
	"log"

	"github.com/pathfinder-net/deploynet/internal/cloud"
	"github.com/pathfinder-net/deploynet/internal/config"
	"github.com/pathfinder-net/deploynet/internal/state"
)

// Logger is the minimal logging surface stages use.
type Logger interface {
	Printf(format string, v ...interface{})
}

// ConsoleLogger logs through the standard log package.
type ConsoleLogger struct{}

// Printf implements Logger.
func (ConsoleLogger) Printf(format string, v ...interface{}) {
	log.Printf(format, v...)
}

// Context wraps the dependencies and shared state of a deployment run.
// The cloud client and credentials are passed in explicitly; stages
// never reach for ambient process-wide state.
type Context struct {
	context.Context
	Config     *config.Config
	Nodes      *config.NodeSet
	RunConfigs *config.RunConfigResolver
	Store      *state.Store
	Cloud      cloud.Provider
	Log        Logger
	Results    *Results
}

// NewContext creates a run context.
func NewContext(ctx context.Context, cfg *config.Config, nodes *config.NodeSet, store *state.Store, provider cloud.Provider) *Context {
	return &Context{
		Context:    ctx,
		Config:     cfg,
		Nodes:      nodes,
		RunConfigs: config.NewRunConfigResolver(cfg.TeamsDir),
		Store:      store,
		Cloud:      provider,
		Log:        ConsoleLogger{},
		Results:    NewResults(),
	}
}
