package orchestrate

import (
	"fmt"
	"time"
)

// Stage is one dependency-ordered step of a deployment run. Stages
// communicate exclusively through the state store in the context, so
// they can also run in separate invocations.
type Stage interface {
	// Name returns the human-readable stage name.
	Name() string

	// Run executes the stage. A returned error is a run-level failure
	// (bad input, unusable cloud client); per-node failures are
	// recorded in ctx.Results instead.
	Run(ctx *Context) error
}

// RunStages executes stages sequentially in the given order.
func RunStages(ctx *Context, stages []Stage) error {
	start := time.Now()
	for i, stage := range stages {
		stageStart := time.Now()
		ctx.Log.Printf("[%s] starting (%d/%d)", stage.Name(), i+1, len(stages))

		if err := stage.Run(ctx); err != nil {
			ctx.Log.Printf("[%s] failed: %v", stage.Name(), err)
			return fmt.Errorf("%s stage failed: %w", stage.Name(), err)
		}

		ctx.Log.Printf("[%s] completed in %v", stage.Name(), time.Since(stageStart).Round(time.Millisecond))
	}
	ctx.Log.Printf("run completed in %v", time.Since(start).Round(time.Millisecond))
	return nil
}
