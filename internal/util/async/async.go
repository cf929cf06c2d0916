// Package async runs per-node operations in parallel and collects one
// result per node. One node's failure never cancels the others; callers
// inspect the full result set to decide the overall outcome.
package async

import (
	"context"
	"sort"
)

// Task is a named unit of work, typically one node's provisioning or
// deployment step.
type Task struct {
	Name string
	Func func(context.Context) error
}

// Result pairs a task name with its outcome.
type Result struct {
	Name string
	Err  error
}

// Run starts all tasks concurrently and waits for every one of them to
// finish. Results are returned sorted by task name so output is stable
// across runs.
func Run(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	resultChan := make(chan Result, len(tasks))
	for _, task := range tasks {
		go func() {
			resultChan <- Result{Name: task.Name, Err: task.Func(ctx)}
		}()
	}

	results := make([]Result, 0, len(tasks))
	for range len(tasks) {
		results = append(results, <-resultChan)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

// FirstError returns the first failed result's error, or nil if all
// tasks succeeded.
func FirstError(results []Result) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}
