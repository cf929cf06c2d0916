package async

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_AllSucceed(t *testing.T) {
	t.Parallel()
	tasks := []Task{
		{Name: "b", Func: func(context.Context) error { return nil }},
		{Name: "a", Func: func(context.Context) error { return nil }},
	}
	results := Run(context.Background(), tasks)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Name)
	assert.Equal(t, "b", results[1].Name)
	assert.NoError(t, FirstError(results))
}

func TestRun_FailureDoesNotStopSiblings(t *testing.T) {
	t.Parallel()
	ran := make(chan string, 3)
	boom := errors.New("boom")
	tasks := []Task{
		{Name: "v1", Func: func(context.Context) error { ran <- "v1"; return nil }},
		{Name: "v2", Func: func(context.Context) error { ran <- "v2"; return boom }},
		{Name: "v3", Func: func(context.Context) error { ran <- "v3"; return nil }},
	}
	results := Run(context.Background(), tasks)
	require.Len(t, results, 3)
	assert.Len(t, ran, 3)

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			assert.Equal(t, "v2", r.Name)
		}
	}
	assert.Equal(t, 1, failed)
	assert.ErrorIs(t, FirstError(results), boom)
}

func TestRun_Empty(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Run(context.Background(), nil))
}
