package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/taskmesh/store"
)

func TestRegistry_DispatchUnknownType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Dispatch(context.Background(), &store.Task{Type: "UNKNOWN"})
	require.Error(t, err)
}

func TestRegistry_DispatchRegistered(t *testing.T) {
	r := NewRegistry()
	r.Register("SEARCH", func(ctx context.Context, task *store.Task) (map[string]any, error) {
		return map[string]any{"query": task.InputContext["query"]}, nil
	})

	out, err := r.Dispatch(context.Background(), &store.Task{
		Type:         "SEARCH",
		InputContext: map[string]any{"query": "go concurrency"},
	})
	require.NoError(t, err)
	require.Equal(t, "go concurrency", out["query"])
}

func TestRegistry_TaskTypes(t *testing.T) {
	r := NewRegistry()
	r.Register("SEARCH", func(context.Context, *store.Task) (map[string]any, error) { return nil, nil })
	r.Register("SUMMARIZE", func(context.Context, *store.Task) (map[string]any, error) { return nil, nil })
	require.ElementsMatch(t, []string{"SEARCH", "SUMMARIZE"}, r.TaskTypes())
}
