package handlers

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/taskmesh/store"
)

func TestSynthesize_MergesDependencyOutputs(t *testing.T) {
	task := &store.Task{
		ID: "synth-1",
		InputContext: map[string]any{
			"dependency_outputs": map[string]any{
				"search-1":  map[string]any{"findings": "go generics landed in 1.18"},
				"analyze-1": map[string]any{"analysis": "low risk"},
			},
		},
	}
	out, err := Synthesize(context.Background(), task)
	require.NoError(t, err)
	markdown := out["markdown"].(string)
	require.True(t, strings.Contains(markdown, "search-1"))
	require.True(t, strings.Contains(markdown, "analyze-1"))
}

func TestSynthesize_NoDependencies(t *testing.T) {
	task := &store.Task{ID: "synth-2", InputContext: map[string]any{}}
	_, err := Synthesize(context.Background(), task)
	require.Error(t, err)
}
