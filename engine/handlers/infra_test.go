package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/taskmesh/store"
)

func TestProvisionInfra(t *testing.T) {
	task := &store.Task{
		ID:           "infra-1",
		WorkflowID:   "wf-1",
		InputContext: map[string]any{"resource": "postgres-cluster"},
	}
	out, err := ProvisionInfra(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, "postgres-cluster", out["resource"])
	require.Equal(t, true, out["provisioned"])
}

func TestProvisionInfra_MissingResource(t *testing.T) {
	task := &store.Task{ID: "infra-2", InputContext: map[string]any{}}
	_, err := ProvisionInfra(context.Background(), task)
	require.Error(t, err)
}
