package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/taskmesh/store"
)

func TestUpsertWorkerRegistration_IsIdempotent(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	reg := &store.WorkerRegistration{
		WorkerID:      "w1",
		Name:          "worker-1",
		TaskTypes:     []string{"SEARCH"},
		Status:        store.WorkerOnline,
		LastHeartbeat: time.Now().UTC(),
	}
	require.NoError(t, d.UpsertWorkerRegistration(ctx, reg))

	reg.TaskTypes = []string{"SEARCH", "SUMMARIZE"}
	reg.LastHeartbeat = time.Now().Add(time.Minute).UTC()
	require.NoError(t, d.UpsertWorkerRegistration(ctx, reg))

	list, err := d.ListWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.ElementsMatch(t, []string{"SEARCH", "SUMMARIZE"}, list[0].TaskTypes)
}

func TestSetWorkerOffline(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.UpsertWorkerRegistration(ctx, &store.WorkerRegistration{
		WorkerID: "w1", Name: "worker-1", TaskTypes: []string{"SEARCH"},
		Status: store.WorkerOnline, LastHeartbeat: time.Now().UTC(),
	}))
	require.NoError(t, d.SetWorkerOffline(ctx, "w1"))

	list, err := d.ListWorkers(ctx)
	require.NoError(t, err)
	require.Equal(t, store.WorkerOffline, list[0].Status)
}
