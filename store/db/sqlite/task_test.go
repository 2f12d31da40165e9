package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/taskmesh/store"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, d.Migrate(context.Background()))
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func seedWorkflowAndTask(t *testing.T, d *DB, taskType string, status store.TaskStatus) *store.Task {
	t.Helper()
	ctx := context.Background()
	wf := &store.Workflow{ID: "wf-" + taskType, Goal: "test goal", Status: store.WorkflowRunning, CreatedAt: time.Now().UTC()}
	require.NoError(t, d.InsertWorkflow(ctx, wf))

	task := &store.Task{
		ID:           "task-" + taskType,
		WorkflowID:   wf.ID,
		Type:         taskType,
		Status:       status,
		Dependencies: []string{},
		MaxRetries:   3,
		InputContext: map[string]any{},
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, d.InsertTask(ctx, task))
	return task
}

func TestClaimTask_ReturnsNilWhenNoneReady(t *testing.T) {
	d := newTestDB(t)
	got, err := d.ClaimTask(context.Background(), "worker-1", []string{"SEARCH"}, time.Now().Unix())
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestClaimTask_ClaimsOldestMatchingType(t *testing.T) {
	d := newTestDB(t)
	seedWorkflowAndTask(t, d, "SEARCH", store.TaskPending)

	claimed, err := d.ClaimTask(context.Background(), "worker-1", []string{"SEARCH", "SUMMARIZE"}, time.Now().Unix())
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, store.TaskInProgress, claimed.Status)
	require.Equal(t, "worker-1", *claimed.WorkerLock)

	again, err := d.ClaimTask(context.Background(), "worker-2", []string{"SEARCH"}, time.Now().Unix())
	require.NoError(t, err)
	require.Nil(t, again)
}

// TestClaimTask_ExclusiveUnderConcurrency asserts the atomic-claim
// invariant: N concurrent claimants racing over one PENDING task must
// yield exactly one winner.
func TestClaimTask_ExclusiveUnderConcurrency(t *testing.T) {
	d := newTestDB(t)
	seedWorkflowAndTask(t, d, "SEARCH", store.TaskPending)

	const claimants = 8
	wins := make([]bool, claimants)
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < claimants; i++ {
		i := i
		g.Go(func() error {
			t, err := d.ClaimTask(ctx, "worker", []string{"SEARCH"}, time.Now().Unix())
			if err != nil {
				return err
			}
			wins[i] = t != nil
			return nil
		})
	}
	require.NoError(t, g.Wait())

	winCount := 0
	for _, w := range wins {
		if w {
			winCount++
		}
	}
	require.Equal(t, 1, winCount)
}

func TestCompleteTask(t *testing.T) {
	d := newTestDB(t)
	seedWorkflowAndTask(t, d, "SEARCH", store.TaskPending)
	ctx := context.Background()

	claimed, err := d.ClaimTask(ctx, "worker-1", []string{"SEARCH"}, time.Now().Unix())
	require.NoError(t, err)
	require.NotNil(t, claimed)

	require.NoError(t, d.CompleteTask(ctx, claimed.ID, map[string]any{"result": "ok"}, time.Now().Unix()))

	got, err := d.GetTask(ctx, claimed.ID)
	require.NoError(t, err)
	require.Equal(t, store.TaskCompleted, got.Status)
	require.Equal(t, "ok", got.OutputArtifact["result"])
	require.Nil(t, got.WorkerLock)
}

func TestRetryOrFailTask_RetriesThenFails(t *testing.T) {
	d := newTestDB(t)
	task := seedWorkflowAndTask(t, d, "SEARCH", store.TaskPending)
	task.MaxRetries = 1
	ctx := context.Background()

	_, err := d.db.ExecContext(ctx, `UPDATE tasks SET max_retries = 1 WHERE id = ?`, task.ID)
	require.NoError(t, err)

	require.NoError(t, d.RetryOrFailTask(ctx, task.ID, "boom", time.Now().Unix()))
	got, err := d.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, store.TaskPending, got.Status)
	require.Equal(t, 1, got.RetryCount)

	require.NoError(t, d.RetryOrFailTask(ctx, task.ID, "boom again", time.Now().Unix()))
	got, err = d.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, store.TaskFailed, got.Status)
	require.Equal(t, 2, got.RetryCount)
	require.NotNil(t, got.FailedAt)
}

func TestUnblockTask_MergesDependencyOutputs(t *testing.T) {
	d := newTestDB(t)
	task := seedWorkflowAndTask(t, d, "SUMMARIZE", store.TaskBlocked)
	ctx := context.Background()

	require.NoError(t, d.UnblockTask(ctx, task.ID, map[string]any{"search-1": "findings"}))

	got, err := d.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, store.TaskPending, got.Status)
	require.Equal(t, "findings", got.DependencyOutputs()["search-1"])
}

func TestUnblockTask_NoopWhenNotBlocked(t *testing.T) {
	d := newTestDB(t)
	task := seedWorkflowAndTask(t, d, "SUMMARIZE", store.TaskPending)
	ctx := context.Background()

	require.NoError(t, d.UnblockTask(ctx, task.ID, map[string]any{"x": "y"}))

	got, err := d.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, store.TaskPending, got.Status)
	require.Nil(t, got.DependencyOutputs())
}

func TestFailTaskDependency(t *testing.T) {
	d := newTestDB(t)
	task := seedWorkflowAndTask(t, d, "SUMMARIZE", store.TaskBlocked)
	ctx := context.Background()

	require.NoError(t, d.FailTaskDependency(ctx, task.ID))

	got, err := d.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, store.TaskFailed, got.Status)
	require.Equal(t, "dependency failed", *got.LastError)
}

func TestReleaseInvariantViolation(t *testing.T) {
	d := newTestDB(t)
	task := seedWorkflowAndTask(t, d, "SEARCH", store.TaskPending)
	ctx := context.Background()

	claimed, err := d.ClaimTask(ctx, "worker-1", []string{"SEARCH"}, time.Now().Unix())
	require.NoError(t, err)
	require.NotNil(t, claimed)

	require.NoError(t, d.ReleaseInvariantViolation(ctx, claimed.ID, time.Now().Unix()))

	got, err := d.GetTask(ctx, claimed.ID)
	require.NoError(t, err)
	require.Equal(t, store.TaskPending, got.Status)
	require.Equal(t, 1, got.RetryCount)
	require.Nil(t, got.WorkerLock)
}
