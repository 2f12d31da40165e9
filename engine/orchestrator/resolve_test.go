package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/taskmesh/store"
	"github.com/hrygo/taskmesh/store/db/sqlite"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	d, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, d.Migrate(context.Background()))
	t.Cleanup(func() { _ = d.Close() })
	return store.New(d)
}

func seedWorkflow(t *testing.T, st *store.Store, id string) *store.Workflow {
	t.Helper()
	wf := &store.Workflow{ID: id, Goal: "test", Status: store.WorkflowRunning, CreatedAt: time.Now().UTC()}
	require.NoError(t, st.InsertWorkflow(context.Background(), wf))
	return wf
}

func insertTask(t *testing.T, st *store.Store, task *store.Task) {
	t.Helper()
	task.CreatedAt = time.Now().UTC()
	if task.MaxRetries == 0 {
		task.MaxRetries = 3
	}
	require.NoError(t, st.InsertTask(context.Background(), task))
}

func TestResolveDependencies_UnblocksWhenAllDependenciesCompleted(t *testing.T) {
	st := newTestStore(t)
	wf := seedWorkflow(t, st, "wf-1")

	insertTask(t, st, &store.Task{ID: "dep-1", WorkflowID: wf.ID, Type: "SEARCH", Status: store.TaskCompleted, OutputArtifact: map[string]any{"result": "a"}})
	insertTask(t, st, &store.Task{ID: "dep-2", WorkflowID: wf.ID, Type: "SEARCH", Status: store.TaskCompleted, OutputArtifact: map[string]any{"result": "b"}})
	insertTask(t, st, &store.Task{
		ID: "child", WorkflowID: wf.ID, Type: "SYNTHESIZE", Status: store.TaskBlocked,
		Dependencies: []string{"dep-1", "dep-2"}, InputContext: map[string]any{},
	})

	o := &Orchestrator{Store: st}
	require.NoError(t, o.resolveDependencies(context.Background()))

	child, err := st.GetTask(context.Background(), "child")
	require.NoError(t, err)
	require.Equal(t, store.TaskPending, child.Status)
	require.Equal(t, "a", child.DependencyOutputs()["dep-1"].(map[string]any)["result"])
	require.Equal(t, "b", child.DependencyOutputs()["dep-2"].(map[string]any)["result"])
}

func TestResolveDependencies_LeavesBlockedWhileDependencyInFlight(t *testing.T) {
	st := newTestStore(t)
	wf := seedWorkflow(t, st, "wf-2")

	insertTask(t, st, &store.Task{ID: "dep-1", WorkflowID: wf.ID, Type: "SEARCH", Status: store.TaskInProgress})
	insertTask(t, st, &store.Task{ID: "child", WorkflowID: wf.ID, Type: "SYNTHESIZE", Status: store.TaskBlocked, Dependencies: []string{"dep-1"}})

	o := &Orchestrator{Store: st}
	require.NoError(t, o.resolveDependencies(context.Background()))

	child, err := st.GetTask(context.Background(), "child")
	require.NoError(t, err)
	require.Equal(t, store.TaskBlocked, child.Status)
}

func TestResolveDependencies_CascadesFailure(t *testing.T) {
	st := newTestStore(t)
	wf := seedWorkflow(t, st, "wf-3")

	insertTask(t, st, &store.Task{ID: "dep-1", WorkflowID: wf.ID, Type: "SEARCH", Status: store.TaskFailed})
	insertTask(t, st, &store.Task{ID: "child", WorkflowID: wf.ID, Type: "SYNTHESIZE", Status: store.TaskBlocked, Dependencies: []string{"dep-1"}})

	o := &Orchestrator{Store: st}
	require.NoError(t, o.resolveDependencies(context.Background()))

	child, err := st.GetTask(context.Background(), "child")
	require.NoError(t, err)
	require.Equal(t, store.TaskFailed, child.Status)
}
