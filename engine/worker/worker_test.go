package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/taskmesh/engine/handler"
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

func seedTasks(t *testing.T, st *store.Store, n int) {
	t.Helper()
	ctx := context.Background()
	wf := &store.Workflow{ID: "wf-worker", Goal: "test", Status: store.WorkflowRunning, CreatedAt: time.Now().UTC()}
	require.NoError(t, st.InsertWorkflow(ctx, wf))
	for i := 0; i < n; i++ {
		require.NoError(t, st.InsertTask(ctx, &store.Task{
			ID:           fmt.Sprintf("task-%d", i),
			WorkflowID:   wf.ID,
			Type:         "SEARCH",
			Status:       store.TaskPending,
			MaxRetries:   3,
			InputContext: map[string]any{"query": "q"},
			CreatedAt:    time.Now().UTC(),
		}))
	}
}

func TestWorker_Tick_CompletesTask(t *testing.T) {
	st := newTestStore(t)
	seedTasks(t, st, 1)

	reg := handler.NewRegistry()
	reg.Register("SEARCH", func(ctx context.Context, task *store.Task) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	})

	w := &Worker{ID: "w1", Name: "worker-1", TaskTypes: []string{"SEARCH"}, Store: st, Registry: reg}
	claimed, err := w.tick(context.Background())
	require.NoError(t, err)
	require.True(t, claimed)

	task, err := st.GetTask(context.Background(), "task-0")
	require.NoError(t, err)
	require.Equal(t, store.TaskCompleted, task.Status)
	require.Equal(t, true, task.OutputArtifact["ok"])
}

func TestWorker_Tick_RetriesOnHandlerError(t *testing.T) {
	st := newTestStore(t)
	seedTasks(t, st, 1)

	reg := handler.NewRegistry()
	reg.Register("SEARCH", func(ctx context.Context, task *store.Task) (map[string]any, error) {
		return nil, fmt.Errorf("boom")
	})

	w := &Worker{ID: "w1", Name: "worker-1", TaskTypes: []string{"SEARCH"}, Store: st, Registry: reg}
	claimed, err := w.tick(context.Background())
	require.NoError(t, err)
	require.True(t, claimed)

	task, err := st.GetTask(context.Background(), "task-0")
	require.NoError(t, err)
	require.Equal(t, store.TaskPending, task.Status)
	require.Equal(t, 1, task.RetryCount)
	require.Equal(t, "boom", *task.LastError)
}

func TestWorker_Tick_NoTaskAvailable(t *testing.T) {
	st := newTestStore(t)
	reg := handler.NewRegistry()
	w := &Worker{ID: "w1", Name: "worker-1", TaskTypes: []string{"SEARCH"}, Store: st, Registry: reg}

	claimed, err := w.tick(context.Background())
	require.NoError(t, err)
	require.False(t, claimed)
}

// TestWorker_ConcurrentWorkers_ExclusiveClaims asserts the §8
// exclusivity-of-claim property across many Worker values racing over
// a shared pool of tasks: every task is completed exactly once.
func TestWorker_ConcurrentWorkers_ExclusiveClaims(t *testing.T) {
	st := newTestStore(t)
	const taskCount = 20
	seedTasks(t, st, taskCount)

	executions := make(chan string, taskCount*2)
	reg := handler.NewRegistry()
	reg.Register("SEARCH", func(ctx context.Context, task *store.Task) (map[string]any, error) {
		executions <- task.ID
		return map[string]any{"ok": true}, nil
	})

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 5; i++ {
		w := &Worker{ID: fmt.Sprintf("w%d", i), Name: "worker", TaskTypes: []string{"SEARCH"}, Store: st, Registry: reg}
		g.Go(func() error {
			for {
				claimed, err := w.tick(ctx)
				if err != nil {
					return err
				}
				if !claimed {
					return nil
				}
			}
		})
	}
	require.NoError(t, g.Wait())
	close(executions)

	seen := map[string]int{}
	for id := range executions {
		seen[id]++
	}
	require.Len(t, seen, taskCount)
	for id, count := range seen {
		require.Equal(t, 1, count, "task %s executed %d times", id, count)
	}
}
