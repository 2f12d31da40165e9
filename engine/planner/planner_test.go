package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/taskmesh/engine/llm"
	"github.com/hrygo/taskmesh/store"
	"github.com/hrygo/taskmesh/store/db/sqlite"
)

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Chat(ctx context.Context, messages []llm.Message) (string, *llm.CallStats, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	return f.response, &llm.CallStats{}, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	d, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, d.Migrate(context.Background()))
	t.Cleanup(func() { _ = d.Close() })
	return store.New(d)
}

func seedPlanTask(t *testing.T, st *store.Store, goal string) *store.Task {
	t.Helper()
	ctx := context.Background()
	wf := &store.Workflow{ID: "wf-plan", Goal: goal, Status: store.WorkflowRunning, CreatedAt: time.Now().UTC()}
	require.NoError(t, st.InsertWorkflow(ctx, wf))

	task := &store.Task{
		ID:           "plan-task",
		WorkflowID:   wf.ID,
		Type:         store.TaskTypePlan,
		Status:       store.TaskInProgress,
		MaxRetries:   3,
		InputContext: map[string]any{"goal": goal},
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, st.InsertTask(ctx, task))
	return task
}

func TestPlanner_Handle_InsertsChildTasks(t *testing.T) {
	st := newTestStore(t)
	task := seedPlanTask(t, st, "research then summarize")

	fake := &fakeLLM{response: `{
		"analysis": "two-step plan",
		"tasks": [
			{"id": "t1", "type": "SEARCH", "input": {"query": "go generics"}, "dependencies": []},
			{"id": "t2", "type": "SUMMARIZE", "input": {}, "dependencies": ["t1"]}
		]
	}`}
	dec := NewDecomposer(fake, []string{"SEARCH", "SUMMARIZE"})
	p := New(st, dec)

	out, err := p.Handle(context.Background(), task)
	require.NoError(t, err)
	createdIDs, ok := out["created_ids"].([]string)
	require.True(t, ok)
	require.Len(t, createdIDs, 2)

	children, err := st.ListTasks(context.Background(), store.TaskFilter{WorkflowID: &task.WorkflowID})
	require.NoError(t, err)
	// seeded PLAN task + 2 children
	require.Len(t, children, 3)

	var search, summarize *store.Task
	for _, c := range children {
		switch c.Type {
		case "SEARCH":
			search = c
		case "SUMMARIZE":
			summarize = c
		}
	}
	require.NotNil(t, search)
	require.NotNil(t, summarize)
	require.Equal(t, store.TaskPending, search.Status)
	require.Equal(t, store.TaskBlocked, summarize.Status)
	require.Equal(t, []string{search.ID}, summarize.Dependencies)
}

func TestPlanner_Handle_RejectsCyclicPlan(t *testing.T) {
	st := newTestStore(t)
	task := seedPlanTask(t, st, "impossible plan")

	fake := &fakeLLM{response: `{
		"analysis": "cyclic",
		"tasks": [
			{"id": "t1", "type": "SEARCH", "input": {}, "dependencies": ["t2"]},
			{"id": "t2", "type": "SEARCH", "input": {}, "dependencies": ["t1"]}
		]
	}`}
	dec := NewDecomposer(fake, []string{"SEARCH"})
	p := New(st, dec)

	_, err := p.Handle(context.Background(), task)
	require.Error(t, err)
}

func TestPlanner_Handle_PropagatesUnparseableResponseAsError(t *testing.T) {
	st := newTestStore(t)
	task := seedPlanTask(t, st, "do something")

	fake := &fakeLLM{response: "not json at all"}
	dec := NewDecomposer(fake, []string{"SEARCH"})
	p := New(st, dec)

	_, err := p.Handle(context.Background(), task)
	require.Error(t, err)

	children, listErr := st.ListTasks(context.Background(), store.TaskFilter{WorkflowID: &task.WorkflowID})
	require.NoError(t, listErr)
	// Only the seeded PLAN task exists — no child tasks were inserted
	// for a plan that was never successfully decomposed.
	require.Len(t, children, 1)
}
