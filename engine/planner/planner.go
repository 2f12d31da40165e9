// Package planner implements the PLAN task type: it turns a
// goal carried in a task's input_context into a disjoint sub-DAG of
// child tasks, inserted into the store under the same workflow
// (spec.md §4.4).
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/taskmesh/store"
)

// Planner is registered in the handler registry under the PLAN tag.
type Planner struct {
	store      *store.Store
	decomposer *Decomposer
}

// New builds a Planner backed by st and decomposer d.
func New(st *store.Store, d *Decomposer) *Planner {
	return &Planner{store: st, decomposer: d}
}

// Handle implements handler.Handler. It never sets the PLAN task as a
// dependency of any child it creates — matching spec.md §9's resolved
// Open Question — so children become immediately eligible (PENDING)
// or dependency-gated (BLOCKED) purely among themselves.
func (p *Planner) Handle(ctx context.Context, task *store.Task) (map[string]any, error) {
	goal, _ := task.InputContext["goal"].(string)
	if goal == "" {
		return nil, fmt.Errorf("planner: task %s has no input_context.goal", task.ID)
	}

	plan, err := p.decomposer.Decompose(ctx, goal)
	if err != nil {
		slog.Error("planner: decompose failed", "task_id", task.ID, "error", err)
		p.store.RecordLog(ctx, store.LogError, "planner",
			fmt.Sprintf("decompose failed for task %s: %v", task.ID, err), &task.WorkflowID, &task.ID)
		return nil, fmt.Errorf("planner: decompose: %w", err)
	}

	if err := checkAcyclic(plan.Tasks); err != nil {
		slog.Error("planner: rejected cyclic plan", "task_id", task.ID, "error", err)
		p.store.RecordLog(ctx, store.LogError, "planner",
			fmt.Sprintf("rejected cyclic plan for task %s: %v", task.ID, err), &task.WorkflowID, &task.ID)
		return nil, fmt.Errorf("planner: rejected plan: %w", err)
	}

	// localID -> global id, assigned before any insert so dependency
	// references can be translated in one pass.
	globalID := make(map[string]string, len(plan.Tasks))
	for _, spec := range plan.Tasks {
		globalID[spec.LocalID] = fmt.Sprintf("%s_%s", task.WorkflowID, shortuuid.New())
	}

	now := time.Now().UTC()
	createdIDs := make([]string, 0, len(plan.Tasks))
	edges := make([]map[string]string, 0)

	for _, spec := range plan.Tasks {
		deps := make([]string, 0, len(spec.Dependencies))
		for _, localDep := range spec.Dependencies {
			deps = append(deps, globalID[localDep])
			edges = append(edges, map[string]string{"from": globalID[localDep], "to": globalID[spec.LocalID]})
		}

		status := store.TaskPending
		if len(deps) > 0 {
			status = store.TaskBlocked
		}

		child := &store.Task{
			ID:           globalID[spec.LocalID],
			WorkflowID:   task.WorkflowID,
			Type:         spec.Type,
			Status:       status,
			Dependencies: deps,
			MaxRetries:   task.MaxRetries,
			InputContext: spec.Input,
			CreatedAt:    now,
		}
		if child.InputContext == nil {
			child.InputContext = map[string]any{}
		}
		if err := p.store.InsertTask(ctx, child); err != nil {
			slog.Error("planner: insert child task failed", "task_id", task.ID, "child_id", child.ID, "error", err)
			p.store.RecordLog(ctx, store.LogError, "planner",
				fmt.Sprintf("insert child task %s failed: %v", child.ID, err), &task.WorkflowID, &task.ID)
			return nil, fmt.Errorf("planner: insert child task %s: %w", child.ID, err)
		}
		createdIDs = append(createdIDs, child.ID)
	}

	slog.Info("planner: plan decomposed", "task_id", task.ID, "children", len(createdIDs))
	p.store.RecordLog(ctx, store.LogInfo, "planner",
		fmt.Sprintf("plan task %s decomposed into %d child tasks", task.ID, len(createdIDs)),
		&task.WorkflowID, &task.ID)

	return map[string]any{
		"analysis":   plan.Analysis,
		"created_ids": createdIDs,
		"edges":       edges,
	}, nil
}
