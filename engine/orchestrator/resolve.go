package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hrygo/taskmesh/store"
)

// resolveDependencies implements spec.md §4.3.1: every BLOCKED task is
// checked against its Dependencies; if any dependency has FAILED the
// task fails too (invariant 6), and once every dependency has
// COMPLETED the task is unblocked with their outputs merged into
// input_context.dependency_outputs.
func (o *Orchestrator) resolveDependencies(ctx context.Context) error {
	blocked := store.TaskBlocked
	tasks, err := o.Store.ListTasks(ctx, store.TaskFilter{Status: &blocked})
	if err != nil {
		return fmt.Errorf("orchestrator: list blocked tasks: %w", err)
	}

	for _, task := range tasks {
		if err := o.resolveOne(ctx, task); err != nil {
			slog.Warn("orchestrator: resolve dependency failed", "task_id", task.ID, "error", err)
			o.Store.RecordLog(ctx, store.LogWarn, "orchestrator",
				fmt.Sprintf("resolve dependency failed for task %s: %v", task.ID, err),
				&task.WorkflowID, &task.ID)
		}
	}
	return nil
}

func (o *Orchestrator) resolveOne(ctx context.Context, task *store.Task) error {
	outputs := make(map[string]any, len(task.Dependencies))
	inFlight := false
	for _, depID := range task.Dependencies {
		dep, err := o.Store.GetTask(ctx, depID)
		if err != nil {
			return fmt.Errorf("load dependency %s: %w", depID, err)
		}
		switch dep.Status {
		case store.TaskFailed:
			return o.Store.FailTaskDependency(ctx, task.ID)
		case store.TaskCompleted:
			outputs[depID] = dep.OutputArtifact
		default:
			inFlight = true
		}
	}
	if inFlight {
		// No dependency failed, but one is still in flight; leave task BLOCKED.
		return nil
	}

	return o.Store.UnblockTask(ctx, task.ID, outputs)
}
