package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hrygo/taskmesh/store"
)

// aggregateWorkflows implements spec.md §4.3.3: for every workflow in
// a non-terminal status, its tasks are scanned and the workflow's
// status set according to a fixed precedence — COMPLETED, then
// FAILED, then RUNNING, otherwise left unchanged. The transition is
// idempotent: recomputing the same counts twice yields the same
// SetWorkflowStatus call (or none).
func (o *Orchestrator) aggregateWorkflows(ctx context.Context) error {
	workflows, err := o.Store.ListWorkflows(ctx, store.WorkflowFilter{})
	if err != nil {
		return fmt.Errorf("orchestrator: list workflows: %w", err)
	}

	for _, wf := range workflows {
		if wf.Status.IsTerminal() {
			continue
		}
		if err := o.aggregateOne(ctx, wf); err != nil {
			slog.Warn("orchestrator: aggregate workflow failed", "workflow_id", wf.ID, "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) aggregateOne(ctx context.Context, wf *store.Workflow) error {
	tasks, err := o.Store.ListTasks(ctx, store.TaskFilter{WorkflowID: &wf.ID})
	if err != nil {
		return fmt.Errorf("list tasks for workflow %s: %w", wf.ID, err)
	}
	if len(tasks) == 0 {
		return nil
	}

	var completed, failed, pending, inProgress int
	for _, t := range tasks {
		switch t.Status {
		case store.TaskCompleted:
			completed++
		case store.TaskFailed:
			failed++
		case store.TaskPending:
			pending++
		case store.TaskInProgress:
			inProgress++
		}
	}

	var next store.WorkflowStatus
	switch {
	case completed == len(tasks):
		next = store.WorkflowCompleted
	case failed > 0 && pending == 0 && inProgress == 0:
		next = store.WorkflowFailed
	case pending > 0 || inProgress > 0:
		next = store.WorkflowRunning
	default:
		return nil
	}

	if next == wf.Status {
		return nil
	}
	if err := o.Store.SetWorkflowStatus(ctx, wf.ID, next); err != nil {
		return fmt.Errorf("set workflow %s status to %s: %w", wf.ID, next, err)
	}

	if next.IsTerminal() {
		if o.Metrics != nil {
			o.Metrics.RecordWorkflowTerminal(string(next))
		}
		if o.Notifier != nil {
			updated := *wf
			updated.Status = next
			o.Notifier.NotifyWorkflowTerminal(ctx, &updated)
		}
	}
	return nil
}
