package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hrygo/taskmesh/store"
)

// reclaimLeases implements spec.md §4.3.2: any IN_PROGRESS task whose
// locked_at is older than LeaseTTL is assumed to belong to a crashed
// or hung worker and is returned to the retry/fail path with
// last_error = "lock timeout", the same update_one used by a
// worker's own failure report.
func (o *Orchestrator) reclaimLeases(ctx context.Context) error {
	inProgress := store.TaskInProgress
	tasks, err := o.Store.ListTasks(ctx, store.TaskFilter{Status: &inProgress})
	if err != nil {
		return fmt.Errorf("orchestrator: list in-progress tasks: %w", err)
	}

	now := time.Now().UTC()
	for _, task := range tasks {
		if task.LockedAt == nil {
			continue
		}
		if now.Sub(*task.LockedAt) < o.LeaseTTL {
			continue
		}
		slog.Warn("orchestrator: reclaiming expired lease", "task_id", task.ID, "worker_lock", strPtr(task.WorkerLock), "locked_at", task.LockedAt)
		o.Store.RecordLog(ctx, store.LogWarn, "orchestrator",
			fmt.Sprintf("reclaiming expired lease for task %s (worker %s)", task.ID, strPtr(task.WorkerLock)),
			&task.WorkflowID, &task.ID)
		if err := o.Store.RetryOrFailTask(ctx, task.ID, "lock timeout", now.Unix()); err != nil {
			slog.Warn("orchestrator: failed to reclaim lease", "task_id", task.ID, "error", err)
			o.Store.RecordLog(ctx, store.LogWarn, "orchestrator",
				fmt.Sprintf("failed to reclaim lease for task %s: %v", task.ID, err),
				&task.WorkflowID, &task.ID)
			continue
		}
		if o.Metrics != nil {
			o.Metrics.RecordLeaseReclaimed()
		}
	}
	return nil
}

func strPtr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
