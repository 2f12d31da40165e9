// Package worker implements the claim/execute/retry loop of spec.md
// §4.2: one goroutine per Worker value, polling the store for a task
// matching its declared task types, never multiplexing more than one
// task at a time per worker.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hrygo/taskmesh/engine/handler"
	"github.com/hrygo/taskmesh/store"
)

// MetricsRecorder receives counters emitted on claim and execution.
// A nil MetricsRecorder on Worker is valid and simply records nothing.
type MetricsRecorder interface {
	RecordTaskClaimed(taskType string)
	RecordTaskOutcome(taskType, outcome string, latency time.Duration)
}

// Worker claims and executes tasks of its declared TaskTypes.
type Worker struct {
	ID        string
	Name      string
	TaskTypes []string

	Store    *store.Store
	Registry *handler.Registry
	Metrics  MetricsRecorder

	PollInterval   time.Duration
	BackoffOnError time.Duration
}

// Run executes the polling loop of spec.md §4.2 until ctx is
// cancelled. On cancellation it marks the registration OFFLINE and
// returns without releasing any task it currently holds — an
// in-progress claim's lease is reclaimed by the orchestrator, not by
// the worker itself (spec.md §5).
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("worker: starting", "worker_id", w.ID, "name", w.Name, "task_types", w.TaskTypes)
	defer func() {
		offlineCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.Store.SetWorkerOffline(offlineCtx, w.ID); err != nil {
			slog.Warn("worker: failed to mark offline on shutdown", "worker_id", w.ID, "error", err)
		}
		slog.Info("worker: stopped", "worker_id", w.ID)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		claimed, err := w.tick(ctx)
		if err != nil {
			slog.Warn("worker: tick failed", "worker_id", w.ID, "error", err)
			w.Store.RecordLog(ctx, store.LogWarn, "worker", fmt.Sprintf("tick failed: %v", err), nil, nil)
			sleep(ctx, w.BackoffOnError)
			continue
		}
		if !claimed {
			sleep(ctx, w.PollInterval)
		}
	}
}

// tick performs one heartbeat+claim+execute cycle and reports whether
// a task was claimed (so the caller can skip the poll-interval sleep
// and immediately try for the next one).
func (w *Worker) tick(ctx context.Context) (bool, error) {
	now := time.Now().UTC()
	if err := w.Store.UpsertWorkerRegistration(ctx, &store.WorkerRegistration{
		WorkerID:      w.ID,
		Name:          w.Name,
		TaskTypes:     w.TaskTypes,
		Status:        store.WorkerOnline,
		LastHeartbeat: now,
	}); err != nil {
		return false, err
	}

	task, err := w.Store.ClaimTask(ctx, w.ID, w.TaskTypes, now.Unix())
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}
	if w.Metrics != nil {
		w.Metrics.RecordTaskClaimed(task.Type)
	}

	if !w.ownsType(task.Type) {
		// The claim query only matches our declared task_types, so
		// this should be unreachable; treat it as the invariant
		// violation of spec.md §7 error kind 5 rather than executing
		// work we were not configured for.
		slog.Warn("worker: claimed task outside declared task_types", "worker_id", w.ID, "task_id", task.ID, "type", task.Type)
		w.Store.RecordLog(ctx, store.LogWarn, "worker",
			fmt.Sprintf("claimed task %s outside declared task_types %v", task.ID, w.TaskTypes),
			&task.WorkflowID, &task.ID)
		if relErr := w.Store.ReleaseInvariantViolation(ctx, task.ID, time.Now().Unix()); relErr != nil {
			slog.Warn("worker: failed to release invariant-violating claim", "task_id", task.ID, "error", relErr)
			w.Store.RecordLog(ctx, store.LogWarn, "worker",
				fmt.Sprintf("failed to release invariant-violating claim %s: %v", task.ID, relErr),
				&task.WorkflowID, &task.ID)
		}
		return true, nil
	}

	w.execute(ctx, task)
	return true, nil
}

func (w *Worker) execute(ctx context.Context, task *store.Task) {
	slog.Info("worker: executing task", "worker_id", w.ID, "task_id", task.ID, "type", task.Type)
	start := time.Now()

	artifact, err := w.Registry.Dispatch(ctx, task)
	completedAt := time.Now().UTC()
	elapsed := time.Since(start)

	if err != nil {
		slog.Warn("worker: task failed", "worker_id", w.ID, "task_id", task.ID, "error", err, "duration_ms", elapsed.Milliseconds())
		w.Store.RecordLog(ctx, store.LogWarn, "worker",
			fmt.Sprintf("task %s failed: %v", task.ID, err), &task.WorkflowID, &task.ID)
		if retryErr := w.Store.RetryOrFailTask(ctx, task.ID, err.Error(), completedAt.Unix()); retryErr != nil {
			slog.Error("worker: failed to record task failure", "task_id", task.ID, "error", retryErr)
			w.Store.RecordLog(ctx, store.LogError, "worker",
				fmt.Sprintf("failed to record failure for task %s: %v", task.ID, retryErr), &task.WorkflowID, &task.ID)
		}
		if w.Metrics != nil {
			w.Metrics.RecordTaskOutcome(task.Type, "retried_or_failed", elapsed)
		}
		return
	}

	slog.Info("worker: task completed", "worker_id", w.ID, "task_id", task.ID, "duration_ms", elapsed.Milliseconds())
	if err := w.Store.CompleteTask(ctx, task.ID, artifact, completedAt.Unix()); err != nil {
		slog.Error("worker: failed to record task completion", "task_id", task.ID, "error", err)
		w.Store.RecordLog(ctx, store.LogError, "worker",
			fmt.Sprintf("failed to record completion for task %s: %v", task.ID, err), &task.WorkflowID, &task.ID)
	} else {
		w.Store.RecordLog(ctx, store.LogInfo, "worker",
			fmt.Sprintf("task %s completed", task.ID), &task.WorkflowID, &task.ID)
	}
	if w.Metrics != nil {
		w.Metrics.RecordTaskOutcome(task.Type, "completed", elapsed)
	}
}

func (w *Worker) ownsType(taskType string) bool {
	for _, t := range w.TaskTypes {
		if t == taskType {
			return true
		}
	}
	return false
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
