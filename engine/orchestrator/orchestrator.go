// Package orchestrator implements the three maintenance passes of
// spec.md §4.3 — dependency resolution, lease reclamation, workflow
// aggregation — run in that fixed order on every tick. Unlike the
// teacher's in-process DAGScheduler, which drives execution directly
// off an in-memory ready queue, these passes only ever scan and
// update_one against the store: the actual execution happens in a
// separate engine/worker process.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/hrygo/taskmesh/store"
)

// Notifier is invoked on a workflow's first transition into a
// terminal status. engine/notify.Telegram implements it; nil is a
// valid, no-op Notifier.
type Notifier interface {
	NotifyWorkflowTerminal(ctx context.Context, wf *store.Workflow)
}

// MetricsRecorder receives counters emitted by each maintenance pass.
// A nil MetricsRecorder on Orchestrator is valid and records nothing.
type MetricsRecorder interface {
	RecordLeaseReclaimed()
	RecordWorkflowTerminal(status string)
	RecordOrchestratorTick(d time.Duration)
	SetWorkersOnline(n int)
}

// Orchestrator runs the three maintenance passes on a ticker.
type Orchestrator struct {
	Store        *store.Store
	LeaseTTL     time.Duration
	PollInterval time.Duration
	Notifier     Notifier
	Metrics      MetricsRecorder
}

// Run ticks the orchestrator until ctx is cancelled, following the
// select/default polling shape of
// ai/agents/orchestrator/dag_scheduler.go's Run loop, repurposed from
// in-memory task dispatch to store-scan maintenance passes.
func (o *Orchestrator) Run(ctx context.Context) error {
	interval := o.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := o.Tick(ctx); err != nil {
				slog.Warn("orchestrator: tick failed", "error", err)
			}
		}
	}
}

// Tick runs resolveDependencies, reclaimLeases, aggregateWorkflows in
// that order, matching spec.md §4.3's required pass ordering.
func (o *Orchestrator) Tick(ctx context.Context) error {
	start := time.Now()
	if err := o.resolveDependencies(ctx); err != nil {
		return err
	}
	if err := o.reclaimLeases(ctx); err != nil {
		return err
	}
	if err := o.aggregateWorkflows(ctx); err != nil {
		return err
	}
	if o.Metrics != nil {
		if workers, err := o.Store.ListWorkers(ctx); err != nil {
			slog.Warn("orchestrator: failed to list workers for metrics", "error", err)
		} else {
			online := 0
			for _, w := range workers {
				if w.Status == store.WorkerOnline {
					online++
				}
			}
			o.Metrics.SetWorkersOnline(online)
		}
	}
	elapsed := time.Since(start)
	if o.Metrics != nil {
		o.Metrics.RecordOrchestratorTick(elapsed)
	}
	slog.Debug("orchestrator: tick complete", "duration_ms", elapsed.Milliseconds())
	return nil
}
