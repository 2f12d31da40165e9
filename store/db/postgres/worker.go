package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/hrygo/taskmesh/store"
)

// UpsertWorkerRegistration records (or refreshes) a worker's heartbeat
// (spec.md §4.4). ON CONFLICT keeps this a single round trip instead
// of a read-then-write.
func (d *DB) UpsertWorkerRegistration(ctx context.Context, reg *store.WorkerRegistration) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO worker_registrations (worker_id, name, task_types, status, last_heartbeat)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (worker_id) DO UPDATE SET
			name = EXCLUDED.name,
			task_types = EXCLUDED.task_types,
			status = EXCLUDED.status,
			last_heartbeat = EXCLUDED.last_heartbeat`,
		reg.WorkerID, reg.Name, pq.Array(reg.TaskTypes), reg.Status, reg.LastHeartbeat)
	if err != nil {
		return fmt.Errorf("postgres: upsert worker registration: %w", err)
	}
	return nil
}

func (d *DB) SetWorkerOffline(ctx context.Context, workerID string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE worker_registrations SET status = 'OFFLINE' WHERE worker_id = $1`, workerID)
	if err != nil {
		return fmt.Errorf("postgres: set worker offline: %w", err)
	}
	return nil
}

func (d *DB) ListWorkers(ctx context.Context) ([]*store.WorkerRegistration, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT worker_id, name, task_types, status, last_heartbeat
		FROM worker_registrations ORDER BY last_heartbeat DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list workers: %w", err)
	}
	defer rows.Close()

	var out []*store.WorkerRegistration
	for rows.Next() {
		reg := &store.WorkerRegistration{}
		if err := rows.Scan(&reg.WorkerID, &reg.Name, pq.Array(&reg.TaskTypes), &reg.Status, &reg.LastHeartbeat); err != nil {
			return nil, fmt.Errorf("postgres: scan worker: %w", err)
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}
