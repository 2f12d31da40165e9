package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hrygo/taskmesh/store"
)

func (d *DB) UpsertWorkerRegistration(ctx context.Context, reg *store.WorkerRegistration) error {
	taskTypesJSON, err := json.Marshal(nonNilStrings(reg.TaskTypes))
	if err != nil {
		return fmt.Errorf("sqlite: marshal task_types: %w", err)
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO worker_registrations (worker_id, name, task_types, status, last_heartbeat)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (worker_id) DO UPDATE SET
			name = excluded.name,
			task_types = excluded.task_types,
			status = excluded.status,
			last_heartbeat = excluded.last_heartbeat`,
		reg.WorkerID, reg.Name, string(taskTypesJSON), reg.Status, reg.LastHeartbeat)
	if err != nil {
		return fmt.Errorf("sqlite: upsert worker registration: %w", err)
	}
	return nil
}

func (d *DB) SetWorkerOffline(ctx context.Context, workerID string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE worker_registrations SET status = 'OFFLINE' WHERE worker_id = ?`, workerID)
	if err != nil {
		return fmt.Errorf("sqlite: set worker offline: %w", err)
	}
	return nil
}

func (d *DB) ListWorkers(ctx context.Context) ([]*store.WorkerRegistration, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT worker_id, name, task_types, status, last_heartbeat
		FROM worker_registrations ORDER BY last_heartbeat DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list workers: %w", err)
	}
	defer rows.Close()

	var out []*store.WorkerRegistration
	for rows.Next() {
		reg := &store.WorkerRegistration{}
		var taskTypesJSON string
		if err := rows.Scan(&reg.WorkerID, &reg.Name, &taskTypesJSON, &reg.Status, &reg.LastHeartbeat); err != nil {
			return nil, fmt.Errorf("sqlite: scan worker: %w", err)
		}
		if err := json.Unmarshal([]byte(taskTypesJSON), &reg.TaskTypes); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal task_types: %w", err)
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}
