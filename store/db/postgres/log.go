package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hrygo/taskmesh/store"
)

// AppendLog is an insert-only write: logs are immutable (spec.md §3).
func (d *DB) AppendLog(ctx context.Context, l *store.Log) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO logs (timestamp, level, component, message, workflow_id, task_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		l.Timestamp, l.Level, l.Component, l.Message, l.WorkflowID, l.TaskID)
	if err != nil {
		return fmt.Errorf("postgres: append log: %w", err)
	}
	return nil
}

// GetLogs returns the most recent logs, most-recent-first, optionally
// filtered to one workflow. workflowID = "" means "every workflow"
// (spec.md §6's get_logs(workflow_id?, limit) takes an optional id).
func (d *DB) GetLogs(ctx context.Context, workflowID string, limit int) ([]*store.Log, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if workflowID == "" {
		rows, err = d.db.QueryContext(ctx, `
			SELECT timestamp, level, component, message, workflow_id, task_id
			FROM logs ORDER BY timestamp DESC LIMIT $1`, limit)
	} else {
		rows, err = d.db.QueryContext(ctx, `
			SELECT timestamp, level, component, message, workflow_id, task_id
			FROM logs WHERE workflow_id = $1
			ORDER BY timestamp DESC LIMIT $2`, workflowID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get logs: %w", err)
	}
	defer rows.Close()

	var out []*store.Log
	for rows.Next() {
		l := &store.Log{}
		if err := rows.Scan(&l.Timestamp, &l.Level, &l.Component, &l.Message, &l.WorkflowID, &l.TaskID); err != nil {
			return nil, fmt.Errorf("postgres: scan log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
