package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hrygo/taskmesh/store"
)

func (d *DB) InsertWorkflow(ctx context.Context, wf *store.Workflow) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO workflows (id, goal, status, created_at)
		VALUES ($1, $2, $3, $4)`,
		wf.ID, wf.Goal, wf.Status, wf.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicateID
	}
	if err != nil {
		return fmt.Errorf("postgres: insert workflow: %w", err)
	}
	return nil
}

func (d *DB) GetWorkflow(ctx context.Context, id string) (*store.Workflow, error) {
	wf := &store.Workflow{}
	err := d.db.QueryRowContext(ctx, `
		SELECT id, goal, status, created_at FROM workflows WHERE id = $1`, id).
		Scan(&wf.ID, &wf.Goal, &wf.Status, &wf.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get workflow: %w", err)
	}
	return wf, nil
}

func (d *DB) ListWorkflows(ctx context.Context, filter store.WorkflowFilter) ([]*store.Workflow, error) {
	query := `SELECT id, goal, status, created_at FROM workflows`
	var args []any
	if filter.Status != nil {
		query += ` WHERE status = $1`
		args = append(args, *filter.Status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list workflows: %w", err)
	}
	defer rows.Close()

	var out []*store.Workflow
	for rows.Next() {
		wf := &store.Workflow{}
		if err := rows.Scan(&wf.ID, &wf.Goal, &wf.Status, &wf.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan workflow: %w", err)
		}
		out = append(out, wf)
	}
	return out, rows.Err()
}

func (d *DB) SetWorkflowStatus(ctx context.Context, id string, status store.WorkflowStatus) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE workflows SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("postgres: set workflow status: %w", err)
	}
	return requireRowsAffected(res)
}

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505), the code raised by our PRIMARY KEY(id) columns.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
