package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hrygo/taskmesh/store"
)

func (d *DB) InsertWorkflow(ctx context.Context, wf *store.Workflow) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO workflows (id, goal, status, created_at)
		VALUES (?, ?, ?, ?)`,
		wf.ID, wf.Goal, wf.Status, wf.CreatedAt)
	if isUniqueConstraint(err) {
		return store.ErrDuplicateID
	}
	if err != nil {
		return fmt.Errorf("sqlite: insert workflow: %w", err)
	}
	return nil
}

func (d *DB) GetWorkflow(ctx context.Context, id string) (*store.Workflow, error) {
	wf := &store.Workflow{}
	err := d.db.QueryRowContext(ctx, `
		SELECT id, goal, status, created_at FROM workflows WHERE id = ?`, id).
		Scan(&wf.ID, &wf.Goal, &wf.Status, &wf.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get workflow: %w", err)
	}
	return wf, nil
}

func (d *DB) ListWorkflows(ctx context.Context, filter store.WorkflowFilter) ([]*store.Workflow, error) {
	query := `SELECT id, goal, status, created_at FROM workflows`
	var args []any
	if filter.Status != nil {
		query += ` WHERE status = ?`
		args = append(args, *filter.Status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list workflows: %w", err)
	}
	defer rows.Close()

	var out []*store.Workflow
	for rows.Next() {
		wf := &store.Workflow{}
		if err := rows.Scan(&wf.ID, &wf.Goal, &wf.Status, &wf.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan workflow: %w", err)
		}
		out = append(out, wf)
	}
	return out, rows.Err()
}

func (d *DB) SetWorkflowStatus(ctx context.Context, id string, status store.WorkflowStatus) error {
	res, err := d.db.ExecContext(ctx, `UPDATE workflows SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("sqlite: set workflow status: %w", err)
	}
	return requireRowsAffected(res)
}

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// isUniqueConstraint reports whether err came from violating a UNIQUE
// or PRIMARY KEY constraint. modernc.org/sqlite surfaces this as a
// *sqlite.Error whose message contains "UNIQUE constraint failed"; we
// match on the message because the driver does not export a typed
// error for it.
func isUniqueConstraint(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY constraint failed")
}
