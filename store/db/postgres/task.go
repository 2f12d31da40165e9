package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hrygo/taskmesh/store"
)

func (d *DB) InsertTask(ctx context.Context, t *store.Task) error {
	inputJSON, err := marshalMap(t.InputContext)
	if err != nil {
		return fmt.Errorf("postgres: marshal input_context: %w", err)
	}
	outputJSON, err := marshalMap(t.OutputArtifact)
	if err != nil {
		return fmt.Errorf("postgres: marshal output_artifact: %w", err)
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO tasks (
			id, workflow_id, type, status, dependencies,
			retry_count, max_retries, worker_lock, locked_at,
			input_context, output_artifact, last_error,
			created_at, completed_at, failed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		t.ID, t.WorkflowID, t.Type, t.Status, pq.Array(t.Dependencies),
		t.RetryCount, t.MaxRetries, t.WorkerLock, t.LockedAt,
		inputJSON, outputJSON, t.LastError,
		t.CreatedAt, t.CompletedAt, t.FailedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicateID
	}
	if err != nil {
		return fmt.Errorf("postgres: insert task: %w", err)
	}
	return nil
}

func (d *DB) GetTask(ctx context.Context, id string) (*store.Task, error) {
	row := d.db.QueryRowContext(ctx, taskSelectSQL+` WHERE id = $1`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get task: %w", err)
	}
	return t, nil
}

func (d *DB) ListTasks(ctx context.Context, filter store.TaskFilter) ([]*store.Task, error) {
	query := taskSelectSQL + ` WHERE TRUE`
	var args []any
	if filter.WorkflowID != nil {
		args = append(args, *filter.WorkflowID)
		query += fmt.Sprintf(" AND workflow_id = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tasks: %w", err)
	}
	defer rows.Close()

	var out []*store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ClaimTask is the atomic find_one_and_update of spec.md §4.2.1: the
// subquery picks the oldest PENDING task matching one of taskTypes and
// locks it with FOR UPDATE SKIP LOCKED so concurrent claimants never
// block on, or double-claim, the same row.
func (d *DB) ClaimTask(ctx context.Context, workerID string, taskTypes []string, now int64) (*store.Task, error) {
	lockedAt := time.Unix(now, 0).UTC()
	row := d.db.QueryRowContext(ctx, `
		UPDATE tasks SET
			status = 'IN_PROGRESS',
			worker_lock = $1,
			locked_at = $2
		WHERE id = (
			SELECT id FROM tasks
			WHERE status = 'PENDING' AND type = ANY($3)
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+taskColumns, workerID, lockedAt, pq.Array(taskTypes))

	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: claim task: %w", err)
	}
	return t, nil
}

func (d *DB) CompleteTask(ctx context.Context, id string, artifact map[string]any, now int64) error {
	artifactJSON, err := marshalMap(artifact)
	if err != nil {
		return fmt.Errorf("postgres: marshal output_artifact: %w", err)
	}
	completedAt := time.Unix(now, 0).UTC()
	res, err := d.db.ExecContext(ctx, `
		UPDATE tasks SET
			status = 'COMPLETED',
			output_artifact = $2,
			worker_lock = NULL,
			locked_at = NULL,
			completed_at = $3
		WHERE id = $1`, id, artifactJSON, completedAt)
	if err != nil {
		return fmt.Errorf("postgres: complete task: %w", err)
	}
	return requireRowsAffected(res)
}

// RetryOrFailTask computes retry_count+1 vs max_retries in the same
// statement that performs the update, so a concurrent reclaim by the
// orchestrator and a worker's own failure report can never race each
// other into an inconsistent retry_count (spec.md §4.2.3, §4.3.2).
func (d *DB) RetryOrFailTask(ctx context.Context, id string, lastError string, now int64) error {
	failedAt := time.Unix(now, 0).UTC()
	res, err := d.db.ExecContext(ctx, `
		UPDATE tasks SET
			retry_count = retry_count + 1,
			last_error = $2,
			worker_lock = NULL,
			locked_at = NULL,
			status = CASE WHEN retry_count + 1 > max_retries THEN 'FAILED' ELSE 'PENDING' END,
			failed_at = CASE WHEN retry_count + 1 > max_retries THEN $3::timestamptz ELSE failed_at END
		WHERE id = $1`, id, lastError, failedAt)
	if err != nil {
		return fmt.Errorf("postgres: retry or fail task: %w", err)
	}
	return requireRowsAffected(res)
}

// UnblockTask merges dependencyOutputs into
// input_context.dependency_outputs and transitions BLOCKED -> PENDING
// (spec.md §4.3.1). The WHERE status = 'BLOCKED' guard makes the call
// a no-op, not an error, if another dependency already failed the task
// first.
func (d *DB) UnblockTask(ctx context.Context, id string, dependencyOutputs map[string]any) error {
	mergeJSON, err := marshalMap(dependencyOutputs)
	if err != nil {
		return fmt.Errorf("postgres: marshal dependency outputs: %w", err)
	}
	_, err = d.db.ExecContext(ctx, `
		UPDATE tasks SET
			status = 'PENDING',
			input_context = jsonb_set(
				coalesce(input_context, '{}'::jsonb),
				'{dependency_outputs}',
				coalesce(input_context->'dependency_outputs', '{}'::jsonb) || $2::jsonb,
				true
			)
		WHERE id = $1 AND status = 'BLOCKED'`, id, mergeJSON)
	if err != nil {
		return fmt.Errorf("postgres: unblock task: %w", err)
	}
	return nil
}

func (d *DB) FailTaskDependency(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE tasks SET
			status = 'FAILED',
			last_error = 'dependency failed',
			failed_at = now()
		WHERE id = $1 AND status = 'BLOCKED'`, id)
	if err != nil {
		return fmt.Errorf("postgres: fail task dependency: %w", err)
	}
	return nil
}

// ReleaseInvariantViolation returns an IN_PROGRESS task to PENDING
// with an incremented retry_count when a worker rejects a claim
// outside its declared task_types (spec.md §7, error kind 5). Unlike
// RetryOrFailTask it never routes to FAILED: the task was never
// actually attempted.
func (d *DB) ReleaseInvariantViolation(ctx context.Context, id string, now int64) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE tasks SET
			status = 'PENDING',
			retry_count = retry_count + 1,
			worker_lock = NULL,
			locked_at = NULL
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: release invariant violation: %w", err)
	}
	return requireRowsAffected(res)
}

const taskColumns = `
	id, workflow_id, type, status, dependencies,
	retry_count, max_retries, worker_lock, locked_at,
	input_context, output_artifact, last_error,
	created_at, completed_at, failed_at`

const taskSelectSQL = `SELECT` + taskColumns + ` FROM tasks`

// rowScanner abstracts *sql.Row and *sql.Rows, both of which expose
// Scan with an identical signature.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*store.Task, error) {
	t := &store.Task{}
	var inputJSON, outputJSON []byte
	if err := row.Scan(
		&t.ID, &t.WorkflowID, &t.Type, &t.Status, pq.Array(&t.Dependencies),
		&t.RetryCount, &t.MaxRetries, &t.WorkerLock, &t.LockedAt,
		&inputJSON, &outputJSON, &t.LastError,
		&t.CreatedAt, &t.CompletedAt, &t.FailedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if t.InputContext, err = unmarshalMap(inputJSON); err != nil {
		return nil, fmt.Errorf("unmarshal input_context: %w", err)
	}
	if t.OutputArtifact, err = unmarshalMap(outputJSON); err != nil {
		return nil, fmt.Errorf("unmarshal output_artifact: %w", err)
	}
	return t, nil
}

func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		m = map[string]any{}
	}
	return json.Marshal(m)
}

func unmarshalMap(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
