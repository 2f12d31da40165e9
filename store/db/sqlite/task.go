package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hrygo/taskmesh/store"
)

func (d *DB) InsertTask(ctx context.Context, t *store.Task) error {
	depsJSON, err := json.Marshal(nonNilStrings(t.Dependencies))
	if err != nil {
		return fmt.Errorf("sqlite: marshal dependencies: %w", err)
	}
	inputJSON, err := marshalMap(t.InputContext)
	if err != nil {
		return fmt.Errorf("sqlite: marshal input_context: %w", err)
	}
	outputJSON, err := marshalMap(t.OutputArtifact)
	if err != nil {
		return fmt.Errorf("sqlite: marshal output_artifact: %w", err)
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO tasks (
			id, workflow_id, type, status, dependencies,
			retry_count, max_retries, worker_lock, locked_at,
			input_context, output_artifact, last_error,
			created_at, completed_at, failed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.WorkflowID, t.Type, t.Status, string(depsJSON),
		t.RetryCount, t.MaxRetries, t.WorkerLock, t.LockedAt,
		string(inputJSON), string(outputJSON), t.LastError,
		t.CreatedAt, t.CompletedAt, t.FailedAt)
	if isUniqueConstraint(err) {
		return store.ErrDuplicateID
	}
	if err != nil {
		return fmt.Errorf("sqlite: insert task: %w", err)
	}
	return nil
}

func (d *DB) GetTask(ctx context.Context, id string) (*store.Task, error) {
	row := d.db.QueryRowContext(ctx, taskSelectSQL+` WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get task: %w", err)
	}
	return t, nil
}

func (d *DB) ListTasks(ctx context.Context, filter store.TaskFilter) ([]*store.Task, error) {
	query := taskSelectSQL + ` WHERE 1=1`
	var args []any
	if filter.WorkflowID != nil {
		query += ` AND workflow_id = ?`
		args = append(args, *filter.WorkflowID)
	}
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, *filter.Status)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list tasks: %w", err)
	}
	defer rows.Close()

	var out []*store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ClaimTask realizes the atomic find_one_and_update of spec.md §4.2.1
// with a BEGIN IMMEDIATE transaction: the connection pool is capped at
// one (see Open), so the immediate write lock this acquires serializes
// every concurrent claimant through this critical section exactly the
// way Postgres's FOR UPDATE SKIP LOCKED does for a multi-connection
// pool.
func (d *DB) ClaimTask(ctx context.Context, workerID string, taskTypes []string, now int64) (*store.Task, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite: acquire claim connection: %w", err)
	}
	defer conn.Close()

	// The transaction is opened by hand so it takes the write lock
	// immediately instead of deferring acquisition until the first write.
	if _, err := conn.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		return nil, fmt.Errorf("sqlite: begin immediate: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), `ROLLBACK`)
		}
	}()

	placeholders, args := inClause(taskTypes)
	row := conn.QueryRowContext(ctx, `
		SELECT id FROM tasks
		WHERE status = 'PENDING' AND type IN (`+placeholders+`)
		ORDER BY created_at ASC LIMIT 1`, args...)

	var id string
	if err := row.Scan(&id); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("sqlite: find claimable task: %w", err)
	}

	lockedAt := time.Unix(now, 0).UTC()
	if _, err := conn.ExecContext(ctx, `
		UPDATE tasks SET status = 'IN_PROGRESS', worker_lock = ?, locked_at = ?
		WHERE id = ?`, workerID, lockedAt, id); err != nil {
		return nil, fmt.Errorf("sqlite: lock claimed task: %w", err)
	}

	t, err := scanTask(conn.QueryRowContext(ctx, taskSelectSQL+` WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("sqlite: reload claimed task: %w", err)
	}

	if _, err := conn.ExecContext(ctx, `COMMIT`); err != nil {
		return nil, fmt.Errorf("sqlite: commit claim: %w", err)
	}
	committed = true
	return t, nil
}

func (d *DB) CompleteTask(ctx context.Context, id string, artifact map[string]any, now int64) error {
	artifactJSON, err := marshalMap(artifact)
	if err != nil {
		return fmt.Errorf("sqlite: marshal output_artifact: %w", err)
	}
	completedAt := time.Unix(now, 0).UTC()
	res, err := d.db.ExecContext(ctx, `
		UPDATE tasks SET
			status = 'COMPLETED',
			output_artifact = ?,
			worker_lock = NULL,
			locked_at = NULL,
			completed_at = ?
		WHERE id = ?`, string(artifactJSON), completedAt, id)
	if err != nil {
		return fmt.Errorf("sqlite: complete task: %w", err)
	}
	return requireRowsAffected(res)
}

func (d *DB) RetryOrFailTask(ctx context.Context, id string, lastError string, now int64) error {
	failedAt := time.Unix(now, 0).UTC()
	res, err := d.db.ExecContext(ctx, `
		UPDATE tasks SET
			retry_count = retry_count + 1,
			last_error = ?,
			worker_lock = NULL,
			locked_at = NULL,
			status = CASE WHEN retry_count + 1 > max_retries THEN 'FAILED' ELSE 'PENDING' END,
			failed_at = CASE WHEN retry_count + 1 > max_retries THEN ? ELSE failed_at END
		WHERE id = ?`, lastError, failedAt, id)
	if err != nil {
		return fmt.Errorf("sqlite: retry or fail task: %w", err)
	}
	return requireRowsAffected(res)
}

// UnblockTask merges dependencyOutputs into the JSON-encoded
// input_context.dependency_outputs field. SQLite lacks Postgres's
// jsonb_set/concatenation operators, so the merge is read-modify-write
// inside a transaction instead of a single statement.
func (d *DB) UnblockTask(ctx context.Context, id string, dependencyOutputs map[string]any) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin unblock tx: %w", err)
	}
	defer tx.Rollback()

	var status string
	var inputJSON []byte
	err = tx.QueryRowContext(ctx, `SELECT status, input_context FROM tasks WHERE id = ?`, id).
		Scan(&status, &inputJSON)
	if err == sql.ErrNoRows {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("sqlite: read task for unblock: %w", err)
	}
	if status != string(store.TaskBlocked) {
		return nil
	}

	inputContext, err := unmarshalMap(inputJSON)
	if err != nil {
		return fmt.Errorf("sqlite: unmarshal input_context: %w", err)
	}
	if inputContext == nil {
		inputContext = map[string]any{}
	}
	existing, _ := inputContext["dependency_outputs"].(map[string]any)
	if existing == nil {
		existing = map[string]any{}
	}
	for k, v := range dependencyOutputs {
		existing[k] = v
	}
	inputContext["dependency_outputs"] = existing

	mergedJSON, err := json.Marshal(inputContext)
	if err != nil {
		return fmt.Errorf("sqlite: marshal merged input_context: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks SET status = 'PENDING', input_context = ? WHERE id = ?`,
		string(mergedJSON), id); err != nil {
		return fmt.Errorf("sqlite: write unblocked task: %w", err)
	}
	return tx.Commit()
}

func (d *DB) FailTaskDependency(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE tasks SET status = 'FAILED', last_error = 'dependency failed', failed_at = ?
		WHERE id = ? AND status = 'BLOCKED'`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: fail task dependency: %w", err)
	}
	return nil
}

func (d *DB) ReleaseInvariantViolation(ctx context.Context, id string, now int64) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE tasks SET
			status = 'PENDING',
			retry_count = retry_count + 1,
			worker_lock = NULL,
			locked_at = NULL
		WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: release invariant violation: %w", err)
	}
	return requireRowsAffected(res)
}

const taskColumns = `
	id, workflow_id, type, status, dependencies,
	retry_count, max_retries, worker_lock, locked_at,
	input_context, output_artifact, last_error,
	created_at, completed_at, failed_at`

const taskSelectSQL = `SELECT` + taskColumns + ` FROM tasks`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*store.Task, error) {
	t := &store.Task{}
	var depsJSON, inputJSON string
	var outputJSON sql.NullString
	if err := row.Scan(
		&t.ID, &t.WorkflowID, &t.Type, &t.Status, &depsJSON,
		&t.RetryCount, &t.MaxRetries, &t.WorkerLock, &t.LockedAt,
		&inputJSON, &outputJSON, &t.LastError,
		&t.CreatedAt, &t.CompletedAt, &t.FailedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(depsJSON), &t.Dependencies); err != nil {
		return nil, fmt.Errorf("unmarshal dependencies: %w", err)
	}
	var err error
	if t.InputContext, err = unmarshalMap([]byte(inputJSON)); err != nil {
		return nil, fmt.Errorf("unmarshal input_context: %w", err)
	}
	if outputJSON.Valid {
		if t.OutputArtifact, err = unmarshalMap([]byte(outputJSON.String)); err != nil {
			return nil, fmt.Errorf("unmarshal output_artifact: %w", err)
		}
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

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// inClause builds a "?,?,?" placeholder list for an IN (...) clause,
// since database/sql has no portable array-binding support the way
// lib/pq's pq.Array gives the Postgres driver.
func inClause(values []string) (string, []any) {
	placeholders := ""
	args := make([]any, len(values))
	for i, v := range values {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = v
	}
	return placeholders, args
}
