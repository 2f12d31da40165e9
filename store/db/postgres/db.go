// Package postgres implements store/db.Driver on top of database/sql
// and github.com/lib/pq, following the QueryRowContext/pq.Array/
// RETURNING idiom used throughout the teacher's store/db/postgres
// package (see store/db/postgres/agent_stats.go in 88lin-divinesense).
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	// registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"
)

// DB is the Postgres-backed store.Driver implementation.
type DB struct {
	db *sql.DB
}

// Open connects to dsn and verifies connectivity with a ping.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &DB{db: conn}, nil
}

// Close releases the connection pool.
func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate applies the schema idempotently (CREATE TABLE IF NOT EXISTS
// + CREATE INDEX IF NOT EXISTS), matching the teacher's
// storeInstance.Migrate(ctx) call made once at process startup.
func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS workflows (
	id TEXT PRIMARY KEY,
	goal TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL REFERENCES workflows(id),
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	dependencies TEXT[] NOT NULL DEFAULT '{}',
	retry_count INT NOT NULL DEFAULT 0,
	max_retries INT NOT NULL DEFAULT 3,
	worker_lock TEXT,
	locked_at TIMESTAMPTZ,
	input_context JSONB NOT NULL DEFAULT '{}'::jsonb,
	output_artifact JSONB,
	last_error TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	failed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_tasks_status_type ON tasks (status, type);
CREATE INDEX IF NOT EXISTS idx_tasks_status_locked_at ON tasks (status, locked_at);
CREATE INDEX IF NOT EXISTS idx_tasks_workflow_id ON tasks (workflow_id);
CREATE INDEX IF NOT EXISTS idx_tasks_dependencies ON tasks USING GIN (dependencies);

CREATE TABLE IF NOT EXISTS worker_registrations (
	worker_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	task_types TEXT[] NOT NULL,
	status TEXT NOT NULL,
	last_heartbeat TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS logs (
	id BIGSERIAL PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
	level TEXT NOT NULL,
	component TEXT NOT NULL,
	message TEXT NOT NULL,
	workflow_id TEXT,
	task_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_logs_workflow_id ON logs (workflow_id);
`
