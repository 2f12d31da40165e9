// Package sqlite implements store/db.Driver on top of database/sql and
// modernc.org/sqlite, the teacher's cgo-free driver of choice for its
// single-file backend (store/db/sqlite in 88lin-divinesense). Atomic
// claim is realized with a single-writer BEGIN IMMEDIATE transaction
// rather than Postgres's FOR UPDATE SKIP LOCKED, since SQLite has no
// row-level locking.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

// DB is the SQLite-backed store.Driver implementation. The pool is
// capped at a single connection: SQLite serializes writers at the
// file level anyway, and a single *sql.DB connection turns that into
// an in-process mutex, which is what makes BEGIN IMMEDIATE sufficient
// for ClaimTask's atomicity instead of needing app-level locking.
type DB struct {
	db *sql.DB
}

// Open opens (and creates, if absent) the SQLite database file at dsn.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if _, err := conn.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}
	return &DB{db: conn}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS workflows (
	id TEXT PRIMARY KEY,
	goal TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL REFERENCES workflows(id),
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	dependencies TEXT NOT NULL DEFAULT '[]',
	retry_count INTEGER NOT NULL DEFAULT 0,
	max_retries INTEGER NOT NULL DEFAULT 3,
	worker_lock TEXT,
	locked_at TIMESTAMP,
	input_context TEXT NOT NULL DEFAULT '{}',
	output_artifact TEXT,
	last_error TEXT,
	created_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP,
	failed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tasks_status_type ON tasks (status, type);
CREATE INDEX IF NOT EXISTS idx_tasks_status_locked_at ON tasks (status, locked_at);
CREATE INDEX IF NOT EXISTS idx_tasks_workflow_id ON tasks (workflow_id);

CREATE TABLE IF NOT EXISTS worker_registrations (
	worker_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	task_types TEXT NOT NULL,
	status TEXT NOT NULL,
	last_heartbeat TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TIMESTAMP NOT NULL,
	level TEXT NOT NULL,
	component TEXT NOT NULL,
	message TEXT NOT NULL,
	workflow_id TEXT,
	task_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_logs_workflow_id ON logs (workflow_id);
`
