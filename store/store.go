// Package store defines the entity model and the facade through which
// every other package talks to the durable store (spec.md §3, §4.1).
// No package outside store/ touches a driver directly.
package store

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Sentinel errors returned by driver implementations so callers can
// branch on store semantics instead of string-matching.
var (
	// ErrDuplicateID is returned by Insert when the id already exists.
	ErrDuplicateID = errors.New("store: duplicate id")
	// ErrNotFound is returned when a lookup by id matches nothing.
	ErrNotFound = errors.New("store: not found")
)

// Driver is the full backend contract the scheduling substrate needs:
// insert/find/find_one_and_update/update_one over the four entity
// families (spec.md §4.1), plus lifecycle management. store/db/postgres
// and store/db/sqlite each implement it; store/db.NewDriver picks one
// based on the profile's StoreURI.
type Driver interface {
	// Workflow
	InsertWorkflow(ctx context.Context, wf *Workflow) error
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error)
	SetWorkflowStatus(ctx context.Context, id string, status WorkflowStatus) error

	// Task
	InsertTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error)
	ClaimTask(ctx context.Context, workerID string, taskTypes []string, now int64) (*Task, error)
	CompleteTask(ctx context.Context, id string, artifact map[string]any, now int64) error
	RetryOrFailTask(ctx context.Context, id string, lastError string, now int64) error
	UnblockTask(ctx context.Context, id string, dependencyOutputs map[string]any) error
	FailTaskDependency(ctx context.Context, id string) error
	ReleaseInvariantViolation(ctx context.Context, id string, now int64) error

	// Worker registration
	UpsertWorkerRegistration(ctx context.Context, reg *WorkerRegistration) error
	SetWorkerOffline(ctx context.Context, workerID string) error
	ListWorkers(ctx context.Context) ([]*WorkerRegistration, error)

	// Log
	AppendLog(ctx context.Context, l *Log) error
	GetLogs(ctx context.Context, workflowID string, limit int) ([]*Log, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Store is the facade used by the worker, orchestrator, planner, and
// control-plane packages. It delegates every call to a Driver so the
// scheduling substrate is agnostic to the backing database.
type Store struct {
	driver Driver
}

// New wraps a driver in a Store facade.
func New(driver Driver) *Store {
	return &Store{driver: driver}
}

// Close releases the underlying driver's resources.
func (s *Store) Close() error {
	return s.driver.Close()
}

// Migrate brings the backing schema up to date.
func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

// --- Workflow ---

func (s *Store) InsertWorkflow(ctx context.Context, wf *Workflow) error {
	return s.driver.InsertWorkflow(ctx, wf)
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	return s.driver.GetWorkflow(ctx, id)
}

func (s *Store) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error) {
	return s.driver.ListWorkflows(ctx, filter)
}

func (s *Store) SetWorkflowStatus(ctx context.Context, id string, status WorkflowStatus) error {
	return s.driver.SetWorkflowStatus(ctx, id, status)
}

// --- Task ---

func (s *Store) InsertTask(ctx context.Context, t *Task) error {
	return s.driver.InsertTask(ctx, t)
}

func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	return s.driver.GetTask(ctx, id)
}

func (s *Store) ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error) {
	return s.driver.ListTasks(ctx, filter)
}

// ClaimTask is the atomic find_one_and_update of spec.md §4.2.1: it
// transitions exactly one PENDING task of one of taskTypes to
// IN_PROGRESS under workerID, or returns (nil, nil) if none is ready.
func (s *Store) ClaimTask(ctx context.Context, workerID string, taskTypes []string, now int64) (*Task, error) {
	return s.driver.ClaimTask(ctx, workerID, taskTypes, now)
}

// CompleteTask implements spec.md §4.2.2 step 2.
func (s *Store) CompleteTask(ctx context.Context, id string, artifact map[string]any, now int64) error {
	return s.driver.CompleteTask(ctx, id, artifact, now)
}

// RetryOrFailTask implements spec.md §4.2.3. The orchestrator's
// lease-reclamation pass (§4.3.2) also uses it, with lastError =
// "lock timeout". Dependency propagation's terminal failure path does
// not; it uses FailTaskDependency.
func (s *Store) RetryOrFailTask(ctx context.Context, id string, lastError string, now int64) error {
	return s.driver.RetryOrFailTask(ctx, id, lastError, now)
}

// UnblockTask transitions a BLOCKED task to PENDING, merging
// dependencyOutputs into input_context.dependency_outputs
// (spec.md §4.3.1).
func (s *Store) UnblockTask(ctx context.Context, id string, dependencyOutputs map[string]any) error {
	return s.driver.UnblockTask(ctx, id, dependencyOutputs)
}

// FailTaskDependency transitions a BLOCKED task straight to FAILED
// because a dependency failed (spec.md §4.3.1, invariant 6).
func (s *Store) FailTaskDependency(ctx context.Context, id string) error {
	return s.driver.FailTaskDependency(ctx, id)
}

// ReleaseInvariantViolation returns an IN_PROGRESS task to PENDING
// with an incremented retry_count when a worker observes a claim
// result outside its declared task_types (spec.md §7, error kind 5).
func (s *Store) ReleaseInvariantViolation(ctx context.Context, id string, now int64) error {
	return s.driver.ReleaseInvariantViolation(ctx, id, now)
}

// --- Worker registration ---

func (s *Store) UpsertWorkerRegistration(ctx context.Context, reg *WorkerRegistration) error {
	return s.driver.UpsertWorkerRegistration(ctx, reg)
}

func (s *Store) SetWorkerOffline(ctx context.Context, workerID string) error {
	return s.driver.SetWorkerOffline(ctx, workerID)
}

func (s *Store) ListWorkers(ctx context.Context) ([]*WorkerRegistration, error) {
	return s.driver.ListWorkers(ctx)
}

// --- Log ---

func (s *Store) AppendLog(ctx context.Context, l *Log) error {
	return s.driver.AppendLog(ctx, l)
}

// RecordLog is the convenience path callers outside store/ use to pair
// a slog call with a durable Log document: every Log written here is
// also the one spec.md §3 says the control plane's get_logs surfaces.
// Persisting a log is best-effort — a store hiccup writing the log
// must never mask the real error the caller is already handling — so
// failures here are only slog'd, not returned.
func (s *Store) RecordLog(ctx context.Context, level LogLevel, component, message string, workflowID, taskID *string) {
	l := &Log{
		Timestamp:  time.Now().UTC(),
		Level:      level,
		Component:  component,
		Message:    message,
		WorkflowID: workflowID,
		TaskID:     taskID,
	}
	if err := s.driver.AppendLog(ctx, l); err != nil {
		slog.Warn("store: failed to persist log entry", "component", component, "error", err)
	}
}

func (s *Store) GetLogs(ctx context.Context, workflowID string, limit int) ([]*Log, error) {
	return s.driver.GetLogs(ctx, workflowID, limit)
}
