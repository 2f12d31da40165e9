package store

import "time"

// WorkflowStatus is one of the four states in spec.md §3.
type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "PENDING"
	WorkflowRunning   WorkflowStatus = "RUNNING"
	WorkflowCompleted WorkflowStatus = "COMPLETED"
	WorkflowFailed    WorkflowStatus = "FAILED"
)

// IsTerminal reports whether status is COMPLETED or FAILED.
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowCompleted || s == WorkflowFailed
}

// Workflow is one user goal (spec.md §3).
type Workflow struct {
	ID        string
	Goal      string
	Status    WorkflowStatus
	CreatedAt time.Time
}

// TaskStatus is one of the five states in the task lifecycle state
// machine (spec.md §3).
type TaskStatus string

const (
	TaskBlocked    TaskStatus = "BLOCKED"
	TaskPending    TaskStatus = "PENDING"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskFailed     TaskStatus = "FAILED"
)

// IsTerminal reports whether status is COMPLETED or FAILED.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Closed set of task-type tags recognized by the reference handler
// registry (spec.md §3). The store itself treats Task.Type as an
// opaque string; this list documents the tags engine/handlers wires
// up and is not enforced at the store layer, so new task types can be
// added without a migration.
const (
	TaskTypePlan           = "PLAN"
	TaskTypeSearch         = "SEARCH"
	TaskTypeSummarize      = "SUMMARIZE"
	TaskTypeCodeGenerate   = "CODE_GENERATE"
	TaskTypeValidate       = "VALIDATE"
	TaskTypeAnalyze        = "ANALYZE"
	TaskTypeProvisionInfra = "PROVISION_INFRA"
	TaskTypeSynthesize     = "SYNTHESIZE"
)

// Task is the unit of scheduling (spec.md §3).
type Task struct {
	ID           string     `json:"id"`
	WorkflowID   string     `json:"workflow_id"`
	Type         string     `json:"type"`
	Status       TaskStatus `json:"status"`
	Dependencies []string   `json:"dependencies"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	WorkerLock *string    `json:"worker_lock"`
	LockedAt   *time.Time `json:"locked_at"`

	InputContext   map[string]any `json:"input_context"`
	OutputArtifact map[string]any `json:"output_artifact"`
	LastError      *string        `json:"last_error"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
	FailedAt    *time.Time `json:"failed_at"`
}

// DependencyOutputs reads input_context.dependency_outputs, the sole
// mechanism by which artifacts flow downstream (spec.md §4.3.1).
func (t *Task) DependencyOutputs() map[string]any {
	if t.InputContext == nil {
		return nil
	}
	raw, ok := t.InputContext["dependency_outputs"]
	if !ok {
		return nil
	}
	out, _ := raw.(map[string]any)
	return out
}

// WorkerStatus is ONLINE or OFFLINE (spec.md §3).
type WorkerStatus string

const (
	WorkerOnline  WorkerStatus = "ONLINE"
	WorkerOffline WorkerStatus = "OFFLINE"
)

// WorkerRegistration is a worker's heartbeat record (spec.md §3).
type WorkerRegistration struct {
	WorkerID      string
	Name          string
	TaskTypes     []string
	Status        WorkerStatus
	LastHeartbeat time.Time
}

// LogLevel is one of INFO, WARN, ERROR (spec.md §3).
type LogLevel string

const (
	LogInfo  LogLevel = "INFO"
	LogWarn  LogLevel = "WARN"
	LogError LogLevel = "ERROR"
)

// Log is an immutable append-only event (spec.md §3).
type Log struct {
	Timestamp  time.Time
	Level      LogLevel
	Component  string
	Message    string
	WorkflowID *string
	TaskID     *string
}

// WorkflowFilter narrows ListWorkflows.
type WorkflowFilter struct {
	Status *WorkflowStatus
}

// TaskFilter narrows ListTasks (the control-plane's list_tasks
// operation, spec.md §6).
type TaskFilter struct {
	WorkflowID *string
	Status     *TaskStatus
}
