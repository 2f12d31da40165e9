// Package profile holds the runtime configuration for every taskmesh
// process (worker, orchestrator, control-plane server, and the
// one-shot submit/migrate commands).
package profile

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Profile is the configuration recognized by spec.md §6.
type Profile struct {
	// StoreURI is the connection string to the durable store.
	// postgres://... selects the Postgres driver, anything else
	// (a filesystem path, ":memory:") selects the SQLite driver.
	StoreURI string

	// WorkerID is this process's stable worker identity. Generated
	// fresh if empty.
	WorkerID string

	// Name is a human-readable label for the worker registration.
	Name string

	// TaskTypes is the set of task-type tags this worker claims.
	// Required for worker processes; ignored otherwise.
	TaskTypes []string

	// PollInterval is the tick between store scans for both worker
	// and orchestrator loops.
	PollInterval time.Duration

	// LeaseTTL is the max age of an IN_PROGRESS task before the
	// orchestrator reclaims it.
	LeaseTTL time.Duration

	// MaxRetriesDefault is the max_retries of the PLAN task the submit
	// command creates; the planner's child tasks inherit it. Tasks
	// submitted through the control-plane HTTP API that omit
	// max_retries get 3, whatever this is set to.
	MaxRetriesDefault int

	// BackoffOnError is the worker sleep after a loop exception. The
	// orchestrator does not use it: a failed tick waits for the next one.
	BackoffOnError time.Duration

	// Addr/Port configure the control-plane HTTP server.
	Addr string
	Port int

	// TelegramBotToken and TelegramChatID configure the optional
	// workflow-completion notifier. Both empty disables it.
	TelegramBotToken string
	TelegramChatID   int64

	// LLM configuration for the planner's decomposer and the
	// illustrative LLM-backed handlers.
	LLMProvider string
	LLMModel    string
	LLMAPIKey   string
	LLMBaseURL  string
}

// Driver reports which store backend StoreURI selects.
func (p *Profile) Driver() string {
	if strings.HasPrefix(p.StoreURI, "postgres://") || strings.HasPrefix(p.StoreURI, "postgresql://") {
		return "postgres"
	}
	return "sqlite"
}

// FromEnv applies defaults and generates a WorkerID when unset.
func (p *Profile) FromEnv() {
	if p.WorkerID == "" {
		p.WorkerID = uuid.NewString()
		slog.Info("profile: generated worker id", "worker_id", p.WorkerID)
	}
	if p.Name == "" {
		p.Name = "worker-" + p.WorkerID[:8]
	}
	if p.PollInterval <= 0 {
		p.PollInterval = time.Second
	}
	if p.LeaseTTL <= 0 {
		p.LeaseTTL = 5 * time.Minute
	}
	if p.MaxRetriesDefault <= 0 {
		p.MaxRetriesDefault = 3
	}
	if p.BackoffOnError <= 0 {
		p.BackoffOnError = 5 * time.Second
	}
	if p.Port == 0 {
		p.Port = 8088
	}
}

// Validate checks the fields required to run.
func (p *Profile) Validate() error {
	if p.StoreURI == "" {
		return errors.New("store_uri is required")
	}
	return nil
}

// ValidateForWorker additionally requires a non-empty task type set.
func (p *Profile) ValidateForWorker() error {
	if err := p.Validate(); err != nil {
		return err
	}
	if len(p.TaskTypes) == 0 {
		return errors.New("task_types must be non-empty for a worker process")
	}
	return nil
}

func (p *Profile) String() string {
	return fmt.Sprintf("Profile{driver=%s worker_id=%s task_types=%v poll_interval=%s lease_ttl=%s}",
		p.Driver(), p.WorkerID, p.TaskTypes, p.PollInterval, p.LeaseTTL)
}
