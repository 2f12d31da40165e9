package controlplane

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hrygo/taskmesh/store"
)

// ListWorkers implements spec.md §6's list_workers().
func (s *Service) ListWorkers(c echo.Context) error {
	workers, err := s.Store.ListWorkers(c.Request().Context())
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, workers)
}

// ListTasks implements spec.md §6's list_tasks(workflow_id?, status?).
func (s *Service) ListTasks(c echo.Context) error {
	var filter store.TaskFilter
	if wfID := c.QueryParam("workflow_id"); wfID != "" {
		filter.WorkflowID = &wfID
	}
	if status := c.QueryParam("status"); status != "" {
		ts := store.TaskStatus(status)
		filter.Status = &ts
	}

	tasks, err := s.Store.ListTasks(c.Request().Context(), filter)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, tasks)
}

// GetLogs implements spec.md §6's get_logs(workflow_id?, limit),
// most-recent-first.
func (s *Service) GetLogs(c echo.Context) error {
	workflowID := c.QueryParam("workflow_id")
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := parsePositiveInt(raw); err == nil {
			limit = n
		}
	}

	logs, err := s.Store.GetLogs(c.Request().Context(), workflowID, limit)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, logs)
}

// submitTaskRequest is the JSON body accepted by SubmitTask: callers
// typically kick off a workflow with a single PLAN task (SPEC_FULL.md
// §8), but any task type may be submitted directly as PENDING.
type submitTaskRequest struct {
	WorkflowID string         `json:"workflow_id"`
	Goal       string         `json:"goal"`
	Type       string         `json:"type"`
	InputContext map[string]any `json:"input_context"`
	MaxRetries int            `json:"max_retries"`
}

// SubmitTask implements spec.md §6's submit_task(task): it creates the
// workflow if workflow_id is new, then inserts a PENDING task with no
// dependencies.
func (s *Service) SubmitTask(c echo.Context) error {
	var req submitTaskRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, err)
	}
	if req.Type == "" {
		return jsonError(c, http.StatusBadRequest, errRequired("type"))
	}

	ctx := c.Request().Context()
	now := time.Now().UTC()

	if req.WorkflowID == "" {
		req.WorkflowID = uuid.NewString()
	}
	if _, err := s.Store.GetWorkflow(ctx, req.WorkflowID); err == store.ErrNotFound {
		if err := s.Store.InsertWorkflow(ctx, &store.Workflow{
			ID:        req.WorkflowID,
			Goal:      req.Goal,
			Status:    store.WorkflowPending,
			CreatedAt: now,
		}); err != nil {
			return jsonError(c, http.StatusInternalServerError, err)
		}
	} else if err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}

	maxRetries := req.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	task := &store.Task{
		ID:           uuid.NewString(),
		WorkflowID:   req.WorkflowID,
		Type:         req.Type,
		Status:       store.TaskPending,
		MaxRetries:   maxRetries,
		InputContext: req.InputContext,
		CreatedAt:    now,
	}
	if err := s.Store.InsertTask(ctx, task); err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}
	// The workflow is left PENDING: spec.md §3 reserves Workflow
	// mutation for the orchestrator's aggregation pass, which moves it
	// to RUNNING on its next tick once this task is PENDING/IN_PROGRESS.

	return c.JSON(http.StatusCreated, task)
}
