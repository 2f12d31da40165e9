package controlplane

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/taskmesh/store"
	"github.com/hrygo/taskmesh/store/db/sqlite"
)

func newTestService(t *testing.T) (*Service, *echo.Echo) {
	t.Helper()
	d, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, d.Migrate(context.Background()))
	t.Cleanup(func() { _ = d.Close() })

	st := store.New(d)
	svc := New(st)
	e := echo.New()
	svc.Register(e)
	return svc, e
}

func TestSubmitTask_CreatesWorkflowAndPendingTask(t *testing.T) {
	_, e := newTestService(t)

	body := `{"goal":"research octopi","type":"PLAN","input_context":{"goal":"research octopi"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"type":"PLAN"`)
	require.Contains(t, rec.Body.String(), `"status":"PENDING"`)
}

func TestSubmitTask_RejectsMissingType(t *testing.T) {
	_, e := newTestService(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader(`{"goal":"x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTasks_FiltersByWorkflowAndStatus(t *testing.T) {
	svc, e := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, svc.Store.InsertWorkflow(ctx, &store.Workflow{ID: "wf-1", Status: store.WorkflowRunning, CreatedAt: now}))
	require.NoError(t, svc.Store.InsertTask(ctx, &store.Task{
		ID: "wf-1_a", WorkflowID: "wf-1", Type: "SEARCH", Status: store.TaskPending,
		MaxRetries: 3, InputContext: map[string]any{}, CreatedAt: now,
	}))
	require.NoError(t, svc.Store.InsertTask(ctx, &store.Task{
		ID: "wf-1_b", WorkflowID: "wf-1", Type: "SEARCH", Status: store.TaskCompleted,
		MaxRetries: 3, InputContext: map[string]any{}, OutputArtifact: map[string]any{"ok": true}, CreatedAt: now,
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks?workflow_id=wf-1&status=PENDING", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "wf-1_a")
	require.NotContains(t, rec.Body.String(), "wf-1_b")
}

func TestListWorkers_ReturnsRegistrations(t *testing.T) {
	svc, e := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Store.UpsertWorkerRegistration(ctx, &store.WorkerRegistration{
		WorkerID: "w1", Name: "worker-1", TaskTypes: []string{"SEARCH"},
		Status: store.WorkerOnline, LastHeartbeat: time.Now().UTC(),
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/workers", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "worker-1")
}

func TestGetLogs_MostRecentFirst(t *testing.T) {
	svc, e := newTestService(t)
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, svc.Store.AppendLog(ctx, &store.Log{Timestamp: base, Level: store.LogInfo, Component: "worker", Message: "first"}))
	require.NoError(t, svc.Store.AppendLog(ctx, &store.Log{Timestamp: base.Add(time.Second), Level: store.LogInfo, Component: "worker", Message: "second"}))

	req := httptest.NewRequest(http.MethodGet, "/v1/logs?limit=10", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	firstIdx := strings.Index(rec.Body.String(), "second")
	secondIdx := strings.Index(rec.Body.String(), "first")
	require.True(t, firstIdx >= 0 && secondIdx >= 0 && firstIdx < secondIdx, "expected most-recent-first ordering")
}

func TestRenderTaskArtifact_RendersMarkdownToHTML(t *testing.T) {
	svc, e := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, svc.Store.InsertWorkflow(ctx, &store.Workflow{ID: "wf-2", Status: store.WorkflowRunning, CreatedAt: now}))
	require.NoError(t, svc.Store.InsertTask(ctx, &store.Task{
		ID: "wf-2_a", WorkflowID: "wf-2", Type: "SYNTHESIZE", Status: store.TaskPending,
		MaxRetries: 3, InputContext: map[string]any{}, CreatedAt: now,
	}))
	require.NoError(t, svc.Store.CompleteTask(ctx, "wf-2_a", map[string]any{"markdown": "# hello"}, now.Unix()))

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/wf-2_a/render", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "<h1>hello</h1>")
}

func TestRenderTaskArtifact_NonMarkdownArtifactReturnsJSON(t *testing.T) {
	svc, e := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, svc.Store.InsertWorkflow(ctx, &store.Workflow{ID: "wf-3", Status: store.WorkflowRunning, CreatedAt: now}))
	require.NoError(t, svc.Store.InsertTask(ctx, &store.Task{
		ID: "wf-3_a", WorkflowID: "wf-3", Type: "VALIDATE", Status: store.TaskPending,
		MaxRetries: 3, InputContext: map[string]any{}, CreatedAt: now,
	}))
	require.NoError(t, svc.Store.CompleteTask(ctx, "wf-3_a", map[string]any{"ok": true}, now.Unix()))

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/wf-3_a/render", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"ok":true`)
}
