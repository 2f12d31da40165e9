// Package controlplane exposes the read-only control-plane surface
// required by spec.md §6 (list_workers, list_tasks, get_logs) plus
// submit_task, as an echo HTTP façade, the way the teacher's
// server/router/api/v1 package wraps its domain services for HTTP.
// It additionally serves the supplemented features of SPEC_FULL.md §9:
// an Atom feed of recently terminal workflows and a goldmark-rendered
// view of a completed task's markdown artifact.
package controlplane

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/taskmesh/store"
)

// Service holds the dependencies every control-plane handler needs.
type Service struct {
	Store *store.Store
}

// New constructs a Service backed by st.
func New(st *store.Store) *Service {
	return &Service{Store: st}
}

// Register mounts every control-plane route under e.
func (s *Service) Register(e *echo.Echo) {
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	v1 := e.Group("/v1")
	v1.GET("/workers", s.ListWorkers)
	v1.GET("/tasks", s.ListTasks)
	v1.POST("/tasks", s.SubmitTask)
	v1.GET("/tasks/:id/render", s.RenderTaskArtifact)
	v1.GET("/logs", s.GetLogs)
	v1.GET("/workflows/feed.xml", s.WorkflowFeed)
}

func jsonError(c echo.Context, status int, err error) error {
	return c.JSON(status, map[string]string{"error": err.Error()})
}
