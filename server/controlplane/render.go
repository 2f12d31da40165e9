package controlplane

import (
	"bytes"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hrygo/taskmesh/store"
)

var markdownRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderTaskArtifact serves SPEC_FULL.md §9's supplemented rendered-
// artifact view: a COMPLETED task's output_artifact["markdown"] field,
// rendered through goldmark to HTML, for human inspection of
// SUMMARIZE/SYNTHESIZE results. Any other task shape is returned as
// plain JSON instead of failing, since rendering is a convenience
// view layered over the authoritative artifact.
func (s *Service) RenderTaskArtifact(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	task, err := s.Store.GetTask(ctx, id)
	if err == store.ErrNotFound {
		return jsonError(c, http.StatusNotFound, err)
	} else if err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}

	if task.Status != store.TaskCompleted || task.OutputArtifact == nil {
		return c.JSON(http.StatusOK, task)
	}

	markdown, ok := task.OutputArtifact["markdown"].(string)
	if !ok {
		return c.JSON(http.StatusOK, task.OutputArtifact)
	}

	var buf bytes.Buffer
	if err := markdownRenderer.Convert([]byte(markdown), &buf); err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}
