package controlplane

import (
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/feeds"
	"github.com/labstack/echo/v4"

	"github.com/hrygo/taskmesh/store"
)

// feedWindow bounds how many terminal workflows the Atom feed
// includes, newest by creation time first; the feed is a convenience mirror of list_tasks, not
// an authoritative history.
const feedWindow = 50

// WorkflowFeed serves SPEC_FULL.md §9's supplemented Atom feed of
// recently terminal workflows, for dashboards that poll a feed reader
// instead of the JSON endpoints.
func (s *Service) WorkflowFeed(c echo.Context) error {
	ctx := c.Request().Context()

	var entries []*feeds.Item
	for _, status := range []store.WorkflowStatus{store.WorkflowCompleted, store.WorkflowFailed} {
		st := status
		workflows, err := s.Store.ListWorkflows(ctx, store.WorkflowFilter{Status: &st})
		if err != nil {
			return jsonError(c, http.StatusInternalServerError, err)
		}
		for _, wf := range workflows {
			entries = append(entries, &feeds.Item{
				Id:          wf.ID,
				Title:       wf.Goal,
				Description: string(wf.Status),
				Created:     wf.CreatedAt,
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Created.After(entries[j].Created) })
	if len(entries) > feedWindow {
		entries = entries[:feedWindow]
	}

	feed := &feeds.Feed{
		Title:   "taskmesh workflows",
		Link:    &feeds.Link{Href: "/v1/workflows/feed.xml"},
		Created: time.Now().UTC(),
		Items:   entries,
	}

	atom, err := feed.ToAtom()
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}
	return c.Blob(http.StatusOK, "application/atom+xml", []byte(atom))
}
