// Package handler defines the task-type dispatch contract shared by
// every worker: a task-type tag maps to exactly one Handler, looked
// up in a Registry at claim time.
package handler

import (
	"context"
	"fmt"
	"sync"

	"github.com/hrygo/taskmesh/store"
)

// Handler executes one claimed task and returns the map that becomes
// its output_artifact, or an error that drives the retry/failure path
// of spec.md §4.2.3.
type Handler func(ctx context.Context, task *store.Task) (map[string]any, error)

// Registry maps task-type tags to the Handler that executes them.
// Unlike the teacher's expert_registry.go, which resolves a name to a
// struct implementing a shared interface, task types here are opaque
// strings matched against Task.Type, so a plain map is sufficient —
// no inheritance hierarchy to replace.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds taskType to h, overwriting any previous binding.
func (r *Registry) Register(taskType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[taskType] = h
}

// Dispatch looks up and invokes the handler for task.Type.
func (r *Registry) Dispatch(ctx context.Context, task *store.Task) (map[string]any, error) {
	r.mu.RLock()
	h, ok := r.handlers[task.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("handler: no handler registered for task type %q", task.Type)
	}
	return h(ctx, task)
}

// TaskTypes reports every type currently registered, in no particular
// order. The planner's decomposer is built from this list, so a plan
// only names task types this process can actually execute.
func (r *Registry) TaskTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}
