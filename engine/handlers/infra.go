package handlers

import (
	"context"
	"fmt"

	"github.com/hrygo/taskmesh/store"
)

// ProvisionInfra is a deliberately inert stand-in for whatever
// provisioning backend a real deployment would call (spec.md §1:
// "the per-task-type business logic... is out of scope"). It
// validates the minimal shape of input_context.resource and returns a
// fabricated plan, so the task type is exercised end-to-end without
// this substrate depending on a cloud SDK it has no credentials for.
func ProvisionInfra(ctx context.Context, task *store.Task) (map[string]any, error) {
	resource, _ := task.InputContext["resource"].(string)
	if resource == "" {
		return nil, fmt.Errorf("handlers: PROVISION_INFRA task %s missing input_context.resource", task.ID)
	}
	return map[string]any{
		"resource":       resource,
		"provisioned":    true,
		"plan_reference": fmt.Sprintf("plan-%s-%s", task.WorkflowID, task.ID),
	}, nil
}
