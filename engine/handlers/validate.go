package handlers

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/hrygo/taskmesh/store"
)

// Validate evaluates a VALIDATE task's input_context.cel_expression
// against its dependency_outputs, following the cel.NewEnv/Compile
// pattern from server/router/api/v1/user_service_crud.go's
// extractUsernameFromFilter (there used to parse an admin filter
// string; here used to gate task success on an arbitrary boolean
// predicate over upstream outputs — the VALIDATE task type's actual
// semantics per SPEC_FULL.md §9). A falsy or non-boolean result is a
// handler error, which drives the retry/failure path of spec.md
// §4.2.3.
func Validate(ctx context.Context, task *store.Task) (map[string]any, error) {
	expr, _ := task.InputContext["cel_expression"].(string)
	if expr == "" {
		return nil, fmt.Errorf("handlers: VALIDATE task %s missing input_context.cel_expression", task.ID)
	}

	deps := task.DependencyOutputs()
	env, err := cel.NewEnv(cel.Variable("dependency_outputs", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("handlers: VALIDATE: build CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("handlers: VALIDATE: compile %q: %w", expr, issues.Err())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("handlers: VALIDATE: build program: %w", err)
	}

	out, _, err := program.Eval(map[string]any{"dependency_outputs": toCELMap(deps)})
	if err != nil {
		return nil, fmt.Errorf("handlers: VALIDATE: eval: %w", err)
	}

	ok, isBool := out.Value().(bool)
	if !isBool {
		return nil, fmt.Errorf("handlers: VALIDATE: expression %q did not evaluate to a boolean", expr)
	}
	if !ok {
		return nil, fmt.Errorf("handlers: VALIDATE: expression %q evaluated false", expr)
	}
	return map[string]any{"valid": true}, nil
}

// toCELMap guards against a nil dependency_outputs map, which CEL's
// dynamic-type evaluator otherwise rejects outright.
func toCELMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
