// Package handlers provides the illustrative, closed-set task-type
// handlers named in spec.md §3 (SEARCH, SUMMARIZE, CODE_GENERATE,
// VALIDATE, ANALYZE, PROVISION_INFRA, SYNTHESIZE). spec.md §1 is
// explicit that the scheduling substrate is agnostic to what a
// handler actually does; these exist so the closed task-type set has
// real, testable behavior instead of being purely notional.
package handlers

import (
	"context"
	"fmt"

	"github.com/hrygo/taskmesh/engine/llm"
	"github.com/hrygo/taskmesh/store"
)

// Search answers a SEARCH task's input_context.query through the LLM,
// standing in for a real retrieval/browsing backend.
func Search(svc llm.Service) func(ctx context.Context, task *store.Task) (map[string]any, error) {
	return func(ctx context.Context, task *store.Task) (map[string]any, error) {
		query, _ := task.InputContext["query"].(string)
		if query == "" {
			return nil, fmt.Errorf("handlers: SEARCH task %s missing input_context.query", task.ID)
		}
		answer, _, err := svc.Chat(ctx, []llm.Message{
			llm.SystemPrompt("Answer the query concisely, as if reporting search findings."),
			llm.UserMessage(query),
		})
		if err != nil {
			return nil, fmt.Errorf("handlers: SEARCH: %w", err)
		}
		return map[string]any{"findings": answer}, nil
	}
}

// Summarize condenses the upstream dependency_outputs into prose.
func Summarize(svc llm.Service) func(ctx context.Context, task *store.Task) (map[string]any, error) {
	return func(ctx context.Context, task *store.Task) (map[string]any, error) {
		inputs := task.DependencyOutputs()
		answer, _, err := svc.Chat(ctx, []llm.Message{
			llm.SystemPrompt("Summarize the following findings in a short paragraph."),
			llm.UserMessage(fmt.Sprintf("%v", inputs)),
		})
		if err != nil {
			return nil, fmt.Errorf("handlers: SUMMARIZE: %w", err)
		}
		return map[string]any{"markdown": answer}, nil
	}
}

// Analyze produces a structured assessment of the upstream outputs.
func Analyze(svc llm.Service) func(ctx context.Context, task *store.Task) (map[string]any, error) {
	return func(ctx context.Context, task *store.Task) (map[string]any, error) {
		inputs := task.DependencyOutputs()
		answer, _, err := svc.Chat(ctx, []llm.Message{
			llm.SystemPrompt("Analyze the following data and list key risks and opportunities."),
			llm.UserMessage(fmt.Sprintf("%v", inputs)),
		})
		if err != nil {
			return nil, fmt.Errorf("handlers: ANALYZE: %w", err)
		}
		return map[string]any{"analysis": answer}, nil
	}
}

// CodeGenerate produces a code snippet from input_context.spec.
func CodeGenerate(svc llm.Service) func(ctx context.Context, task *store.Task) (map[string]any, error) {
	return func(ctx context.Context, task *store.Task) (map[string]any, error) {
		spec, _ := task.InputContext["spec"].(string)
		if spec == "" {
			return nil, fmt.Errorf("handlers: CODE_GENERATE task %s missing input_context.spec", task.ID)
		}
		code, _, err := svc.Chat(ctx, []llm.Message{
			llm.SystemPrompt("Write the minimal code for the following request. Return only the code."),
			llm.UserMessage(spec),
		})
		if err != nil {
			return nil, fmt.Errorf("handlers: CODE_GENERATE: %w", err)
		}
		return map[string]any{"code": code}, nil
	}
}
