package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/taskmesh/engine/llm"
)

// Decomposer turns a PLAN task's natural-language goal into a flat
// list of TaskSpecs via an LLM call, adapted from
// ai/agents/orchestrator/decomposer.go's Decompose/parseTaskPlan. An
// unparseable response is the "unparseable output" failure mode named
// in spec.md §4.4.5: Decompose returns the parse error rather than
// masking it, so the PLAN task re-enters the normal retry/fail path
// of §4.2.3 instead of silently "succeeding" with a task plan the LLM
// never actually proposed.
type Decomposer struct {
	llm        llm.Service
	validTypes map[string]bool
}

// NewDecomposer builds a Decomposer restricted to validTaskTypes —
// the task types the handler registry actually knows how to execute.
func NewDecomposer(svc llm.Service, validTaskTypes []string) *Decomposer {
	valid := make(map[string]bool, len(validTaskTypes))
	for _, t := range validTaskTypes {
		valid[t] = true
	}
	return &Decomposer{llm: svc, validTypes: valid}
}

// Decompose analyzes goal and returns its task plan.
func (d *Decomposer) Decompose(ctx context.Context, goal string) (*Plan, error) {
	start := time.Now()
	slog.Info("planner: decompose start", "goal", goal)

	messages := []llm.Message{
		llm.SystemPrompt(decomposePromptSystem(d.validTypes)),
		llm.UserMessage(goal),
	}

	response, _, err := d.llm.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("planner: decompose LLM call: %w", err)
	}

	plan, err := d.parsePlan(response)
	if err != nil {
		return nil, fmt.Errorf("planner: decompose: unparseable plan: %w", err)
	}

	slog.Info("planner: decompose complete",
		"task_count", len(plan.Tasks),
		"duration_ms", time.Since(start).Milliseconds())
	return plan, nil
}

func (d *Decomposer) parsePlan(response string) (*Plan, error) {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	var plan Plan
	if err := json.Unmarshal([]byte(response), &plan); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	if len(plan.Tasks) == 0 {
		return nil, fmt.Errorf("plan has no tasks")
	}
	for i, t := range plan.Tasks {
		if t.LocalID == "" {
			return nil, fmt.Errorf("task %d missing id", i)
		}
		if !d.validTypes[t.Type] {
			return nil, fmt.Errorf("task %s has unknown type %q", t.LocalID, t.Type)
		}
	}
	return &plan, nil
}

func decomposePromptSystem(validTypes map[string]bool) string {
	var names []string
	for t := range validTypes {
		names = append(names, t)
	}
	return fmt.Sprintf(`You decompose a user goal into a task plan expressed as JSON:
{"analysis": "...", "tasks": [{"id": "t1", "type": "%s", "input": {...}, "dependencies": []}]}
Only use task types from this list: %s. Respond with JSON only, no prose.`,
		strings.Join(names, "|"), strings.Join(names, ", "))
}
