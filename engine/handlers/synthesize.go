package handlers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hrygo/taskmesh/store"
)

// Synthesize merges every upstream dependency's output into one
// markdown document, the shape server/controlplane's rendered-artifact
// view (goldmark) expects in output_artifact["markdown"].
func Synthesize(ctx context.Context, task *store.Task) (map[string]any, error) {
	deps := task.DependencyOutputs()
	if len(deps) == 0 {
		return nil, fmt.Errorf("handlers: SYNTHESIZE task %s has no dependency outputs to synthesize", task.ID)
	}

	ids := make([]string, 0, len(deps))
	for id := range deps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	sb.WriteString("# Synthesis\n\n")
	for _, id := range ids {
		sb.WriteString(fmt.Sprintf("## %s\n\n%v\n\n", id, deps[id]))
	}

	return map[string]any{"markdown": sb.String()}, nil
}
