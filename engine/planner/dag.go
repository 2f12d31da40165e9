package planner

import "fmt"

// checkAcyclic runs Kahn's algorithm over the local-id dependency
// graph in specs, adapted from
// ai/agents/orchestrator/dag_scheduler.go's in-degree bookkeeping
// (NewDAGScheduler's graph/inDegree construction). Unlike the
// teacher, which schedules off the ready queue as it drains, the
// planner only needs the queue to confirm every node is eventually
// reachable — an undrained queue after processing means a cycle, and
// the whole plan is rejected before any child task is inserted
// (spec.md §4.4.4).
func checkAcyclic(specs []TaskSpec) error {
	index := make(map[string]int, len(specs))
	for i, s := range specs {
		if _, dup := index[s.LocalID]; dup {
			return fmt.Errorf("planner: duplicate task id %q", s.LocalID)
		}
		index[s.LocalID] = i
	}

	graph := make(map[string][]string, len(specs))
	inDegree := make(map[string]int, len(specs))
	for _, s := range specs {
		inDegree[s.LocalID] = 0
	}
	for _, s := range specs {
		for _, dep := range s.Dependencies {
			if _, ok := index[dep]; !ok {
				return fmt.Errorf("planner: task %q depends on unknown task %q", s.LocalID, dep)
			}
			graph[dep] = append(graph[dep], s.LocalID)
			inDegree[s.LocalID]++
		}
	}

	queue := make([]string, 0, len(specs))
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, downstream := range graph[id] {
			inDegree[downstream]--
			if inDegree[downstream] == 0 {
				queue = append(queue, downstream)
			}
		}
	}

	if visited != len(specs) {
		return fmt.Errorf("planner: cycle detected among %d tasks (%d reachable)", len(specs), visited)
	}
	return nil
}
