package validation

import (
	"fmt"

	"github.com/loomworks/loom/pkg/schema"
)

// validateDAG performs graph analysis: cycle detection via Kahn's algorithm
// and reachability from the entry node (unreachable nodes are warnings, not
// errors; a taken branch never visits them anyway).
func validateDAG(doc *schema.WorkflowDocument) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	wf := &doc.Workflow

	nodeIDs := make(map[string]bool, len(wf.Nodes))
	for _, n := range wf.Nodes {
		nodeIDs[n.ID] = true
	}

	// successors[id] = nodes directly downstream of id.
	successors := make(map[string][]string, len(wf.Nodes))
	inDegree := make(map[string]int, len(wf.Nodes))
	for id := range nodeIDs {
		inDegree[id] = 0
	}

	for _, e := range wf.Edges {
		if !nodeIDs[e.Source.NodeID] || !nodeIDs[e.Target.NodeID] {
			continue // invalid refs already caught by semantic
		}
		successors[e.Source.NodeID] = append(successors[e.Source.NodeID], e.Target.NodeID)
		inDegree[e.Target.NodeID]++
	}

	// Kahn's algorithm, seeded in node declaration order.
	queue := make([]string, 0, len(wf.Nodes))
	for _, n := range wf.Nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, succ := range successors[id] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}

	if visited != len(nodeIDs) {
		result.AddError("workflow.edges", schema.ErrCodeCycleDetected,
			"workflow graph contains a cycle (DAG violation)")
		return result // cycle makes reachability analysis meaningless
	}

	// Reachability: BFS from the entry node through forward edges.
	reachable := map[string]bool{wf.EntryNodeID: true}
	bfs := []string{wf.EntryNodeID}
	for len(bfs) > 0 {
		id := bfs[0]
		bfs = bfs[1:]
		for _, succ := range successors[id] {
			if !reachable[succ] {
				reachable[succ] = true
				bfs = append(bfs, succ)
			}
		}
	}

	for i, n := range wf.Nodes {
		if !reachable[n.ID] {
			result.AddWarning(fmt.Sprintf("workflow.nodes[%d]", i), schema.ErrCodeValidation,
				fmt.Sprintf("node %q is unreachable from the trigger", n.ID))
		}
	}

	return result
}
