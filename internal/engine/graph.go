package engine

import (
	"github.com/loomworks/loom/pkg/schema"
)

// Graph is the in-memory executable view of a workflow: nodes by id, edge
// adjacency, and the topological execution order.
type Graph struct {
	Workflow *schema.Workflow
	Nodes    map[string]*schema.Node
	Order    []string                  // topological node order
	Edges    map[string][]*schema.Edge // outgoing edges per source node id
}

// BuildGraph builds the executable graph and computes the topological order
// with Kahn's algorithm. The queue is seeded in node declaration order and
// processed FIFO, so the order is deterministic for a fixed document.
// Returns a CYCLE_DETECTED error when the order cannot cover every node.
// Validation catches this first, but execution re-checks before any side
// effect occurs.
func BuildGraph(wf *schema.Workflow) (*Graph, error) {
	g := &Graph{
		Workflow: wf,
		Nodes:    make(map[string]*schema.Node, len(wf.Nodes)),
		Edges:    make(map[string][]*schema.Edge, len(wf.Nodes)),
	}

	for i := range wf.Nodes {
		node := &wf.Nodes[i]
		if _, exists := g.Nodes[node.ID]; exists {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "duplicate node id %q", node.ID)
		}
		g.Nodes[node.ID] = node
	}

	inDegree := make(map[string]int, len(wf.Nodes))
	for id := range g.Nodes {
		inDegree[id] = 0
	}

	for i := range wf.Edges {
		edge := &wf.Edges[i]
		if g.Nodes[edge.Source.NodeID] == nil || g.Nodes[edge.Target.NodeID] == nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"edge %q references a non-existent node", edge.ID)
		}
		g.Edges[edge.Source.NodeID] = append(g.Edges[edge.Source.NodeID], edge)
		inDegree[edge.Target.NodeID]++
	}

	queue := make([]string, 0, len(wf.Nodes))
	for _, n := range wf.Nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	order := make([]string, 0, len(wf.Nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, edge := range g.Edges[id] {
			target := edge.Target.NodeID
			inDegree[target]--
			if inDegree[target] == 0 {
				queue = append(queue, target)
			}
		}
	}

	if len(order) != len(g.Nodes) {
		return nil, schema.NewError(schema.ErrCodeCycleDetected,
			"workflow graph contains a cycle (DAG violation)")
	}

	g.Order = order
	return g, nil
}

// NextNodes returns the ids of the nodes activated by executing nodeID.
// For condition nodes only edges leaving the selected output port are
// followed; for every other node all outgoing edges are followed.
func (g *Graph) NextNodes(nodeID, selectedPort string) []string {
	node := g.Nodes[nodeID]
	var next []string
	seen := make(map[string]bool)
	for _, edge := range g.Edges[nodeID] {
		if node != nil && node.Type == schema.NodeLogicCondition && edge.Source.PortID != selectedPort {
			continue
		}
		if !seen[edge.Target.NodeID] {
			seen[edge.Target.NodeID] = true
			next = append(next, edge.Target.NodeID)
		}
	}
	return next
}
