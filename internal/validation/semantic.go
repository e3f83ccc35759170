package validation

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/loomworks/loom/pkg/schema"
)

// cronParser accepts standard 5-field cron expressions for schedule triggers.
// Triggers are modeled, not scheduled: the expression is validated here and
// nowhere else.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// validateSemantic performs the cross-referential checks over one pass of
// nodes and one pass of edges, collecting every violation.
func validateSemantic(doc *schema.WorkflowDocument) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	wf := &doc.Workflow

	nodeIDs := make(map[string]*schema.Node, len(wf.Nodes))
	var triggers []*schema.Node

	for i := range wf.Nodes {
		node := &wf.Nodes[i]
		path := fmt.Sprintf("workflow.nodes[%d]", i)

		if _, exists := nodeIDs[node.ID]; exists {
			result.AddError(path+".id", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate node id %q", node.ID))
		} else {
			nodeIDs[node.ID] = node
		}

		if node.Type.IsTrigger() {
			triggers = append(triggers, node)
			validateTriggerNode(node, path, result)
		} else if len(node.Inputs) == 0 {
			result.AddError(path+".inputs", schema.ErrCodeValidation,
				fmt.Sprintf("non-trigger node %q must declare at least one input port", node.ID))
		}

		validatePorts(node, path, result)

		if node.Type == schema.NodeLogicCondition {
			validateConditionNode(node, path, result)
		}
	}

	switch len(triggers) {
	case 0:
		result.AddError("workflow.nodes", schema.ErrCodeValidation,
			"workflow must contain exactly one trigger node, found none")
	case 1:
		if wf.EntryNodeID != triggers[0].ID {
			result.AddError("workflow.entry_node_id", schema.ErrCodeValidation,
				fmt.Sprintf("entry_node_id %q does not match trigger node %q", wf.EntryNodeID, triggers[0].ID))
		}
	default:
		result.AddError("workflow.nodes", schema.ErrCodeValidation,
			fmt.Sprintf("workflow must contain exactly one trigger node, found %d", len(triggers)))
	}

	validateEdges(wf, nodeIDs, result)

	return result
}

// validateTriggerNode checks trigger-specific invariants.
func validateTriggerNode(node *schema.Node, path string, result *schema.ValidationResult) {
	if len(node.Inputs) > 0 {
		result.AddError(path+".inputs", schema.ErrCodeValidation,
			fmt.Sprintf("trigger node %q must not declare input ports", node.ID))
	}

	if node.Type == schema.NodeTriggerSchedule {
		cfg := schema.DecodeTriggerConfig(node.Config)
		if cfg.Cron == "" {
			return
		}
		if _, err := cronParser.Parse(cfg.Cron); err != nil {
			result.AddError(path+".config.cron", schema.ErrCodeValidation,
				fmt.Sprintf("invalid cron expression %q: %s", cfg.Cron, err.Error()))
		}
	}
}

// validatePorts checks port id uniqueness within each port set.
func validatePorts(node *schema.Node, path string, result *schema.ValidationResult) {
	checkSet := func(ports []schema.Port, field string) {
		seen := make(map[string]bool, len(ports))
		for j, p := range ports {
			if seen[p.ID] {
				result.AddError(fmt.Sprintf("%s.%s[%d].id", path, field, j), schema.ErrCodeValidation,
					fmt.Sprintf("duplicate %s port id %q on node %q", field, p.ID, node.ID))
			}
			seen[p.ID] = true
		}
	}
	checkSet(node.Inputs, "inputs")
	checkSet(node.Outputs, "outputs")
}

// validateConditionNode checks branch-selection invariants: at least two
// output ports, and default_output naming one of them.
func validateConditionNode(node *schema.Node, path string, result *schema.ValidationResult) {
	if len(node.Outputs) < 2 {
		result.AddError(path+".outputs", schema.ErrCodeValidation,
			fmt.Sprintf("condition node %q must declare at least two output ports", node.ID))
	}

	cfg := schema.DecodeConditionConfig(node.Config)
	if cfg.DefaultOutput == "" {
		result.AddError(path+".config.default_output", schema.ErrCodeValidation,
			fmt.Sprintf("condition node %q must set config.default_output", node.ID))
		return
	}
	if node.OutputPort(cfg.DefaultOutput) == nil {
		result.AddError(path+".config.default_output", schema.ErrCodeValidation,
			fmt.Sprintf("default_output %q is not an output port of node %q", cfg.DefaultOutput, node.ID))
	}
}

// validateEdges checks edge id uniqueness and port-level endpoint existence.
// Edge conditions carry no executable semantics; a non-empty one only earns
// a warning so document authors are not misled.
func validateEdges(wf *schema.Workflow, nodeIDs map[string]*schema.Node, result *schema.ValidationResult) {
	edgeIDs := make(map[string]bool, len(wf.Edges))

	for i := range wf.Edges {
		edge := &wf.Edges[i]
		path := fmt.Sprintf("workflow.edges[%d]", i)

		if edgeIDs[edge.ID] {
			result.AddError(path+".id", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate edge id %q", edge.ID))
		}
		edgeIDs[edge.ID] = true

		source, ok := nodeIDs[edge.Source.NodeID]
		if !ok {
			result.AddError(path+".source.node_id", schema.ErrCodeValidation,
				fmt.Sprintf("references non-existent node %q", edge.Source.NodeID))
		} else if source.OutputPort(edge.Source.PortID) == nil {
			result.AddError(path+".source.port_id", schema.ErrCodeValidation,
				fmt.Sprintf("port %q is not an output port of node %q", edge.Source.PortID, edge.Source.NodeID))
		}

		target, ok := nodeIDs[edge.Target.NodeID]
		if !ok {
			result.AddError(path+".target.node_id", schema.ErrCodeValidation,
				fmt.Sprintf("references non-existent node %q", edge.Target.NodeID))
		} else if target.InputPort(edge.Target.PortID) == nil {
			result.AddError(path+".target.port_id", schema.ErrCodeValidation,
				fmt.Sprintf("port %q is not an input port of node %q", edge.Target.PortID, edge.Target.NodeID))
		}

		if edge.Condition != nil && *edge.Condition != "" {
			result.AddWarning(path+".condition", schema.ErrCodeValidation,
				"edge condition is informational and not evaluated; branch selection is driven by the condition node's expression")
		}
	}
}
