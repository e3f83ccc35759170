package schema

// SchemaVersion is the only workflow document version this engine accepts.
const SchemaVersion = "1.0"

// WorkflowDocument is the versioned container for a workflow graph.
// It is the unit of validation, persistence, and execution.
type WorkflowDocument struct {
	SchemaVersion string   `json:"schema_version"`
	Workflow      Workflow `json:"workflow"`
}

// Workflow is a directed acyclic graph of typed nodes joined by port-level edges.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	EntryNodeID string         `json:"entry_node_id"`
	Variables   map[string]any `json:"variables,omitempty"`
	Nodes       []Node         `json:"nodes"`
	Edges       []Edge         `json:"edges"`
}

// Node is a single workflow step. Config is interpreted per Type; see config.go
// for the typed shapes. Position and UI are cosmetic and ignored by the engine.
type Node struct {
	ID       string         `json:"id"`
	Type     NodeType       `json:"type"`
	Name     string         `json:"name,omitempty"`
	Position Position       `json:"position"`
	Inputs   []Port         `json:"inputs,omitempty"`
	Outputs  []Port         `json:"outputs,omitempty"`
	Config   map[string]any `json:"config,omitempty"`
	UI       *NodeUI        `json:"ui,omitempty"`
}

// Position is the node's canvas placement.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeUI carries editor presentation hints.
type NodeUI struct {
	Icon  string `json:"icon,omitempty"`
	Color string `json:"color,omitempty"`
}

// Port is a named connection point on a node. Schema is a descriptive tag,
// not enforced at runtime.
type Port struct {
	ID     string `json:"id"`
	Label  string `json:"label,omitempty"`
	Schema string `json:"schema,omitempty"`
}

// Edge connects a source node output port to a target node input port.
// Condition is informational only: branch selection is driven by the
// condition node's own expression and default_output, never by edges.
type Edge struct {
	ID        string   `json:"id"`
	Source    Endpoint `json:"source"`
	Target    Endpoint `json:"target"`
	Label     *string  `json:"label,omitempty"`
	Condition *string  `json:"condition,omitempty"`
}

// Endpoint identifies one side of an edge.
type Endpoint struct {
	NodeID string `json:"node_id"`
	PortID string `json:"port_id"`
}

// NodeType enumerates the closed set of node types.
type NodeType string

const (
	// Triggers define the entry point and the shape of the initial input.
	NodeTriggerManual     NodeType = "trigger.manual"
	NodeTriggerWebhook    NodeType = "trigger.webhook"
	NodeTriggerSchedule   NodeType = "trigger.schedule"
	NodeTriggerFileUpload NodeType = "trigger.file_upload"

	// AI nodes transform the context via a completion call (live) or a
	// deterministic stub (simulated).
	NodeAISummarize      NodeType = "ai.summarize"
	NodeAIClassify       NodeType = "ai.classify"
	NodeAIExtractFields  NodeType = "ai.extract_fields"
	NodeAIGenerateReport NodeType = "ai.generate_report"

	// Logic nodes route or annotate without external effects.
	NodeLogicCondition NodeType = "logic.condition"
	NodeLogicDelay     NodeType = "logic.delay"

	// Output nodes are side-effecting sinks.
	NodeOutputDBSave NodeType = "output.db_save"
	NodeOutputExport NodeType = "output.export"
)

// AllNodeTypes lists every recognized node type.
var AllNodeTypes = []NodeType{
	NodeTriggerManual, NodeTriggerWebhook, NodeTriggerSchedule, NodeTriggerFileUpload,
	NodeAISummarize, NodeAIClassify, NodeAIExtractFields, NodeAIGenerateReport,
	NodeLogicCondition, NodeLogicDelay,
	NodeOutputDBSave, NodeOutputExport,
}

// IsTrigger reports whether t belongs to the trigger subset.
func (t NodeType) IsTrigger() bool {
	switch t {
	case NodeTriggerManual, NodeTriggerWebhook, NodeTriggerSchedule, NodeTriggerFileUpload:
		return true
	}
	return false
}

// IsAI reports whether t is an AI transform node.
func (t NodeType) IsAI() bool {
	switch t {
	case NodeAISummarize, NodeAIClassify, NodeAIExtractFields, NodeAIGenerateReport:
		return true
	}
	return false
}

// Valid reports whether t is a member of the closed type set.
func (t NodeType) Valid() bool {
	for _, known := range AllNodeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *Node {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i]
		}
	}
	return nil
}

// TriggerNode returns the first trigger-typed node, or nil.
func (w *Workflow) TriggerNode() *Node {
	for i := range w.Nodes {
		if w.Nodes[i].Type.IsTrigger() {
			return &w.Nodes[i]
		}
	}
	return nil
}

// OutputPort returns the output port with the given id, or nil.
func (n *Node) OutputPort(id string) *Port {
	for i := range n.Outputs {
		if n.Outputs[i].ID == id {
			return &n.Outputs[i]
		}
	}
	return nil
}

// InputPort returns the input port with the given id, or nil.
func (n *Node) InputPort(id string) *Port {
	for i := range n.Inputs {
		if n.Inputs[i].ID == id {
			return &n.Inputs[i]
		}
	}
	return nil
}
