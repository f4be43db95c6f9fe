package models

// NodeType identifies the behavior of a workflow step.
type NodeType string

const (
	NodeTypeTrigger      NodeType = "TRIGGER"
	NodeTypeAction       NodeType = "ACTION"
	NodeTypeCondition    NodeType = "CONDITION"
	NodeTypeLoop         NodeType = "LOOP"
	NodeTypeParallel     NodeType = "PARALLEL"
	NodeTypeJoin         NodeType = "JOIN"
	NodeTypeDelay        NodeType = "DELAY"
	NodeTypeApproval     NodeType = "APPROVAL"
	NodeTypeNotification NodeType = "NOTIFICATION"
	NodeTypeScript       NodeType = "SCRIPT"
	NodeTypeAPICall      NodeType = "API_CALL"
	NodeTypeDatabase     NodeType = "DATABASE"
	NodeTypeTransform    NodeType = "TRANSFORM"
	NodeTypeErrorHandler NodeType = "ERROR_HANDLER"
	NodeTypeEnd          NodeType = "END"
)

// actionNodeTypes maps node types that delegate to a registered action handler
// to the default action identifier used when the node config does not name one.
var actionNodeTypes = map[NodeType]string{
	NodeTypeAction:       "",
	NodeTypeNotification: "send_notification",
	NodeTypeScript:       "run_script",
	NodeTypeAPICall:      "http_request",
	NodeTypeDatabase:     "database_query",
	NodeTypeTransform:    "transform",
	NodeTypeErrorHandler: "",
}

// Node represents a typed step in a workflow graph. Position is
// presentation-only and never influences execution.
type Node struct {
	ID        string         `json:"id"     validate:"required"`
	Type      NodeType       `json:"type"   validate:"required"`
	Name      string         `json:"name"`
	Config    map[string]any `json:"config"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

// IsActionBacked reports whether this node type invokes a handler from the
// action registry. Control-flow node types are interpreted by the executor.
func (n *Node) IsActionBacked() bool {
	_, ok := actionNodeTypes[n.Type]

	return ok
}

// ActionID resolves the registry identifier for an action-backed node. The
// node config's "action" key wins; otherwise the type's default applies.
func (n *Node) ActionID() string {
	if id, ok := n.Config["action"].(string); ok && id != "" {
		return id
	}

	return actionNodeTypes[n.Type]
}

// IsTerminal reports whether the executor stops after visiting this node.
func (n *Node) IsTerminal() bool {
	return n.Type == NodeTypeEnd
}

// ConfigString returns a string config value with a fallback.
func (n *Node) ConfigString(key, fallback string) string {
	if v, ok := n.Config[key].(string); ok && v != "" {
		return v
	}

	return fallback
}

// ConfigInt returns an integer config value with a fallback. JSON decoding
// produces float64, so both numeric shapes are accepted.
func (n *Node) ConfigInt(key string, fallback int) int {
	switch v := n.Config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}
