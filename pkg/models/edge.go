package models

// Well-known edge labels. CONDITION nodes route on arbitrary labels plus
// EdgeLabelDefault; failure routing looks for EdgeLabelError explicitly
// instead of inferring intent from the target node type.
const (
	EdgeLabelSuccess = "success"
	EdgeLabelError   = "error"
	EdgeLabelTrue    = "true"
	EdgeLabelFalse   = "false"
	EdgeLabelDefault = "default"
	EdgeLabelBody    = "body" // LOOP body entry
	EdgeLabelDone    = "done" // LOOP exit once the guard no longer holds
)

// Edge is a directed connection between two nodes of the same workflow,
// optionally guarded by a boolean expression over the execution context.
type Edge struct {
	ID        string `json:"id"`
	Source    string `json:"source" validate:"required"`
	Target    string `json:"target" validate:"required"`
	Label     string `json:"label,omitempty"`
	Condition string `json:"condition,omitempty"`
}

// IsErrorRoute reports whether this edge carries failure routing.
func (e *Edge) IsErrorRoute() bool {
	return e.Label == EdgeLabelError
}
