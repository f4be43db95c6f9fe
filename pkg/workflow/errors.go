// Package workflow provides the versioned workflow store and the graph
// validation that gates activation.
package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/weavebit/loom/pkg/persistence"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

	// ErrGraphInvalid indicates the workflow graph failed structural
	// validation and the version cannot be activated.
	ErrGraphInvalid = errors.New("workflow graph is invalid")

	// ErrWorkflowNil is returned when a nil workflow is passed in.
	ErrWorkflowNil = errors.New("workflow cannot be nil")
)

// GraphError carries every structural issue found during validation so a
// caller can surface them all at once instead of fixing one per round trip.
type GraphError struct {
	WorkflowID string
	Issues     []string
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("workflow %s graph is invalid: %s", e.WorkflowID, strings.Join(e.Issues, "; "))
}

func (e *GraphError) Unwrap() error {
	return ErrGraphInvalid
}
