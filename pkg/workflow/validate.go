package workflow

import (
	"fmt"

	"github.com/weavebit/loom/pkg/models"
)

// ValidateGraph checks the structural invariants a workflow must satisfy
// before it may be activated:
//
//   - exactly one TRIGGER node, which is the entry point
//   - every edge connects two nodes of this workflow
//   - every non-END node has at least one outgoing edge
//   - every node is reachable from the trigger
//   - CONDITION branches are labeled and exhaustive (true and false, or a
//     default branch)
//   - LOOP nodes carry one body edge and one done edge
//   - PARALLEL nodes fan out to at least two branches
//   - every other node has at most one non-error outgoing edge
//   - cycles pass through a LOOP node; any other cycle is rejected
//   - action-backed nodes resolve to a registry action id
//
// All issues are collected into a single GraphError.
func ValidateGraph(workflow *models.Workflow) error {
	if workflow == nil {
		return ErrWorkflowNil
	}

	var issues []string

	issues = append(issues, checkNodes(workflow)...)
	issues = append(issues, checkEdges(workflow)...)

	// Reachability and cycle checks only make sense over resolvable edges.
	if len(issues) == 0 {
		issues = append(issues, checkReachability(workflow)...)
		issues = append(issues, checkCycles(workflow)...)
	}

	if len(issues) > 0 {
		return &GraphError{WorkflowID: workflow.ID, Issues: issues}
	}

	return nil
}

func checkNodes(workflow *models.Workflow) []string {
	var issues []string

	if len(workflow.Nodes) == 0 {
		return []string{"workflow has no nodes"}
	}

	seen := make(map[string]bool, len(workflow.Nodes))
	triggerCount := 0

	for _, node := range workflow.Nodes {
		if node.ID == "" {
			issues = append(issues, "node with empty id")

			continue
		}

		if seen[node.ID] {
			issues = append(issues, fmt.Sprintf("duplicate node id %q", node.ID))
		}

		seen[node.ID] = true

		if node.Type == models.NodeTypeTrigger {
			triggerCount++
		}

		if node.IsActionBacked() && node.ActionID() == "" {
			issues = append(issues, fmt.Sprintf("node %q does not resolve to an action", node.ID))
		}
	}

	if triggerCount != 1 {
		issues = append(issues, fmt.Sprintf("workflow must have exactly one trigger node, found %d", triggerCount))
	}

	return issues
}

func checkEdges(workflow *models.Workflow) []string {
	var issues []string

	for _, edge := range workflow.Edges {
		if workflow.NodeByID(edge.Source) == nil {
			issues = append(issues, fmt.Sprintf("edge %q references unknown source %q", edge.ID, edge.Source))
		}

		if workflow.NodeByID(edge.Target) == nil {
			issues = append(issues, fmt.Sprintf("edge %q references unknown target %q", edge.ID, edge.Target))
		}
	}

	for _, node := range workflow.Nodes {
		outgoing := workflow.EdgesFrom(node.ID)

		if !node.IsTerminal() && len(outgoing) == 0 {
			issues = append(issues, fmt.Sprintf("node %q has no outgoing edge", node.ID))
		}

		switch node.Type {
		case models.NodeTypeCondition:
			issues = append(issues, checkConditionBranches(node.ID, outgoing)...)
		case models.NodeTypeLoop:
			issues = append(issues, checkLoopBranches(node.ID, outgoing)...)
		case models.NodeTypeParallel:
			if len(outgoing) < 2 {
				issues = append(issues, fmt.Sprintf("parallel node %q must fan out to at least two branches", node.ID))
			}
		case models.NodeTypeJoin:
			if len(workflow.EdgesTo(node.ID)) < 2 {
				issues = append(issues, fmt.Sprintf("join node %q must have at least two incoming branches", node.ID))
			}
		default:
			// Linear nodes continue on exactly one non-error edge; a second
			// one would leave the engine guessing which branch to take.
			if n := countNonErrorEdges(outgoing); n > 1 {
				issues = append(issues, fmt.Sprintf("node %q has %d unconditional outgoing edges, want at most one", node.ID, n))
			}
		}
	}

	return issues
}

func countNonErrorEdges(outgoing []*models.Edge) int {
	n := 0

	for _, edge := range outgoing {
		if !edge.IsErrorRoute() {
			n++
		}
	}

	return n
}

func checkConditionBranches(nodeID string, outgoing []*models.Edge) []string {
	var issues []string

	labels := make(map[string]bool, len(outgoing))

	for _, edge := range outgoing {
		if edge.Label == "" {
			issues = append(issues, fmt.Sprintf("condition node %q has an unlabeled branch", nodeID))

			continue
		}

		labels[edge.Label] = true
	}

	exhaustive := labels[models.EdgeLabelDefault] ||
		(labels[models.EdgeLabelTrue] && labels[models.EdgeLabelFalse])
	if !exhaustive {
		issues = append(issues, fmt.Sprintf(
			"condition node %q branches are not exhaustive: need a default branch or both true and false", nodeID))
	}

	return issues
}

func checkLoopBranches(nodeID string, outgoing []*models.Edge) []string {
	var issues []string

	labels := make(map[string]int, len(outgoing))
	for _, edge := range outgoing {
		labels[edge.Label]++
	}

	if labels[models.EdgeLabelBody] != 1 {
		issues = append(issues, fmt.Sprintf("loop node %q must have exactly one body edge", nodeID))
	}

	if labels[models.EdgeLabelDone] != 1 {
		issues = append(issues, fmt.Sprintf("loop node %q must have exactly one done edge", nodeID))
	}

	return issues
}

func checkReachability(workflow *models.Workflow) []string {
	entry := workflow.EntryNode()
	if entry == nil {
		return nil
	}

	visited := make(map[string]bool, len(workflow.Nodes))
	stack := []string{entry.ID}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[id] {
			continue
		}

		visited[id] = true

		for _, edge := range workflow.EdgesFrom(id) {
			stack = append(stack, edge.Target)
		}
	}

	var issues []string

	for _, node := range workflow.Nodes {
		if !visited[node.ID] {
			issues = append(issues, fmt.Sprintf("node %q is unreachable from the trigger", node.ID))
		}
	}

	return issues
}

// checkCycles rejects cycles that do not pass through a LOOP node. A LOOP
// body legitimately routes back to its loop node; anything else would run
// unbounded.
func checkCycles(workflow *models.Workflow) []string {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)

	state := make(map[string]int, len(workflow.Nodes))

	var issues []string

	var visit func(id string, path []string)

	visit = func(id string, path []string) {
		state[id] = inStack
		path = append(path, id)

		for _, edge := range workflow.EdgesFrom(id) {
			switch state[edge.Target] {
			case unvisited:
				visit(edge.Target, path)
			case inStack:
				if !cycleHasLoopNode(workflow, path, edge.Target) {
					issues = append(issues, fmt.Sprintf("cycle through node %q does not pass through a loop node", edge.Target))
				}
			}
		}

		state[id] = done
	}

	for _, node := range workflow.Nodes {
		if state[node.ID] == unvisited {
			visit(node.ID, nil)
		}
	}

	return issues
}

func cycleHasLoopNode(workflow *models.Workflow, path []string, start string) bool {
	inCycle := false

	for _, id := range path {
		if id == start {
			inCycle = true
		}

		if !inCycle {
			continue
		}

		if node := workflow.NodeByID(id); node != nil && node.Type == models.NodeTypeLoop {
			return true
		}
	}

	return false
}
