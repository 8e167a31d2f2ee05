package graph

import "fmt"

// DuplicateNodeError is returned when adding a node whose name is already
// taken. Names are the connection-addressing key, so they must be unique.
type DuplicateNodeError struct {
	Name string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("node %q already exists", e.Name)
}

// NodeNotFoundError is returned when an operation references a node name
// that is not in the graph.
type NodeNotFoundError struct {
	Name string
}

func (e *NodeNotFoundError) Error() string {
	return fmt.Sprintf("node %q does not exist", e.Name)
}

// DuplicateConnectionError is returned when the exact same edge (same
// endpoints, ports and kind) is added twice. Distinct port or kind
// combinations between the same two nodes are legal.
type DuplicateConnectionError struct {
	Source       string
	Target       string
	SourceOutput int
	TargetInput  int
	Kind         string
}

func (e *DuplicateConnectionError) Error() string {
	return fmt.Sprintf("connection from %q output %d to %q input %d (%s) already exists",
		e.Source, e.SourceOutput, e.Target, e.TargetInput, e.Kind)
}
