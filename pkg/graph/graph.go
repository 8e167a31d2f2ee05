// Package graph maintains the in-memory workflow graph a generation session
// mutates through tool calls, and serializes it to the n8n wire format.
//
// A Builder belongs to exactly one session and is driven from a single
// goroutine; there is no package-level state. Node types are opaque
// namespaced strings here: whether a type actually exists is the validator's
// and the n8n instance's concern, never the graph's.
package graph

import (
	"fmt"

	"github.com/flowwright/flowwright/pkg/n8n"
)

// Node is one node in the session graph.
//
// Parameters and Credentials are held by reference; callers must treat the
// maps as read-only and go through UpdateNodeParameters for changes.
type Node struct {
	// ID is assigned by the builder: "node_1", "node_2", ... in creation
	// order. IDs are never reused, even after a removal.
	ID string

	// Name is the unique display name connections address.
	Name string

	// Type is the namespaced node type, e.g. "n8n-nodes-base.slack".
	Type string

	TypeVersion int

	// Position is the [x, y] canvas placement.
	Position [2]float64

	Parameters  map[string]any
	Credentials map[string]any
}

// Connection is a directed edge between two named nodes.
type Connection struct {
	Source       string
	Target       string
	SourceOutput int
	TargetInput  int

	// Kind is the connection channel, "main" for ordinary data flow.
	Kind string
}

// Builder accumulates nodes and connections for one generation session.
type Builder struct {
	nodes       []*Node
	byName      map[string]*Node
	connections []Connection

	// counter is the number of node IDs ever assigned; it only grows.
	counter int
}

// NewBuilder creates an empty graph for a new session.
func NewBuilder() *Builder {
	return &Builder{
		byName: make(map[string]*Node),
	}
}

// gridPosition places the k-th created node (k starting at 0) on a fixed
// 4-column grid so generated workflows open readably in the n8n editor.
func gridPosition(k int) [2]float64 {
	col := k % 4
	row := k / 4
	return [2]float64{100 + float64(col)*250, 100 + float64(row)*150}
}

// AddNode adds a node and returns it with its assigned ID and position.
// A duplicate name returns a DuplicateNodeError and leaves the graph and
// the ID counter untouched. Nil maps are normalized to empty maps and a
// non-positive typeVersion falls back to 1.
func (b *Builder) AddNode(typ string, typeVersion int, name string, parameters, credentials map[string]any) (*Node, error) {
	if name == "" {
		return nil, fmt.Errorf("node name must not be empty")
	}
	if typ == "" {
		return nil, fmt.Errorf("node type must not be empty")
	}
	if _, exists := b.byName[name]; exists {
		return nil, &DuplicateNodeError{Name: name}
	}

	if typeVersion < 1 {
		typeVersion = 1
	}
	if parameters == nil {
		parameters = make(map[string]any)
	}
	if credentials == nil {
		credentials = make(map[string]any)
	}

	node := &Node{
		ID:          fmt.Sprintf("node_%d", b.counter+1),
		Name:        name,
		Type:        typ,
		TypeVersion: typeVersion,
		Position:    gridPosition(b.counter),
		Parameters:  parameters,
		Credentials: credentials,
	}
	b.counter++
	b.nodes = append(b.nodes, node)
	b.byName[name] = node

	clone := *node
	return &clone, nil
}

// RemoveNode deletes a node by name, reporting whether it existed. Every
// connection touching the node, as source or target, is pruned with it.
// The ID counter is not rewound.
func (b *Builder) RemoveNode(name string) bool {
	if _, exists := b.byName[name]; !exists {
		return false
	}
	delete(b.byName, name)

	nodes := b.nodes[:0]
	for _, node := range b.nodes {
		if node.Name != name {
			nodes = append(nodes, node)
		}
	}
	b.nodes = nodes

	conns := b.connections[:0]
	for _, conn := range b.connections {
		if conn.Source != name && conn.Target != name {
			conns = append(conns, conn)
		}
	}
	b.connections = conns
	return true
}

// UpdateNodeParameters merges the given parameters into the node's existing
// ones, overwriting keys present in both. The merge is shallow: a nested
// object replaces the stored one, it is not merged into it.
func (b *Builder) UpdateNodeParameters(name string, parameters map[string]any) error {
	node, exists := b.byName[name]
	if !exists {
		return &NodeNotFoundError{Name: name}
	}
	if node.Parameters == nil {
		node.Parameters = make(map[string]any, len(parameters))
	}
	for k, v := range parameters {
		node.Parameters[k] = v
	}
	return nil
}

// Connect adds a directed edge between two existing nodes. An empty kind
// defaults to "main". Self-connections are allowed (n8n tolerates them);
// the exact same edge twice is not.
func (b *Builder) Connect(source, target string, sourceOutput, targetInput int, kind string) error {
	if kind == "" {
		kind = n8n.ConnectionKindMain
	}
	if _, exists := b.byName[source]; !exists {
		return fmt.Errorf("cannot connect %q to %q: %w", source, target, &NodeNotFoundError{Name: source})
	}
	if _, exists := b.byName[target]; !exists {
		return fmt.Errorf("cannot connect %q to %q: %w", source, target, &NodeNotFoundError{Name: target})
	}
	if sourceOutput < 0 || targetInput < 0 {
		return fmt.Errorf("cannot connect %q to %q: port indices must not be negative", source, target)
	}

	conn := Connection{
		Source:       source,
		Target:       target,
		SourceOutput: sourceOutput,
		TargetInput:  targetInput,
		Kind:         kind,
	}
	for _, existing := range b.connections {
		if existing == conn {
			return &DuplicateConnectionError{
				Source:       source,
				Target:       target,
				SourceOutput: sourceOutput,
				TargetInput:  targetInput,
				Kind:         kind,
			}
		}
	}
	b.connections = append(b.connections, conn)
	return nil
}

// Node returns a copy of the named node, if present.
func (b *Builder) Node(name string) (*Node, bool) {
	node, exists := b.byName[name]
	if !exists {
		return nil, false
	}
	clone := *node
	return &clone, true
}

// Nodes returns the nodes in creation order. The slice and structs are
// copies; mutating them does not touch the graph.
func (b *Builder) Nodes() []*Node {
	nodes := make([]*Node, 0, len(b.nodes))
	for _, node := range b.nodes {
		clone := *node
		nodes = append(nodes, &clone)
	}
	return nodes
}

// Connections returns the connections in creation order.
func (b *Builder) Connections() []Connection {
	conns := make([]Connection, len(b.connections))
	copy(conns, b.connections)
	return conns
}

// Len returns the number of nodes currently in the graph.
func (b *Builder) Len() int {
	return len(b.nodes)
}

// Reset clears the graph and rewinds the ID counter. Meant for starting a
// fresh session, not for undoing work inside one.
func (b *Builder) Reset() {
	b.nodes = nil
	b.byName = make(map[string]*Node)
	b.connections = nil
	b.counter = 0
}
