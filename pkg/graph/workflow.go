package graph

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/flowwright/flowwright/pkg/n8n"
)

// Workflow serializes the graph to the n8n wire format under the given
// workflow name. Nodes appear in creation order. Connections are grouped by
// source node name and kind; each (source, kind) slot array is sized to the
// highest used output port plus one, with empty (not null) arrays at unused
// lower slots, because n8n indexes slot arrays by output port.
func (b *Builder) Workflow(name string) *n8n.Workflow {
	nodes := make([]n8n.Node, 0, len(b.nodes))
	for _, node := range b.nodes {
		wireNode := n8n.Node{
			ID:          node.ID,
			Name:        node.Name,
			Type:        node.Type,
			TypeVersion: float64(node.TypeVersion),
			Position:    []float64{node.Position[0], node.Position[1]},
			Parameters:  node.Parameters,
		}
		if len(node.Credentials) > 0 {
			wireNode.Credentials = node.Credentials
		}
		nodes = append(nodes, wireNode)
	}

	connections := make(n8n.ConnectionMap)
	for _, conn := range b.connections {
		kinds, ok := connections[conn.Source]
		if !ok {
			kinds = make(map[string][][]n8n.Connection)
			connections[conn.Source] = kinds
		}
		slots := kinds[conn.Kind]
		for len(slots) <= conn.SourceOutput {
			slots = append(slots, []n8n.Connection{})
		}
		slots[conn.SourceOutput] = append(slots[conn.SourceOutput], n8n.Connection{
			Node:  conn.Target,
			Type:  conn.Kind,
			Index: conn.TargetInput,
		})
		kinds[conn.Kind] = slots
	}

	return &n8n.Workflow{
		Name:        name,
		Nodes:       nodes,
		Connections: connections,
		Settings:    &n8n.Settings{ExecutionOrder: n8n.ExecutionOrderV1},
	}
}

// Load replaces the graph with the contents of a wire-format document, so an
// existing workflow can be inspected or revised. The builder is only
// modified when the whole document loads: duplicate node names and
// connections referencing nodes that do not exist are rejected up front.
//
// The ID counter resumes after the highest builder-style ID ("node_<n>")
// found; imported documents with foreign IDs (n8n assigns UUIDs) leave the
// counter untouched, which is safe because fresh IDs can never collide with
// them.
func (b *Builder) Load(wf *n8n.Workflow) error {
	nodes := make([]*Node, 0, len(wf.Nodes))
	byName := make(map[string]*Node, len(wf.Nodes))
	counter := 0

	for _, wireNode := range wf.Nodes {
		if wireNode.Name == "" {
			return fmt.Errorf("node %q has no name", wireNode.ID)
		}
		if _, exists := byName[wireNode.Name]; exists {
			return fmt.Errorf("Duplicate node name: %q", wireNode.Name)
		}

		node := &Node{
			ID:          wireNode.ID,
			Name:        wireNode.Name,
			Type:        wireNode.Type,
			TypeVersion: int(wireNode.TypeVersion),
			Parameters:  wireNode.Parameters,
			Credentials: wireNode.Credentials,
		}
		if node.TypeVersion < 1 {
			node.TypeVersion = 1
		}
		if len(wireNode.Position) >= 2 {
			node.Position = [2]float64{wireNode.Position[0], wireNode.Position[1]}
		}
		if node.Parameters == nil {
			node.Parameters = make(map[string]any)
		}
		if node.Credentials == nil {
			node.Credentials = make(map[string]any)
		}
		if n, ok := parseBuilderID(wireNode.ID); ok && n > counter {
			counter = n
		}

		nodes = append(nodes, node)
		byName[node.Name] = node
	}

	connections, err := flattenConnections(wf.Connections, byName)
	if err != nil {
		return err
	}

	b.nodes = nodes
	b.byName = byName
	b.connections = connections
	b.counter = counter
	return nil
}

// flattenConnections turns the nested wire map back into an edge list,
// visiting sources and kinds in sorted order so a load-then-serialize
// round-trip is deterministic.
func flattenConnections(wire n8n.ConnectionMap, byName map[string]*Node) ([]Connection, error) {
	sources := make([]string, 0, len(wire))
	for source := range wire {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	var conns []Connection
	for _, source := range sources {
		if _, exists := byName[source]; !exists {
			return nil, fmt.Errorf("connection source node %q does not exist", source)
		}

		kinds := make([]string, 0, len(wire[source]))
		for kind := range wire[source] {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)

		for _, kind := range kinds {
			for output, slot := range wire[source][kind] {
				for _, target := range slot {
					if _, exists := byName[target.Node]; !exists {
						return nil, fmt.Errorf("connection target node %q does not exist", target.Node)
					}
					conns = append(conns, Connection{
						Source:       source,
						Target:       target.Node,
						SourceOutput: output,
						TargetInput:  target.Index,
						Kind:         kind,
					})
				}
			}
		}
	}
	return conns, nil
}

// parseBuilderID extracts n from a "node_<n>" ID.
func parseBuilderID(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "node_")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
