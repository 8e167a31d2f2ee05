// Package n8n defines the n8n workflow wire format, a local validator for it,
// and a REST client for the n8n public API.
//
// The wire format matches what the n8n editor imports and what
// POST /api/v1/workflows accepts: a flat node list plus a nested connection
// map keyed by source node name, then connection kind, then output slot.
package n8n

import (
	"encoding/json"
	"fmt"
)

// Workflow is the top-level n8n workflow document.
type Workflow struct {
	// ID is assigned by the n8n instance. Empty for documents built locally.
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Active bool   `json:"active,omitempty"`

	Nodes       []Node        `json:"nodes"`
	Connections ConnectionMap `json:"connections"`
	Settings    *Settings     `json:"settings,omitempty"`
}

// Node is a single node instance in a workflow.
type Node struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Type is a namespaced node type such as "n8n-nodes-base.webhook".
	Type string `json:"type"`

	// TypeVersion is a JSON number on the wire; n8n uses fractional
	// versions for some node types (e.g. 1.1).
	TypeVersion float64 `json:"typeVersion"`

	// Position is the [x, y] canvas placement.
	Position []float64 `json:"position"`

	Parameters  map[string]any `json:"parameters"`
	Credentials map[string]any `json:"credentials,omitempty"`
}

// ConnectionMap maps source node NAME -> connection kind -> output slot ->
// targets. Slot arrays are indexed by the source output port, so a connection
// leaving output 1 lives at index 1 and lower slots hold empty (not null)
// arrays.
type ConnectionMap map[string]map[string][][]Connection

// Connection is a single edge target within a slot array.
type Connection struct {
	// Node is the target node's name.
	Node string `json:"node"`

	// Type is the connection kind, "main" for ordinary data flow.
	Type string `json:"type"`

	// Index is the target node's input port.
	Index int `json:"index"`
}

// Settings holds workflow-level execution settings.
type Settings struct {
	ExecutionOrder string `json:"executionOrder,omitempty"`
}

// ExecutionOrderV1 is the execution ordering every generated workflow declares.
// n8n's legacy "v0" ordering is not supported.
const ExecutionOrderV1 = "v1"

// ConnectionKindMain is the default connection kind for ordinary data flow.
const ConnectionKindMain = "main"

// ConnectionKinds is the closed set of connection kinds the wire format
// admits: "main" plus the AI channel kinds used by the LangChain node family.
var ConnectionKinds = []string{
	ConnectionKindMain,
	"ai_agent",
	"ai_chain",
	"ai_document",
	"ai_embedding",
	"ai_languageModel",
	"ai_memory",
	"ai_outputParser",
	"ai_retriever",
	"ai_textSplitter",
	"ai_tool",
	"ai_vectorStore",
}

// IsConnectionKind reports whether kind is in the closed connection kind set.
func IsConnectionKind(kind string) bool {
	for _, k := range ConnectionKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Parse decodes a workflow document from JSON. Unknown fields are tolerated
// because n8n exports carry instance metadata (pinData, versionId, meta) that
// is irrelevant here. Structural checks are the Validator's job; Parse only
// rejects malformed JSON.
func Parse(data []byte) (*Workflow, error) {
	var wf Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("failed to parse workflow JSON: %w", err)
	}
	return &wf, nil
}

// JSON renders the workflow as indented JSON, the form users paste into the
// n8n editor.
func (w *Workflow) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode workflow: %w", err)
	}
	return data, nil
}

// NodeByName returns the node with the given name, if present.
func (w *Workflow) NodeByName(name string) (*Node, bool) {
	for i := range w.Nodes {
		if w.Nodes[i].Name == name {
			return &w.Nodes[i], true
		}
	}
	return nil, false
}
