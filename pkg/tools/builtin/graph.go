package builtin

import (
	"context"

	"github.com/flowwright/flowwright/pkg/n8n"
	"github.com/flowwright/flowwright/pkg/tools"
)

// AddNodeTool adds a node to the session graph.
type AddNodeTool struct {
	session *Session
}

// NewAddNodeTool creates the add_node tool for a session.
func NewAddNodeTool(session *Session) *AddNodeTool {
	return &AddNodeTool{session: session}
}

// Name returns the tool identifier.
func (t *AddNodeTool) Name() string {
	return ToolAddNode
}

// Description returns a human-readable description.
func (t *AddNodeTool) Description() string {
	return "Add a node to the workflow. Node names must be unique within the workflow."
}

// Schema returns the tool's input/output schema.
func (t *AddNodeTool) Schema() *tools.Schema {
	return &tools.Schema{
		Inputs: &tools.ParameterSchema{
			Type: "object",
			Properties: map[string]*tools.Property{
				"type": {
					Type:        "string",
					Description: "Full namespaced n8n node type, e.g. \"n8n-nodes-base.httpRequest\"",
				},
				"type_version": {
					Type:        "integer",
					Description: "Node type version (defaults to 1)",
				},
				"name": {
					Type:        "string",
					Description: "Unique display name for the node, used by connections",
				},
				"parameters": {
					Type:        "object",
					Description: "Node parameter configuration (optional)",
				},
				"credentials": {
					Type:        "object",
					Description: "Credential references for the node (optional)",
				},
			},
			Required: []string{"type", "name"},
		},
		Outputs: &tools.ParameterSchema{
			Type: "object",
			Properties: map[string]*tools.Property{
				"success": {
					Type:        "boolean",
					Description: "Whether the node was added",
				},
				"node_id": {
					Type:        "string",
					Description: "Builder-assigned node ID",
				},
				"name": {
					Type:        "string",
					Description: "The node's display name",
				},
				"position": {
					Type:        "array",
					Description: "Assigned [x, y] canvas position",
				},
				"error": {
					Type:        "string",
					Description: "Failure reason when success is false",
				},
			},
		},
	}
}

// Execute adds the node. Duplicate names and disallowed types are reported
// as tool failures the model can read and correct.
func (t *AddNodeTool) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	typ := stringInput(inputs, "type")
	name := stringInput(inputs, "name")
	version := intInput(inputs, "type_version", 0)
	parameters := objectInput(inputs, "parameters")
	credentials := objectInput(inputs, "credentials")

	if err := t.session.allowlist.Check(typ); err != nil {
		return tools.Fail(err.Error()), nil
	}

	node, err := t.session.builder.AddNode(typ, version, name, parameters, credentials)
	if err != nil {
		return tools.Fail(err.Error()), nil
	}

	t.session.logger.Debug("added node", "node_id", node.ID, "name", node.Name, "type", node.Type)
	return tools.OK(map[string]interface{}{
		"node_id":  node.ID,
		"name":     node.Name,
		"position": []float64{node.Position[0], node.Position[1]},
	}), nil
}

// ConnectNodesTool wires a directed edge between two existing nodes.
type ConnectNodesTool struct {
	session *Session
}

// NewConnectNodesTool creates the connect_nodes tool for a session.
func NewConnectNodesTool(session *Session) *ConnectNodesTool {
	return &ConnectNodesTool{session: session}
}

// Name returns the tool identifier.
func (t *ConnectNodesTool) Name() string {
	return ToolConnectNodes
}

// Description returns a human-readable description.
func (t *ConnectNodesTool) Description() string {
	return "Connect two nodes so data flows from the source node to the target node."
}

// connectionKindEnum lists the wire format's closed connection kind set.
func connectionKindEnum() []interface{} {
	kinds := make([]interface{}, len(n8n.ConnectionKinds))
	for i, kind := range n8n.ConnectionKinds {
		kinds[i] = kind
	}
	return kinds
}

// Schema returns the tool's input/output schema.
func (t *ConnectNodesTool) Schema() *tools.Schema {
	return &tools.Schema{
		Inputs: &tools.ParameterSchema{
			Type: "object",
			Properties: map[string]*tools.Property{
				"source": {
					Type:        "string",
					Description: "Name of the node the connection leaves",
				},
				"target": {
					Type:        "string",
					Description: "Name of the node the connection enters",
				},
				"source_output": {
					Type:        "integer",
					Description: "Source output port (defaults to 0; IF nodes use 0=true, 1=false)",
				},
				"target_input": {
					Type:        "integer",
					Description: "Target input port (defaults to 0)",
				},
				"kind": {
					Type:        "string",
					Description: "Connection kind: \"main\" for data flow, ai_* for LangChain channels",
					Enum:        connectionKindEnum(),
					Default:     n8n.ConnectionKindMain,
				},
			},
			Required: []string{"source", "target"},
		},
		Outputs: &tools.ParameterSchema{
			Type: "object",
			Properties: map[string]*tools.Property{
				"success": {
					Type:        "boolean",
					Description: "Whether the connection was added",
				},
				"error": {
					Type:        "string",
					Description: "Failure reason when success is false",
				},
			},
		},
	}
}

// Execute adds the connection. Unknown endpoints and duplicate edges are
// tool failures, not errors.
func (t *ConnectNodesTool) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	source := stringInput(inputs, "source")
	target := stringInput(inputs, "target")
	sourceOutput := intInput(inputs, "source_output", 0)
	targetInput := intInput(inputs, "target_input", 0)
	kind := stringInput(inputs, "kind")

	if kind != "" && !n8n.IsConnectionKind(kind) {
		return tools.Failf("unknown connection kind %q, expected one of %v", kind, n8n.ConnectionKinds), nil
	}

	if err := t.session.builder.Connect(source, target, sourceOutput, targetInput, kind); err != nil {
		return tools.Fail(err.Error()), nil
	}

	t.session.logger.Debug("connected nodes", "source", source, "target", target)
	return tools.OK(nil), nil
}

// RemoveNodeTool deletes a node and every connection touching it.
type RemoveNodeTool struct {
	session *Session
}

// NewRemoveNodeTool creates the remove_node tool for a session.
func NewRemoveNodeTool(session *Session) *RemoveNodeTool {
	return &RemoveNodeTool{session: session}
}

// Name returns the tool identifier.
func (t *RemoveNodeTool) Name() string {
	return ToolRemoveNode
}

// Description returns a human-readable description.
func (t *RemoveNodeTool) Description() string {
	return "Remove a node from the workflow along with all of its connections."
}

// Schema returns the tool's input/output schema.
func (t *RemoveNodeTool) Schema() *tools.Schema {
	return &tools.Schema{
		Inputs: &tools.ParameterSchema{
			Type: "object",
			Properties: map[string]*tools.Property{
				"name": {
					Type:        "string",
					Description: "Name of the node to remove",
				},
			},
			Required: []string{"name"},
		},
		Outputs: &tools.ParameterSchema{
			Type: "object",
			Properties: map[string]*tools.Property{
				"success": {
					Type:        "boolean",
					Description: "Always true; removal of a missing node is not a failure",
				},
				"removed": {
					Type:        "boolean",
					Description: "Whether a node with that name existed",
				},
			},
		},
	}
}

// Execute removes the node. Removing a name that does not exist is reported
// with removed=false rather than as a failure.
func (t *RemoveNodeTool) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	name := stringInput(inputs, "name")
	removed := t.session.builder.RemoveNode(name)
	if removed {
		t.session.logger.Debug("removed node", "name", name)
	}
	return tools.OK(map[string]interface{}{"removed": removed}), nil
}

// UpdateNodeParametersTool merges new values into a node's parameter map.
type UpdateNodeParametersTool struct {
	session *Session
}

// NewUpdateNodeParametersTool creates the update_node_parameters tool for a
// session.
func NewUpdateNodeParametersTool(session *Session) *UpdateNodeParametersTool {
	return &UpdateNodeParametersTool{session: session}
}

// Name returns the tool identifier.
func (t *UpdateNodeParametersTool) Name() string {
	return ToolUpdateNodeParameters
}

// Description returns a human-readable description.
func (t *UpdateNodeParametersTool) Description() string {
	return "Update a node's parameters. Keys you provide overwrite existing ones; keys you omit keep their current values."
}

// Schema returns the tool's input/output schema.
func (t *UpdateNodeParametersTool) Schema() *tools.Schema {
	return &tools.Schema{
		Inputs: &tools.ParameterSchema{
			Type: "object",
			Properties: map[string]*tools.Property{
				"name": {
					Type:        "string",
					Description: "Name of the node to update",
				},
				"parameters": {
					Type:        "object",
					Description: "Parameter keys to set or overwrite",
				},
			},
			Required: []string{"name", "parameters"},
		},
		Outputs: &tools.ParameterSchema{
			Type: "object",
			Properties: map[string]*tools.Property{
				"success": {
					Type:        "boolean",
					Description: "Whether the update was applied",
				},
				"error": {
					Type:        "string",
					Description: "Failure reason when success is false",
				},
			},
		},
	}
}

// Execute merges the parameters. An unknown node name is a tool failure.
func (t *UpdateNodeParametersTool) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	name := stringInput(inputs, "name")
	parameters := objectInput(inputs, "parameters")

	if err := t.session.builder.UpdateNodeParameters(name, parameters); err != nil {
		return tools.Fail(err.Error()), nil
	}

	t.session.logger.Debug("updated node parameters", "name", name)
	return tools.OK(nil), nil
}

// GetCurrentWorkflowTool returns the session graph in the n8n wire format.
type GetCurrentWorkflowTool struct {
	session *Session
}

// NewGetCurrentWorkflowTool creates the get_current_workflow tool for a
// session.
func NewGetCurrentWorkflowTool(session *Session) *GetCurrentWorkflowTool {
	return &GetCurrentWorkflowTool{session: session}
}

// Name returns the tool identifier.
func (t *GetCurrentWorkflowTool) Name() string {
	return ToolGetCurrentWorkflow
}

// Description returns a human-readable description.
func (t *GetCurrentWorkflowTool) Description() string {
	return "Return the current workflow as an n8n workflow JSON document."
}

// Schema returns the tool's input/output schema.
func (t *GetCurrentWorkflowTool) Schema() *tools.Schema {
	return &tools.Schema{
		Inputs: &tools.ParameterSchema{
			Type: "object",
		},
		Outputs: &tools.ParameterSchema{
			Type: "object",
			Properties: map[string]*tools.Property{
				"success": {
					Type:        "boolean",
					Description: "Always true",
				},
				"workflow": {
					Type:        "object",
					Description: "The workflow document in n8n wire format",
				},
				"node_count": {
					Type:        "integer",
					Description: "Number of nodes currently in the workflow",
				},
			},
		},
	}
}

// Execute serializes the current graph.
func (t *GetCurrentWorkflowTool) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	return tools.OK(map[string]interface{}{
		"workflow":   t.session.Workflow(),
		"node_count": t.session.builder.Len(),
	}), nil
}
