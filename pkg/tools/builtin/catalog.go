package builtin

import (
	"context"

	"github.com/flowwright/flowwright/pkg/tools"
)

// ListNodeTypesTool searches the advisory node type catalog. The catalog
// helps the model pick real types and versions; it is never used to
// validate a workflow.
type ListNodeTypesTool struct {
	session *Session
}

// NewListNodeTypesTool creates the list_node_types tool for a session.
func NewListNodeTypesTool(session *Session) *ListNodeTypesTool {
	return &ListNodeTypesTool{session: session}
}

// Name returns the tool identifier.
func (t *ListNodeTypesTool) Name() string {
	return ToolListNodeTypes
}

// Description returns a human-readable description.
func (t *ListNodeTypesTool) Description() string {
	return "Search the catalog of known n8n node types by name, alias, or description."
}

// Schema returns the tool's input/output schema.
func (t *ListNodeTypesTool) Schema() *tools.Schema {
	return &tools.Schema{
		Inputs: &tools.ParameterSchema{
			Type: "object",
			Properties: map[string]*tools.Property{
				"query": {
					Type:        "string",
					Description: "Search term, e.g. \"http\", \"slack\", \"loop\". Empty lists the catalog from the top.",
				},
				"limit": {
					Type:        "integer",
					Description: "Maximum number of results (defaults to 20)",
				},
			},
		},
		Outputs: &tools.ParameterSchema{
			Type: "object",
			Properties: map[string]*tools.Property{
				"success": {
					Type:        "boolean",
					Description: "Whether the catalog was searched",
				},
				"node_types": {
					Type:        "array",
					Description: "Matching node types with display names and latest versions",
				},
				"count": {
					Type:        "integer",
					Description: "Number of results returned",
				},
				"error": {
					Type:        "string",
					Description: "Failure reason when success is false",
				},
			},
		},
	}
}

// Execute searches the catalog.
func (t *ListNodeTypesTool) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	if t.session.catalog == nil {
		return tools.Fail("node type catalog is not available"), nil
	}

	query := stringInput(inputs, "query")
	limit := intInput(inputs, "limit", 0)

	matches := t.session.catalog.Search(query, limit)
	return tools.OK(map[string]interface{}{
		"node_types": matches,
		"count":      len(matches),
	}), nil
}
