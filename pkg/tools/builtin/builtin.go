// Package builtin provides the closed set of workflow-construction tools the
// generation loop exposes to the model. Every tool operates on the same
// per-session state: mutating tools edit the session's graph, inspection
// tools read it, and the n8n tools hand the serialized graph to the
// configured instance.
package builtin

import (
	"fmt"
	"log/slog"

	"github.com/flowwright/flowwright/internal/catalog"
	"github.com/flowwright/flowwright/pkg/graph"
	"github.com/flowwright/flowwright/pkg/n8n"
	"github.com/flowwright/flowwright/pkg/tools"
)

// Tool names as registered. The set is closed: the model cannot request
// tools outside it.
const (
	ToolAddNode              = "add_node"
	ToolConnectNodes         = "connect_nodes"
	ToolRemoveNode           = "remove_node"
	ToolUpdateNodeParameters = "update_node_parameters"
	ToolGetCurrentWorkflow   = "get_current_workflow"
	ToolListNodeTypes        = "list_node_types"
	ToolValidateWorkflow     = "validate_workflow_with_n8n"
	ToolCreateWorkflow       = "create_workflow_in_n8n"
)

// DefaultWorkflowName is used when the caller never names the workflow.
const DefaultWorkflowName = "Generated Workflow"

// notConfiguredMsg is returned by the n8n tools when no instance is
// configured. The loop must keep running; only these two tools short-circuit.
const notConfiguredMsg = "n8n API not configured: set n8n.base_url and n8n.api_key to enable this tool"

// SessionConfig holds the collaborators for one generation session.
type SessionConfig struct {
	// Builder is the session's workflow graph. Required.
	Builder *graph.Builder

	// WorkflowName names the serialized workflow. Defaults to
	// DefaultWorkflowName.
	WorkflowName string

	// Catalog backs list_node_types. Optional; without it the tool reports
	// that the catalog is unavailable.
	Catalog *catalog.Catalog

	// Allowlist restricts which node types add_node accepts. Optional; nil
	// allows every type.
	Allowlist *catalog.Allowlist

	// Validator checks workflows before they leave the session. Defaults to
	// n8n.NewValidator().
	Validator *n8n.Validator

	// Client talks to the n8n instance. Optional; nil means the two n8n
	// tools return a "not configured" failure.
	Client *n8n.Client

	Logger *slog.Logger
}

// Session is the shared state one set of tools operates on. Like the graph
// it wraps, a Session belongs to a single generation session and is driven
// from one goroutine.
type Session struct {
	builder   *graph.Builder
	name      string
	catalog   *catalog.Catalog
	allowlist *catalog.Allowlist
	validator *n8n.Validator
	client    *n8n.Client
	logger    *slog.Logger
}

// NewSession creates the shared tool state for one generation session.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Builder == nil {
		return nil, fmt.Errorf("builder is required")
	}

	name := cfg.WorkflowName
	if name == "" {
		name = DefaultWorkflowName
	}
	validator := cfg.Validator
	if validator == nil {
		validator = n8n.NewValidator()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		builder:   cfg.Builder,
		name:      name,
		catalog:   cfg.Catalog,
		allowlist: cfg.Allowlist,
		validator: validator,
		client:    cfg.Client,
		logger:    logger.With("component", "tools"),
	}, nil
}

// Builder returns the session's graph.
func (s *Session) Builder() *graph.Builder {
	return s.builder
}

// WorkflowName returns the name the serialized workflow carries.
func (s *Session) WorkflowName() string {
	return s.name
}

// SetWorkflowName renames the workflow for subsequent serializations.
func (s *Session) SetWorkflowName(name string) {
	if name != "" {
		s.name = name
	}
}

// Validator returns the session's local validator.
func (s *Session) Validator() *n8n.Validator {
	return s.validator
}

// Client returns the n8n API client, or nil when none is configured.
func (s *Session) Client() *n8n.Client {
	return s.client
}

// Workflow serializes the current graph to the n8n wire format.
func (s *Session) Workflow() *n8n.Workflow {
	return s.builder.Workflow(s.name)
}

// Register adds every workflow-construction tool to the registry. Order is
// fixed so the tool descriptors presented to the model are deterministic.
func Register(registry *tools.Registry, session *Session) error {
	toolset := []tools.Tool{
		NewAddNodeTool(session),
		NewConnectNodesTool(session),
		NewRemoveNodeTool(session),
		NewUpdateNodeParametersTool(session),
		NewGetCurrentWorkflowTool(session),
		NewListNodeTypesTool(session),
		NewValidateWorkflowTool(session),
		NewCreateWorkflowTool(session),
	}
	for _, tool := range toolset {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("failed to register %s: %w", tool.Name(), err)
		}
	}
	return nil
}

// stringInput reads a string input, returning "" when absent or mistyped.
// The registry has already validated declared types for registered tools;
// these helpers keep direct Execute calls from panicking.
func stringInput(inputs map[string]interface{}, key string) string {
	s, _ := inputs[key].(string)
	return s
}

// intInput reads an integer input. JSON decoding delivers numbers as
// float64, so whole floats are accepted.
func intInput(inputs map[string]interface{}, key string, def int) int {
	switch v := inputs[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// boolInput reads a boolean input, returning def when absent or mistyped.
func boolInput(inputs map[string]interface{}, key string, def bool) bool {
	if v, ok := inputs[key].(bool); ok {
		return v
	}
	return def
}

// objectInput reads an object input, returning nil when absent or mistyped.
func objectInput(inputs map[string]interface{}, key string) map[string]interface{} {
	m, _ := inputs[key].(map[string]interface{})
	return m
}
