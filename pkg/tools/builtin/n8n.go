package builtin

import (
	"context"
	"fmt"

	"github.com/flowwright/flowwright/pkg/n8n"
	"github.com/flowwright/flowwright/pkg/tools"
)

// ValidateWorkflowTool checks the current workflow locally and, when the
// local result is clean, against the configured n8n instance via a
// create-then-delete round-trip.
type ValidateWorkflowTool struct {
	session *Session
}

// NewValidateWorkflowTool creates the validate_workflow_with_n8n tool for a
// session.
func NewValidateWorkflowTool(session *Session) *ValidateWorkflowTool {
	return &ValidateWorkflowTool{session: session}
}

// Name returns the tool identifier.
func (t *ValidateWorkflowTool) Name() string {
	return ToolValidateWorkflow
}

// Description returns a human-readable description.
func (t *ValidateWorkflowTool) Description() string {
	return "Validate the current workflow locally and against the n8n instance. Fix every reported error before finishing."
}

// Schema returns the tool's input/output schema.
func (t *ValidateWorkflowTool) Schema() *tools.Schema {
	return &tools.Schema{
		Inputs: &tools.ParameterSchema{
			Type: "object",
		},
		Outputs: &tools.ParameterSchema{
			Type: "object",
			Properties: map[string]*tools.Property{
				"success": {
					Type:        "boolean",
					Description: "Whether validation could be performed",
				},
				"valid": {
					Type:        "boolean",
					Description: "Whether the workflow passed every check",
				},
				"errors": {
					Type:        "array",
					Description: "Findings that make the workflow unusable",
				},
				"warnings": {
					Type:        "array",
					Description: "Likely mistakes n8n would still import",
				},
				"remote_checked": {
					Type:        "boolean",
					Description: "Whether the n8n instance was consulted",
				},
				"error": {
					Type:        "string",
					Description: "Failure reason when success is false",
				},
			},
		},
	}
}

// Execute validates the workflow. Validation findings are a successful
// result with valid=false; only an unreachable or unconfigured instance is
// a tool failure.
func (t *ValidateWorkflowTool) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	s := t.session
	if s.client == nil {
		return tools.Fail(notConfiguredMsg), nil
	}

	wf := s.Workflow()
	local := s.validator.Validate(wf)

	out := map[string]interface{}{
		"valid":          local.Valid,
		"errors":         local.Errors,
		"warnings":       local.Warnings,
		"remote_checked": false,
	}
	// Remote round-trips cost a create and a delete; skip them while the
	// local result already names errors to fix.
	if !local.Valid {
		return tools.OK(out), nil
	}

	remote, err := s.client.ValidateByCreate(ctx, wf)
	if err != nil {
		return tools.Failf("remote validation failed: %v", err), nil
	}

	out["remote_checked"] = true
	if !remote.Valid {
		out["valid"] = false
		out["errors"] = append(local.Errors, n8n.Issue{
			Code:       "remote_rejected",
			Message:    fmt.Sprintf("n8n rejected the workflow: %s", remote.Message),
			Suggestion: "Adjust the workflow to address the instance's complaint and validate again",
		})
	}
	return tools.OK(out), nil
}

// CreateWorkflowTool persists the current workflow on the configured n8n
// instance.
type CreateWorkflowTool struct {
	session *Session
}

// NewCreateWorkflowTool creates the create_workflow_in_n8n tool for a
// session.
func NewCreateWorkflowTool(session *Session) *CreateWorkflowTool {
	return &CreateWorkflowTool{session: session}
}

// Name returns the tool identifier.
func (t *CreateWorkflowTool) Name() string {
	return ToolCreateWorkflow
}

// Description returns a human-readable description.
func (t *CreateWorkflowTool) Description() string {
	return "Create the current workflow on the n8n instance, optionally activating it."
}

// Schema returns the tool's input/output schema.
func (t *CreateWorkflowTool) Schema() *tools.Schema {
	return &tools.Schema{
		Inputs: &tools.ParameterSchema{
			Type: "object",
			Properties: map[string]*tools.Property{
				"activate": {
					Type:        "boolean",
					Description: "Activate the workflow after creation so its triggers start firing (defaults to false)",
					Default:     false,
				},
			},
		},
		Outputs: &tools.ParameterSchema{
			Type: "object",
			Properties: map[string]*tools.Property{
				"success": {
					Type:        "boolean",
					Description: "Whether the workflow was created",
				},
				"workflow_id": {
					Type:        "string",
					Description: "ID assigned by the n8n instance",
				},
				"url": {
					Type:        "string",
					Description: "Editor URL for the created workflow",
				},
				"active": {
					Type:        "boolean",
					Description: "Whether the workflow is active",
				},
				"warning": {
					Type:        "string",
					Description: "Set when the workflow was created but activation failed",
				},
				"error": {
					Type:        "string",
					Description: "Failure reason when success is false",
				},
			},
		},
	}
}

// Execute creates the workflow. A failed activation after a successful
// create is reported as a warning, not a failure, so the model does not
// create a duplicate.
func (t *CreateWorkflowTool) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	s := t.session
	if s.client == nil {
		return tools.Fail(notConfiguredMsg), nil
	}

	activate := boolInput(inputs, "activate", false)

	created, err := s.client.Create(ctx, s.Workflow())
	if err != nil {
		return tools.Failf("failed to create workflow: %v", err), nil
	}

	out := map[string]interface{}{
		"workflow_id": created.ID,
		"url":         s.client.EditorURL(created.ID),
		"active":      false,
	}
	if activate {
		if err := s.client.Activate(ctx, created.ID); err != nil {
			out["warning"] = fmt.Sprintf("workflow created but activation failed: %v", err)
		} else {
			out["active"] = true
		}
	}

	s.logger.Info("created workflow in n8n", "workflow_id", created.ID, "active", out["active"])
	return tools.OK(out), nil
}
