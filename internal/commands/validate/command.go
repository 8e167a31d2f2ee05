// Copyright 2025 The Flowwright Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package validate

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowwright/flowwright/internal/catalog"
	"github.com/flowwright/flowwright/internal/commands/shared"
	"github.com/flowwright/flowwright/internal/config"
	"github.com/flowwright/flowwright/internal/log"
	"github.com/flowwright/flowwright/pkg/n8n"
)

// NewCommand creates the validate command
func NewCommand() *cobra.Command {
	var (
		remote         bool
		checkAllowlist bool
	)

	cmd := &cobra.Command{
		Use:   "validate <workflow.json>",
		Short: "Validate a workflow JSON file",
		Long: `Validate checks that a workflow file is valid JSON and satisfies n8n's
structural rules: known node type namespaces, resolvable connection
endpoints, and required node fields. Shape problems that n8n tolerates
(no trigger, orphan nodes) are reported as warnings and never fail
validation.

Pass "-" to read the workflow from stdin.

With --remote the workflow is additionally submitted to the configured
n8n instance, which applies the checks only the product itself can run.
The probe workflow is created inactive and deleted again afterwards.

With --allowlist the node types are also checked against the
generation.allowed_node_types patterns from the config file.`,
		Example: `  # Example 1: Basic validation
  flowwright validate workflow.json

  # Example 2: Validate with JSON output for parsing
  flowwright validate workflow.json --json

  # Example 3: Validate against the configured n8n instance
  flowwright validate workflow.json --remote

  # Example 4: Validate a freshly generated workflow from stdin
  flowwright build "poll an RSS feed" -o - | flowwright validate -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0], remote, checkAllowlist)
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Also validate against the configured n8n instance")
	cmd.Flags().BoolVar(&checkAllowlist, "allowlist", false, "Check node types against the configured allowlist")

	return cmd
}

// validateResponse is the JSON envelope for validation results.
type validateResponse struct {
	shared.JSONResponse
	Valid         bool              `json:"valid"`
	Errors        []n8n.Issue       `json:"errors"`
	Warnings      []n8n.Issue       `json:"warnings"`
	RemoteChecked bool              `json:"remote_checked"`
	Workflow      *workflowMetadata `json:"workflow,omitempty"`
}

type workflowMetadata struct {
	Name  string `json:"name"`
	Nodes int    `json:"nodes"`
}

func runValidate(cmd *cobra.Command, path string, remote, checkAllowlist bool) error {
	useJSON := shared.GetJSON()

	data, err := readWorkflow(path)
	if err != nil {
		if useJSON {
			_ = shared.EmitJSONError("validate", []shared.JSONError{{
				Code:       shared.ErrorCodeFileNotFound,
				Message:    fmt.Sprintf("failed to read workflow file: %v", err),
				Suggestion: "Check that the file path is correct and the file exists",
			}})
			return &shared.ExitError{Code: shared.ExitMissingInput, Message: ""}
		}
		return shared.NewMissingInputError(fmt.Sprintf("failed to read workflow file: %v", err), nil)
	}

	wf, err := n8n.Parse(data)
	if err != nil {
		if useJSON {
			_ = shared.EmitJSONError("validate", []shared.JSONError{{
				Code:       shared.ErrorCodeInvalidJSON,
				Message:    err.Error(),
				Suggestion: "The file must contain a single n8n workflow document",
			}})
			return &shared.ExitError{Code: shared.ExitInvalidWorkflow, Message: ""}
		}
		return shared.NewInvalidWorkflowError(fmt.Sprintf("parse workflow: %v", err), nil)
	}

	result := n8n.NewValidator().Validate(wf)

	cfg, _, cfgErr := config.LoadWithSecrets(shared.GetConfigPath())
	if cfgErr != nil && (remote || checkAllowlist) {
		return shared.NewGenerationError("load config", cfgErr)
	}

	if checkAllowlist && cfg != nil && len(cfg.Generation.AllowedNodeTypes) > 0 {
		allowlist := catalog.NewAllowlist(cfg.Generation.AllowedNodeTypes)
		for _, node := range wf.Nodes {
			if err := allowlist.Check(node.Type); err != nil {
				result.Errors = append(result.Errors, n8n.Issue{
					Code:       "disallowed_node_type",
					Node:       node.Name,
					Message:    err.Error(),
					Suggestion: "use a node type matching generation.allowed_node_types",
				})
				result.Valid = false
			}
		}
	}

	remoteChecked := false
	if remote && result.Valid {
		logger := log.New(log.DefaultConfig())
		client, err := n8n.NewClient(n8n.ClientConfig{
			BaseURL:   cfg.N8N.BaseURL,
			APIKey:    cfg.N8N.APIKey,
			Timeout:   cfg.N8N.Timeout,
			RateLimit: cfg.N8N.RequestsPerSecond,
			Logger:    logger,
		})
		if err != nil {
			return shared.NewGenerationError("n8n client", err)
		}

		rv, err := client.ValidateByCreate(cmd.Context(), wf)
		if err != nil {
			return shared.NewGenerationError("remote validation failed", err)
		}
		remoteChecked = true
		if !rv.Valid {
			result.Valid = false
			result.Errors = append(result.Errors, n8n.Issue{
				Code:       "remote_rejected",
				Message:    rv.Message,
				Suggestion: "Adjust the workflow to address the instance's complaint and validate again",
			})
		}
	}

	if useJSON {
		return emitJSONResult(path, wf, result, remoteChecked)
	}
	return printResult(cmd, path, wf, result, remoteChecked)
}

func readWorkflow(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func emitJSONResult(path string, wf *n8n.Workflow, result *n8n.ValidationResult, remoteChecked bool) error {
	resp := validateResponse{
		JSONResponse: shared.JSONResponse{
			Version: "1.0",
			Command: "validate",
			Success: result.Valid,
		},
		Valid:         result.Valid,
		Errors:        result.Errors,
		Warnings:      result.Warnings,
		RemoteChecked: remoteChecked,
		Workflow: &workflowMetadata{
			Name:  wf.Name,
			Nodes: len(wf.Nodes),
		},
	}

	if err := shared.EmitJSON(resp); err != nil {
		return err
	}
	if !result.Valid {
		return &shared.ExitError{Code: shared.ExitInvalidWorkflow, Message: ""}
	}
	return nil
}

func printResult(cmd *cobra.Command, path string, wf *n8n.Workflow, result *n8n.ValidationResult, remoteChecked bool) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	for _, issue := range result.Errors {
		if issue.Node != "" {
			fmt.Fprintf(errOut, "%s: error: [%s] %s\n", path, issue.Node, issue.Message)
		} else {
			fmt.Fprintf(errOut, "%s: error: %s\n", path, issue.Message)
		}
		if issue.Suggestion != "" {
			fmt.Fprintf(errOut, "  Suggestion: %s\n", issue.Suggestion)
		}
	}

	for _, issue := range result.Warnings {
		if issue.Node != "" {
			fmt.Fprintf(out, "%s [%s] %s\n", shared.RenderWarn("warning:"), issue.Node, issue.Message)
		} else {
			fmt.Fprintf(out, "%s %s\n", shared.RenderWarn("warning:"), issue.Message)
		}
	}

	if !result.Valid {
		return shared.NewInvalidWorkflowError("validation failed", nil)
	}

	name := wf.Name
	if name == "" {
		name = path
	}
	summary := fmt.Sprintf("%s is valid (%d nodes", name, len(wf.Nodes))
	if remoteChecked {
		summary += ", accepted by n8n"
	}
	summary += ")"
	fmt.Fprintln(out, shared.RenderOK(summary))

	return nil
}
