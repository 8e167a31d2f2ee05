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

package build

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/flowwright/flowwright/internal/commands/shared"
	"github.com/flowwright/flowwright/pkg/agent"
)

// buildResponse is the machine-readable result envelope.
type buildResponse struct {
	shared.JSONResponse
	SessionID          string          `json:"session_id"`
	Message            string          `json:"message,omitempty"`
	RequiresHumanInput bool            `json:"requires_human_input,omitempty"`
	Workflow           json.RawMessage `json:"workflow,omitempty"`
	Errors             []string        `json:"errors,omitempty"`
	Warnings           []string        `json:"warnings,omitempty"`
	Stats              buildStats      `json:"stats"`
}

type buildStats struct {
	Provider   string `json:"provider"`
	Model      string `json:"model,omitempty"`
	Turns      int    `json:"turns"`
	Retries    int    `json:"retries"`
	DurationMS int64  `json:"duration_ms"`
	TokensIn   int    `json:"tokens_in"`
	TokensOut  int    `json:"tokens_out"`
}

// emitResult prints the generation outcome and returns the exit-coded
// error for unsuccessful runs.
func emitResult(result *agent.Result, opts *buildOptions, providerName, model string) error {
	if shared.GetJSON() {
		return emitJSONResult(result, providerName, model)
	}
	return emitTextResult(result, opts)
}

func emitJSONResult(result *agent.Result, providerName, model string) error {
	resp := buildResponse{
		JSONResponse: shared.JSONResponse{
			Version: "1.0",
			Command: "build",
			Success: result.Success,
		},
		SessionID:          result.SessionID,
		Message:            result.Message,
		RequiresHumanInput: result.RequiresHumanInput,
		Errors:             result.Errors,
		Warnings:           result.Warnings,
		Stats: buildStats{
			Provider:   providerName,
			Model:      model,
			Turns:      result.Turns,
			Retries:    result.RetriesUsed,
			DurationMS: result.Duration.Milliseconds(),
			TokensIn:   result.TokensUsed.InputTokens,
			TokensOut:  result.TokensUsed.OutputTokens,
		},
	}
	if len(result.WorkflowJSON) > 0 {
		resp.Workflow = json.RawMessage(result.WorkflowJSON)
	}

	if err := shared.EmitJSON(resp); err != nil {
		return err
	}
	return failureExit(result, "")
}

func emitTextResult(result *agent.Result, opts *buildOptions) error {
	quiet := shared.GetQuiet()

	if !quiet {
		printMessage(result)
		for _, w := range result.Warnings {
			fmt.Fprintf(os.Stderr, "%s %s\n", shared.RenderWarn("warning:"), w)
		}
	}

	if !result.Success {
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "%s %s\n", shared.RenderError("error:"), e)
		}
		if !quiet {
			printFailureStatus(result)
		}
		// A partial workflow written to an explicit file is still useful
		// for inspection; stdout stays clean on failure.
		if opts.output != "" && opts.output != "-" && len(result.WorkflowJSON) > 0 {
			if err := shared.WriteOutput(opts.output, result.WorkflowJSON); err == nil && !quiet {
				fmt.Fprintf(os.Stderr, "Wrote partial workflow to %s\n", opts.output)
			}
		}
		return failureExit(result, failureMessage(result))
	}

	if !quiet {
		name := ""
		nodes := 0
		if result.Workflow != nil {
			name = result.Workflow.Name
			nodes = len(result.Workflow.Nodes)
		}
		fmt.Fprintf(os.Stderr, "%s\n", shared.RenderOK(fmt.Sprintf(
			"%s (%d nodes, %d turns in %s)",
			name, nodes, result.Turns, result.Duration.Round(time.Second))))
		fmt.Fprintf(os.Stderr, "%s\n", shared.Muted.Render(fmt.Sprintf(
			"%d retries, %d in / %d out tokens, session %s",
			result.RetriesUsed, result.TokensUsed.InputTokens,
			result.TokensUsed.OutputTokens, shortID(result.SessionID))))
	}

	return emitWorkflow(result.WorkflowJSON, opts)
}

// emitWorkflow writes the finished workflow JSON to its destination,
// applying --query and --copy first.
func emitWorkflow(data []byte, opts *buildOptions) error {
	if len(data) == 0 {
		return nil
	}

	if opts.query != "" {
		var doc interface{}
		if err := json.Unmarshal(data, &doc); err != nil {
			return shared.NewGenerationError("failed to parse workflow for query", err)
		}
		out, err := shared.ApplyQuery(opts.query, doc)
		if err != nil {
			return shared.NewGenerationError("query failed", err)
		}
		filtered, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return shared.NewGenerationError("failed to encode query result", err)
		}
		data = filtered
	}

	if opts.copyOut {
		if err := shared.CopyToClipboard(string(data)); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", shared.RenderWarn("warning:"), err)
		} else if !shared.GetQuiet() {
			fmt.Fprintln(os.Stderr, "Copied workflow JSON to clipboard")
		}
	}

	if !strings.HasSuffix(string(data), "\n") {
		data = append(data, '\n')
	}
	if err := shared.WriteOutput(opts.output, data); err != nil {
		return shared.NewGenerationError("failed to write workflow", err)
	}
	if opts.output != "" && opts.output != "-" && !shared.GetQuiet() {
		fmt.Fprintf(os.Stderr, "Wrote workflow to %s\n", opts.output)
	}
	return nil
}

// printMessage renders the model's closing commentary to stderr, as
// markdown when stderr is a terminal.
func printMessage(result *agent.Result) {
	msg := strings.TrimSpace(result.Message)
	if msg == "" {
		return
	}
	fmt.Fprintln(os.Stderr, strings.TrimRight(shared.RenderMarkdown(msg), "\n"))
}

func printFailureStatus(result *agent.Result) {
	if result.RequiresHumanInput {
		fmt.Fprintf(os.Stderr, "%s\n", shared.RenderWarn("generation paused: the model needs more information"))
		return
	}
	fmt.Fprintf(os.Stderr, "%s\n", shared.RenderError(fmt.Sprintf(
		"generation failed after %d turns (session %s)",
		result.Turns, shortID(result.SessionID))))
}

// failureExit maps an unsuccessful result onto the exit-code table. The
// message is empty in JSON mode, where the envelope already told the story.
func failureExit(result *agent.Result, msg string) error {
	switch {
	case result.Success:
		return nil
	case result.RequiresHumanInput:
		if shared.GetJSON() || shared.IsNonInteractive() {
			return &shared.ExitError{Code: shared.ExitMissingInputNonInteractive, Message: msg}
		}
		return &shared.ExitError{Code: shared.ExitMissingInput, Message: msg}
	case len(result.Errors) > 0:
		return &shared.ExitError{Code: shared.ExitInvalidWorkflow, Message: msg}
	default:
		return &shared.ExitError{Code: shared.ExitGenerationFailed, Message: msg}
	}
}

func failureMessage(result *agent.Result) string {
	switch {
	case result.RequiresHumanInput:
		return "generation needs a human answer; re-run interactively or refine the description"
	case len(result.Errors) > 0:
		return "the generated workflow failed validation"
	default:
		return "the model did not produce a valid workflow within the turn budget"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
