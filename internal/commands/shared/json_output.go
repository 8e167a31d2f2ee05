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

package shared

import (
	"encoding/json"
	"io"
	"os"
)

// JSONResponse is the base envelope for all JSON output
type JSONResponse struct {
	Version string `json:"@version"`
	Command string `json:"command"`
	Success bool   `json:"success"`
}

// JSONError represents a structured error with code, message, and suggestion
type JSONError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	NodeName   string `json:"node_name,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Error codes for structured JSON output
const (
	// Validation errors (E001-E099)
	ErrorCodeInvalidJSON     = "E001" // Workflow file is not valid JSON
	ErrorCodeGraphViolation  = "E002" // Structural rule violation (bad connection, bad type)
	ErrorCodeDisallowedNode  = "E003" // Node type outside the allowlist
	ErrorCodeRemoteRejected  = "E004" // n8n API rejected the workflow

	// Generation errors (E100-E199)
	ErrorCodeProviderNotFound = "E101" // Provider not found or not configured
	ErrorCodeProviderTimeout  = "E102" // Provider timeout
	ErrorCodeGenerationFailed = "E103" // Generation loop failed
	ErrorCodeNeedsHumanInput  = "E104" // Model asked for information it cannot invent

	// Configuration errors (E200-E299)
	ErrorCodeConfigNotFound = "E201" // Config file not found
	ErrorCodeInvalidConfig  = "E202" // Invalid configuration
	ErrorCodeMissingAPIKey  = "E203" // Missing API key

	// Input errors (E300-E399)
	ErrorCodeMissingInput = "E301" // Required input missing
	ErrorCodeFileNotFound = "E302" // File not found
)

// jsonOut is swapped in tests to capture output.
var jsonOut io.Writer = os.Stdout

// emitJSON marshals a response to JSON and outputs it to stdout
// This ensures consistent formatting and error handling across all commands
func emitJSON(response interface{}) error {
	encoder := json.NewEncoder(jsonOut)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// EmitJSON is the exported version of emitJSON for use by command packages
func EmitJSON(response interface{}) error {
	return emitJSON(response)
}

// EmitJSONError creates and emits a JSON error response
func EmitJSONError(command string, errors []JSONError) error {
	type errorResponse struct {
		JSONResponse
		Errors []JSONError `json:"errors"`
	}

	resp := errorResponse{
		JSONResponse: JSONResponse{
			Version: "1.0",
			Command: command,
			Success: false,
		},
		Errors: errors,
	}

	return emitJSON(resp)
}

// MapExitErrorToCode maps ExitError codes to JSON error codes
func MapExitErrorToCode(exitErr *ExitError) string {
	if exitErr == nil {
		return ""
	}

	switch exitErr.Code {
	case ExitInvalidWorkflow:
		return ErrorCodeGraphViolation
	case ExitMissingInput, ExitMissingInputNonInteractive:
		return ErrorCodeMissingInput
	case ExitProviderError:
		return ErrorCodeProviderNotFound
	case ExitGenerationFailed:
		return ErrorCodeGenerationFailed
	default:
		return ErrorCodeGenerationFailed
	}
}
