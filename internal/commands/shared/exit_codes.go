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
	"errors"
	"fmt"
	"os"

	pkgerrors "github.com/flowwright/flowwright/pkg/errors"
)

// Exit codes shared across flowwright commands
const (
	ExitSuccess                    = 0
	ExitGenerationFailed           = 1
	ExitInvalidWorkflow            = 2
	ExitMissingInput               = 3
	ExitProviderError              = 4
	ExitMissingInputNonInteractive = 70 // Missing inputs in non-interactive mode (EX_SOFTWARE from sysexits.h)
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewGenerationError creates an error for generation loop failures
func NewGenerationError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitGenerationFailed,
		Message: msg,
		Cause:   cause,
	}
}

// NewInvalidWorkflowError creates an error for workflows that fail validation
func NewInvalidWorkflowError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitInvalidWorkflow,
		Message: msg,
		Cause:   cause,
	}
}

// NewMissingInputError creates an error for missing required inputs
func NewMissingInputError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitMissingInput,
		Message: msg,
		Cause:   cause,
	}
}

// NewProviderError creates an error for provider-related failures
func NewProviderError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitProviderError,
		Message: msg,
		Cause:   cause,
	}
}

// NewMissingInputNonInteractiveError creates an error for missing inputs in non-interactive mode
func NewMissingInputNonInteractiveError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitMissingInputNonInteractive,
		Message: msg,
		Cause:   cause,
	}
}

// HandleExitError checks if an error is an ExitError and exits with the appropriate code
func HandleExitError(err error) {
	if err == nil {
		return
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		msg := exitErr.Error()
		if len(msg) > 0 {
			fmt.Fprintln(os.Stderr, "Error:", msg)
		}

		printUserVisibleSuggestion(err)

		os.Exit(exitErr.Code)
	}

	// Default to generation failed
	fmt.Fprintln(os.Stderr, "Error:", err.Error())

	printUserVisibleSuggestion(err)

	os.Exit(ExitGenerationFailed)
}

// printUserVisibleSuggestion walks the error chain looking for a
// UserVisibleError and prints its suggestion when one is set.
func printUserVisibleSuggestion(err error) {
	for err != nil {
		if userErr, ok := err.(pkgerrors.UserVisibleError); ok {
			if userErr.IsUserVisible() {
				suggestion := userErr.UserSuggestion()
				if suggestion != "" {
					fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", suggestion)
				}
			}
			return
		}

		err = errors.Unwrap(err)
	}
}
