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

// Package prompt provides interactive input collection for generation
// sessions. The build command prompts for a workflow description when none
// was given on the command line, and for clarifying answers when the model
// reports it needs information it cannot invent. Non-interactive contexts
// (CI, piped stdin) get errors instead of hung prompts.
package prompt

import (
	"context"
	"fmt"
	"strings"
)

// Prompter defines the interface for interactive input collection.
// Implementations include SurveyPrompter (production) and MockPrompter (testing).
type Prompter interface {
	// Description collects the plain-language workflow description.
	Description(ctx context.Context) (string, error)

	// Clarify presents the model's question and collects the user's answer.
	Clarify(ctx context.Context, question string) (string, error)

	// Confirm asks a yes/no question.
	Confirm(ctx context.Context, question string, def bool) (bool, error)

	// Select presents a list of options and collects the user's choice.
	Select(ctx context.Context, message string, options []string, def string) (string, error)

	// IsInteractive returns true if prompts can be displayed
	IsInteractive() bool
}

// ErrNonInteractive is returned when a prompt is requested but no terminal
// is attached.
var ErrNonInteractive = fmt.Errorf("cannot prompt in non-interactive mode")

// ValidateDescription rejects empty or whitespace-only descriptions before
// they reach the model.
func ValidateDescription(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("description cannot be empty")
	}
	return nil
}
