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

package prompt

import (
	"context"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
)

// SurveyPrompter implements Prompter using the survey library.
// It provides interactive terminal prompts with validation.
type SurveyPrompter struct {
	interactive bool
}

// NewSurveyPrompter creates a new survey-based prompter.
func NewSurveyPrompter(interactive bool) *SurveyPrompter {
	return &SurveyPrompter{
		interactive: interactive,
	}
}

// Description collects a multiline workflow description.
func (sp *SurveyPrompter) Description(ctx context.Context) (string, error) {
	if !sp.interactive {
		return "", ErrNonInteractive
	}

	var result string
	p := &survey.Multiline{
		Message: "Describe the workflow to build:",
	}

	err := survey.AskOne(p, &result, survey.WithValidator(func(ans interface{}) error {
		if str, ok := ans.(string); ok {
			return ValidateDescription(str)
		}
		return nil
	}))

	return result, err
}

// Clarify presents the model's question and collects an answer.
func (sp *SurveyPrompter) Clarify(ctx context.Context, question string) (string, error) {
	if !sp.interactive {
		return "", ErrNonInteractive
	}

	var result string
	p := &survey.Input{
		Message: fmt.Sprintf("The model needs more information:\n  %s\nAnswer", question),
	}

	err := survey.AskOne(p, &result, survey.WithValidator(func(ans interface{}) error {
		if str, ok := ans.(string); ok {
			return ValidateDescription(str)
		}
		return nil
	}))

	return result, err
}

// Confirm asks a yes/no question using survey.Confirm.
func (sp *SurveyPrompter) Confirm(ctx context.Context, question string, def bool) (bool, error) {
	if !sp.interactive {
		return false, ErrNonInteractive
	}

	var result bool
	p := &survey.Confirm{
		Message: question,
		Default: def,
	}

	err := survey.AskOne(p, &result)
	return result, err
}

// Select presents a list of options using survey.Select.
func (sp *SurveyPrompter) Select(ctx context.Context, message string, options []string, def string) (string, error) {
	if !sp.interactive {
		return "", ErrNonInteractive
	}

	if len(options) == 0 {
		return "", fmt.Errorf("no options provided for selection")
	}

	var result string
	p := &survey.Select{
		Message: message,
		Options: options,
		Default: def,
	}

	err := survey.AskOne(p, &result)
	return result, err
}

// IsInteractive returns whether prompts can be displayed.
func (sp *SurveyPrompter) IsInteractive() bool {
	return sp.interactive
}
