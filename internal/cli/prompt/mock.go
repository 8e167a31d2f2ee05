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
)

// MockPrompter implements Prompter with scripted responses for testing.
// It allows tests to simulate user input without requiring interactive terminals.
type MockPrompter struct {
	responses    []interface{}
	currentIndex int
	interactive  bool
	callLog      []string
}

// NewMockPrompter creates a new mock prompter with pre-scripted responses.
func NewMockPrompter(interactive bool, responses ...interface{}) *MockPrompter {
	return &MockPrompter{
		responses:   responses,
		interactive: interactive,
		callLog:     make([]string, 0),
	}
}

// Description returns the next string response.
func (mp *MockPrompter) Description(ctx context.Context) (string, error) {
	mp.callLog = append(mp.callLog, "Description")
	if !mp.interactive {
		return "", ErrNonInteractive
	}
	return mp.nextString()
}

// Clarify returns the next string response.
func (mp *MockPrompter) Clarify(ctx context.Context, question string) (string, error) {
	mp.callLog = append(mp.callLog, fmt.Sprintf("Clarify(%s)", question))
	if !mp.interactive {
		return "", ErrNonInteractive
	}
	return mp.nextString()
}

// Confirm returns the next boolean response, or the default when the
// script is exhausted.
func (mp *MockPrompter) Confirm(ctx context.Context, question string, def bool) (bool, error) {
	mp.callLog = append(mp.callLog, fmt.Sprintf("Confirm(%s)", question))
	if !mp.interactive {
		return false, ErrNonInteractive
	}

	if mp.currentIndex >= len(mp.responses) {
		return def, nil
	}

	resp := mp.responses[mp.currentIndex]
	mp.currentIndex++

	if b, ok := resp.(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("mock response is not a boolean")
}

// Select returns the next string response, or the default when the script
// is exhausted.
func (mp *MockPrompter) Select(ctx context.Context, message string, options []string, def string) (string, error) {
	mp.callLog = append(mp.callLog, fmt.Sprintf("Select(%s)", message))
	if !mp.interactive {
		return "", ErrNonInteractive
	}

	if mp.currentIndex >= len(mp.responses) {
		return def, nil
	}

	resp := mp.responses[mp.currentIndex]
	mp.currentIndex++

	if str, ok := resp.(string); ok {
		return str, nil
	}
	return "", fmt.Errorf("mock response is not a string")
}

// IsInteractive returns the configured interactivity.
func (mp *MockPrompter) IsInteractive() bool {
	return mp.interactive
}

// CallLog returns the prompts issued so far, in order.
func (mp *MockPrompter) CallLog() []string {
	return mp.callLog
}

func (mp *MockPrompter) nextString() (string, error) {
	if mp.currentIndex >= len(mp.responses) {
		return "", fmt.Errorf("mock prompter ran out of responses")
	}

	resp := mp.responses[mp.currentIndex]
	mp.currentIndex++

	if str, ok := resp.(string); ok {
		return str, nil
	}
	return "", fmt.Errorf("mock response is not a string")
}
