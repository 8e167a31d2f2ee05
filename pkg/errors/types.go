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

// Package errors defines the typed errors shared across flowwright. Domain
// packages keep their own error types (graph duplicates, n8n API errors);
// what lives here are the cross-cutting shapes the CLI knows how to render.
package errors

import (
	"fmt"
	"time"
)

var (
	_ UserVisibleError = (*ValidationError)(nil)
	_ UserVisibleError = (*ProviderError)(nil)
	_ UserVisibleError = (*ConfigError)(nil)
)

// ValidationError reports invalid input: a tool call with a missing required
// argument, a malformed workflow file, a bad flag value.
type ValidationError struct {
	// Field identifies the offending input field or argument.
	Field string

	Message string

	// Suggestion tells the caller how to fix the input. For tool calls this
	// text is fed back to the model, so it should be concrete.
	Suggestion string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// IsUserVisible reports true: validation failures describe the caller's input.
func (e *ValidationError) IsUserVisible() bool { return true }

// UserMessage returns the failure description without the field prefix.
func (e *ValidationError) UserMessage() string { return e.Message }

// UserSuggestion returns the fix guidance.
func (e *ValidationError) UserSuggestion() string { return e.Suggestion }

// NotFoundError reports a missing resource such as a session, a stored
// workflow, or a registered tool.
type NotFoundError struct {
	// Resource is the kind of thing that was looked up ("session", "tool").
	Resource string

	// ID is the identifier that missed.
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ProviderError reports a failure from an LLM provider API.
type ProviderError struct {
	// Provider names the backend ("anthropic", "openai", "bedrock").
	Provider string

	// Code is the provider-specific error code, when one exists.
	Code int

	// StatusCode is the HTTP status, when the failure came off the wire.
	StatusCode int

	Message string

	// Suggestion carries actionable guidance ("check ANTHROPIC_API_KEY").
	Suggestion string

	// RequestID correlates the failure with the provider's own logs.
	RequestID string

	Cause error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider %s error", e.Provider)
	if e.Code > 0 {
		msg = fmt.Sprintf("%s (%d)", msg, e.Code)
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [HTTP %d]", msg, e.StatusCode)
	}
	msg = fmt.Sprintf("%s: %s", msg, e.Message)
	if e.RequestID != "" {
		msg = fmt.Sprintf("%s (request-id: %s)", msg, e.RequestID)
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// IsUserVisible reports true: provider failures need the operator's attention.
func (e *ProviderError) IsUserVisible() bool { return true }

// UserMessage returns the failure description without codes and request IDs.
func (e *ProviderError) UserMessage() string { return e.Message }

// UserSuggestion returns the fix guidance.
func (e *ProviderError) UserSuggestion() string { return e.Suggestion }

// ConfigError reports a configuration problem: unreadable file, missing
// key, value out of range.
type ConfigError struct {
	// Key is the configuration key at fault ("n8n.base_url", "llm.provider").
	Key string

	Reason string

	Cause error
}

func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// IsUserVisible reports true: config problems are fixed by the operator.
func (e *ConfigError) IsUserVisible() bool { return true }

// UserMessage returns the reason with the key when one is set.
func (e *ConfigError) UserMessage() string { return e.Error() }

// UserSuggestion names the config key to inspect.
func (e *ConfigError) UserSuggestion() string {
	if e.Key == "" {
		return ""
	}
	return fmt.Sprintf("check the %s setting", e.Key)
}

// TimeoutError reports an operation that exceeded its deadline.
type TimeoutError struct {
	// Operation describes what timed out ("completion request", "n8n create").
	Operation string

	// Duration is how long the operation ran.
	Duration time.Duration

	Cause error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s operation timed out after %v", e.Operation, e.Duration)
}

func (e *TimeoutError) Unwrap() error {
	return e.Cause
}
