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

package errors_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	fwerrors "github.com/flowwright/flowwright/pkg/errors"
)

func TestValidationErrorMessage(t *testing.T) {
	withField := &fwerrors.ValidationError{Field: "type", Message: "required field is missing"}
	if got := withField.Error(); got != "validation failed on type: required field is missing" {
		t.Errorf("Error() = %q", got)
	}

	withoutField := &fwerrors.ValidationError{Message: "bad input"}
	if got := withoutField.Error(); got != "validation failed: bad input" {
		t.Errorf("Error() = %q", got)
	}
}

func TestNotFoundErrorMessage(t *testing.T) {
	err := &fwerrors.NotFoundError{Resource: "session", ID: "abc-123"}
	if got := err.Error(); got != "session not found: abc-123" {
		t.Errorf("Error() = %q", got)
	}
}

func TestProviderErrorMessage(t *testing.T) {
	err := &fwerrors.ProviderError{
		Provider:   "anthropic",
		StatusCode: 429,
		Message:    "rate limited",
		RequestID:  "req-7",
	}
	got := err.Error()
	for _, want := range []string{"anthropic", "HTTP 429", "rate limited", "req-7"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &fwerrors.ProviderError{Provider: "openai", Message: "request failed", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause through Unwrap")
	}
}

func TestConfigErrorMessage(t *testing.T) {
	err := &fwerrors.ConfigError{Key: "n8n.base_url", Reason: "must start with http:// or https://"}
	if !strings.Contains(err.Error(), "n8n.base_url") {
		t.Errorf("Error() = %q, should name the key", err.Error())
	}
}

func TestTimeoutErrorMessage(t *testing.T) {
	cause := context.DeadlineExceeded
	err := &fwerrors.TimeoutError{Operation: "completion request", Duration: 30 * time.Second, Cause: cause}
	if !strings.Contains(err.Error(), "30s") {
		t.Errorf("Error() = %q, should include the duration", err.Error())
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("errors.Is should reach the cause through Unwrap")
	}
}
