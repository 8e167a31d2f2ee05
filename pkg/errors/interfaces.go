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

package errors

// UserVisibleError is implemented by errors whose message is meant for the
// person running the CLI, not for a log file. The command layer renders
// these with their suggestion instead of a bare error string.
type UserVisibleError interface {
	error

	// IsUserVisible reports whether the error should surface to the user.
	IsUserVisible() bool

	// UserMessage is the jargon-free description of what went wrong.
	UserMessage() string

	// UserSuggestion is actionable guidance, empty when there is none.
	UserSuggestion() string
}

// Classifier is implemented by errors that can steer retry decisions
// programmatically rather than through message matching.
type Classifier interface {
	error

	// ErrorType names the category: "validation", "not_found", "provider".
	ErrorType() string

	// IsRetryable reports whether the same operation could succeed later.
	IsRetryable() bool
}
