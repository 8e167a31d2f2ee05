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

import (
	"errors"
	"fmt"
)

// Wrap adds context to an error, preserving the chain for errors.Is/As.
// Returns nil when err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is re-exports errors.Is so callers importing this package do not need the
// standard library package under an alias as well.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As re-exports errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Unwrap re-exports errors.Unwrap.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// New re-exports errors.New.
func New(message string) error {
	return errors.New(message)
}
