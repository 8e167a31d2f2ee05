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

package tools

import "fmt"

// OK builds a success result, merging the given fields over success=true.
func OK(fields map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{"success": true}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// Fail builds a failure result with success=false and the error message.
// Tool-level domain failures use this instead of a Go error so the model
// sees the failure and can correct course.
func Fail(message string) map[string]interface{} {
	return map[string]interface{}{
		"success": false,
		"error":   message,
	}
}

// Failf builds a failure result from a format string.
func Failf(format string, args ...interface{}) map[string]interface{} {
	return Fail(fmt.Sprintf(format, args...))
}

// IsSuccess reports whether a tool result map carries success=true.
func IsSuccess(result map[string]interface{}) bool {
	ok, _ := result["success"].(bool)
	return ok
}

// ErrorMessage extracts the error message from a failure result, if any.
func ErrorMessage(result map[string]interface{}) string {
	msg, _ := result["error"].(string)
	return msg
}
