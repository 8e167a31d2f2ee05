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

package log

import (
	"log/slog"
	"time"
)

// ToolCall describes a tool invocation for logging purposes.
type ToolCall struct {
	// Tool is the name of the invoked tool (e.g., "add_node", "connect_nodes").
	Tool string

	// SessionID identifies the generation session making the call.
	SessionID string

	// Turn is the conversation turn the call belongs to, if known.
	Turn int

	// Metadata contains additional request metadata.
	Metadata map[string]interface{}
}

// ToolOutcome describes the result of a tool invocation for logging purposes.
type ToolOutcome struct {
	// Success indicates whether the invocation succeeded.
	Success bool

	// Error is the error message if the invocation failed.
	Error string

	// DurationMs is the duration of the invocation in milliseconds.
	DurationMs int64

	// Metadata contains additional result metadata.
	Metadata map[string]interface{}
}

// LogToolCall logs an incoming tool invocation.
func LogToolCall(logger *slog.Logger, call *ToolCall) {
	attrs := []any{
		"event", "tool_call",
		"tool", call.Tool,
	}

	if call.SessionID != "" {
		attrs = append(attrs, "session_id", call.SessionID)
	}

	if call.Turn > 0 {
		attrs = append(attrs, "turn", call.Turn)
	}

	for k, v := range call.Metadata {
		attrs = append(attrs, k, v)
	}

	logger.Info("tool call received", attrs...)
}

// LogToolOutcome logs the completion of a tool invocation.
func LogToolOutcome(logger *slog.Logger, call *ToolCall, outcome *ToolOutcome) {
	attrs := []any{
		"event", "tool_result",
		"tool", call.Tool,
		"success", outcome.Success,
		"duration_ms", outcome.DurationMs,
	}

	if call.SessionID != "" {
		attrs = append(attrs, "session_id", call.SessionID)
	}

	if call.Turn > 0 {
		attrs = append(attrs, "turn", call.Turn)
	}

	if outcome.Error != "" {
		attrs = append(attrs, "error", outcome.Error)
	}

	for k, v := range outcome.Metadata {
		attrs = append(attrs, k, v)
	}

	level := slog.LevelInfo
	message := "tool call completed"

	if !outcome.Success {
		level = slog.LevelWarn
		message = "tool call failed"
	}

	logger.Log(nil, level, message, attrs...)
}

// ToolMiddleware wraps tool handler functions with logging.
// It logs the call when it arrives and the outcome when it completes.
type ToolMiddleware struct {
	logger *slog.Logger
}

// NewToolMiddleware creates a new tool logging middleware.
func NewToolMiddleware(logger *slog.Logger) *ToolMiddleware {
	return &ToolMiddleware{
		logger: logger,
	}
}

// Handler wraps a function that executes a tool call.
// It logs the call and its outcome automatically; the handler's result map
// is attached to the outcome log as metadata.
func (m *ToolMiddleware) Handler(call *ToolCall, handler func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	start := time.Now()

	LogToolCall(m.logger, call)

	result, err := handler()

	duration := time.Since(start).Milliseconds()

	outcome := &ToolOutcome{
		Success:    err == nil,
		DurationMs: duration,
		Metadata:   result,
	}

	if err != nil {
		outcome.Error = err.Error()
	}

	LogToolOutcome(m.logger, call, outcome)

	return result, err
}
