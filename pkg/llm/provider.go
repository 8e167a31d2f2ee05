// Package llm provides a provider-agnostic interface to the language models
// that drive workflow generation. Providers translate the neutral request and
// response types here into their own wire formats; callers never see
// provider-specific payloads.
package llm

import (
	"context"
	"time"
)

// Provider is the interface all LLM providers implement.
type Provider interface {
	// Name returns the unique identifier for this provider (e.g., "anthropic").
	Name() string

	// Complete sends a synchronous completion request and blocks until the
	// full response is available.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Stream sends a streaming completion request and returns a channel of
	// chunks. The caller must drain the channel until it closes. Errors that
	// occur mid-stream arrive as a StreamChunk with Error set; that chunk is
	// always the last one sent.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)
}

// CompletionRequest contains all parameters for a completion request.
type CompletionRequest struct {
	// Messages is the conversation history including the current prompt.
	Messages []Message

	// Model is the provider-specific model ID. Empty selects the provider's
	// default model.
	Model string

	// Temperature controls randomness (0.0 = deterministic). If nil, the
	// provider default applies.
	Temperature *float64

	// MaxTokens limits the response length. If nil, uses provider default.
	MaxTokens *int

	// Tools defines functions the model may call.
	Tools []Tool

	// StopSequences halt generation when encountered.
	StopSequences []string

	// Metadata carries request tracking information (session IDs etc).
	Metadata map[string]string
}

// Message is a single message in a conversation.
type Message struct {
	// Role indicates who sent this message.
	Role MessageRole

	// Content is the text content of the message.
	Content string

	// ToolCalls contains tool invocations made by the model.
	// Only valid when Role is "assistant".
	ToolCalls []ToolCall

	// ToolCallID links this message to a specific tool call.
	// Only valid when Role is "tool".
	ToolCallID string

	// Name identifies the tool that produced this result.
	// Only valid when Role is "tool".
	Name string
}

// MessageRole identifies the sender of a message.
type MessageRole string

const (
	// MessageRoleSystem indicates a system message (context, instructions).
	MessageRoleSystem MessageRole = "system"

	// MessageRoleUser indicates a message from the user.
	MessageRoleUser MessageRole = "user"

	// MessageRoleAssistant indicates a message from the model.
	MessageRoleAssistant MessageRole = "assistant"

	// MessageRoleTool indicates a tool execution result.
	MessageRoleTool MessageRole = "tool"
)

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	// ID uniquely identifies this tool call within a completion.
	ID string

	// Name is the function name to invoke.
	Name string

	// Arguments contains the JSON-encoded function parameters.
	Arguments string
}

// Tool defines a function the model can invoke.
type Tool struct {
	// Name is the function identifier.
	Name string

	// Description explains what this function does.
	Description string

	// InputSchema is a JSON Schema describing the function parameters.
	InputSchema map[string]interface{}
}

// CompletionResponse is the full response from a non-streaming completion.
type CompletionResponse struct {
	// Content is the generated text response.
	Content string

	// ToolCalls contains tool invocations requested by the model.
	ToolCalls []ToolCall

	// FinishReason explains why generation stopped.
	FinishReason FinishReason

	// Usage contains token consumption for this request.
	Usage TokenUsage

	// Model is the actual model ID that handled this request.
	Model string

	// RequestID is the unique identifier for this request (for tracing).
	RequestID string

	// Created is the timestamp when this response was generated.
	Created time.Time
}

// StreamChunk is a single piece of a streaming response.
type StreamChunk struct {
	// Delta contains the incremental content added in this chunk.
	Delta StreamDelta

	// FinishReason is set on the final chunk to indicate why streaming stopped.
	FinishReason FinishReason

	// Usage is set on the final chunk with token consumption stats.
	Usage *TokenUsage

	// Error contains any error that occurred during streaming. When set,
	// this is the final chunk and the stream will close.
	Error error

	// RequestID is the unique identifier for this streaming request.
	RequestID string
}

// StreamDelta contains the incremental updates in a stream chunk.
type StreamDelta struct {
	// Content is the text added in this chunk.
	Content string

	// ToolCallDelta contains partial tool call information. Tool calls are
	// built up over multiple chunks.
	ToolCallDelta *ToolCallDelta
}

// ToolCallDelta is partial tool call information in a stream.
type ToolCallDelta struct {
	// Index identifies which tool call this delta belongs to.
	Index int

	// ID is the tool call identifier (may be empty in intermediate chunks).
	ID string

	// Name is the function name (may be empty in intermediate chunks).
	Name string

	// ArgumentsDelta contains an additional argument JSON fragment.
	ArgumentsDelta string
}

// FinishReason indicates why completion generation stopped.
type FinishReason string

const (
	// FinishReasonStop indicates natural completion.
	FinishReasonStop FinishReason = "stop"

	// FinishReasonLength indicates the max_tokens limit was reached.
	FinishReasonLength FinishReason = "length"

	// FinishReasonToolCalls indicates the model wants to call functions.
	FinishReasonToolCalls FinishReason = "tool_calls"

	// FinishReasonContentFilter indicates a content policy violation.
	FinishReasonContentFilter FinishReason = "content_filter"

	// FinishReasonError indicates an error occurred.
	FinishReasonError FinishReason = "error"
)

// TokenUsage tracks token consumption.
type TokenUsage struct {
	// InputTokens is the number of tokens in the input (prompt).
	InputTokens int

	// OutputTokens is the number of tokens in the output (completion).
	OutputTokens int

	// TotalTokens is the sum of input and output tokens.
	TotalTokens int

	// CacheCreationTokens tracks tokens written to the provider's prompt
	// cache (billed at full rate).
	CacheCreationTokens int

	// CacheReadTokens tracks tokens served from cache (reduced rate).
	CacheReadTokens int
}

// Add accumulates another usage record into this one. Generation sessions
// span many completion requests; the session total is the sum.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	u.CacheCreationTokens += other.CacheCreationTokens
	u.CacheReadTokens += other.CacheReadTokens
}
