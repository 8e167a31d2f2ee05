package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flowwright/flowwright/pkg/errors"
	"github.com/flowwright/flowwright/pkg/httpclient"
	"github.com/flowwright/flowwright/pkg/llm"
)

const (
	// anthropicAPIBaseURL is the default base URL for the Anthropic API.
	anthropicAPIBaseURL = "https://api.anthropic.com/v1"

	// anthropicAPIVersion is the API version header value.
	anthropicAPIVersion = "2023-06-01"

	// anthropicDefaultModel is used when the request does not name a model.
	anthropicDefaultModel = "claude-sonnet-4-20250514"

	// anthropicDefaultMaxTokens bounds completions when the request does not.
	anthropicDefaultMaxTokens = 8192
)

// AnthropicProvider implements llm.Provider against the Anthropic Messages API.
type AnthropicProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewAnthropic is the factory registered with the llm registry.
func NewAnthropic(creds llm.Credentials) (llm.Provider, error) {
	apiCreds, ok := creds.(llm.APIKeyCredentials)
	if !ok {
		return nil, &errors.ConfigError{
			Key:    "llm.provider",
			Reason: "anthropic requires API key credentials",
		}
	}
	return NewAnthropicProvider(apiCreds.APIKey, apiCreds.BaseURL)
}

// NewAnthropicProvider creates an Anthropic provider. baseURL overrides the
// public endpoint when non-empty (proxies, test servers).
func NewAnthropicProvider(apiKey, baseURL string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, &errors.ConfigError{
			Key:    "anthropic.api_key",
			Reason: "API key is required for the Anthropic provider",
		}
	}
	if baseURL == "" {
		baseURL = anthropicAPIBaseURL
	}

	cfg := httpclient.DefaultConfig()
	cfg.Timeout = 120 * time.Second // completion requests carry large tool transcripts
	cfg.UserAgent = "flowwright-anthropic/1.0"
	// Retries live in the llm retry wrapper, which understands provider
	// error semantics.
	cfg.RetryAttempts = 0

	httpClient, err := httpclient.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &AnthropicProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}, nil
}

// Name returns the provider identifier.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Complete sends a synchronous completion request to the Messages API.
func (p *AnthropicProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	requestID := uuid.New().String()

	apiReq, err := p.buildAPIRequest(req, false)
	if err != nil {
		return nil, err
	}

	resp, err := p.doRequest(ctx, apiReq, requestID)
	if err != nil {
		return nil, err
	}

	return p.parseResponse(resp, requestID), nil
}

// Stream sends a streaming completion request and decodes the SSE events.
func (p *AnthropicProvider) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	requestID := uuid.New().String()

	apiReq, err := p.buildAPIRequest(req, true)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.send(ctx, apiReq, requestID)
	if err != nil {
		return nil, err
	}

	chunks := make(chan llm.StreamChunk, 10)
	go p.processStream(ctx, httpResp, chunks, requestID)
	return chunks, nil
}

// buildAPIRequest converts a CompletionRequest into the Anthropic wire shape.
func (p *AnthropicProvider) buildAPIRequest(req llm.CompletionRequest, stream bool) (*anthropicRequest, error) {
	systemPrompt, apiMessages, err := buildAnthropicMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	maxTokens := anthropicDefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	model := req.Model
	if model == "" {
		model = anthropicDefaultModel
	}

	return &anthropicRequest{
		Model:         model,
		Messages:      apiMessages,
		MaxTokens:     maxTokens,
		System:        systemPrompt,
		Temperature:   req.Temperature,
		Tools:         toAnthropicTools(req.Tools),
		StopSequences: req.StopSequences,
		Stream:        stream,
	}, nil
}

// buildAnthropicMessages converts neutral messages into the Anthropic message
// list. System messages collapse into the dedicated system field; tool results
// become user messages carrying tool_result blocks. Bedrock uses the same
// body format, so this is shared with the bedrock provider.
func buildAnthropicMessages(messages []llm.Message) (string, []anthropicMessage, error) {
	if len(messages) == 0 {
		return "", nil, &errors.ValidationError{
			Field:      "messages",
			Message:    "completion request must have at least one message",
			Suggestion: "Add at least one message to the completion request",
		}
	}

	var systemPrompt string
	var apiMessages []anthropicMessage

	for _, msg := range messages {
		switch msg.Role {
		case llm.MessageRoleSystem:
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content

		case llm.MessageRoleUser:
			apiMessages = append(apiMessages, anthropicMessage{
				Role: "user",
				Content: []interface{}{
					anthropicTextContent{Type: "text", Text: msg.Content},
				},
			})

		case llm.MessageRoleAssistant:
			var content []interface{}
			if msg.Content != "" {
				content = append(content, anthropicTextContent{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]interface{}
				if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
					input = map[string]interface{}{}
				}
				content = append(content, map[string]interface{}{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": input,
				})
			}
			if len(content) > 0 {
				apiMessages = append(apiMessages, anthropicMessage{
					Role:    "assistant",
					Content: content,
				})
			}

		case llm.MessageRoleTool:
			apiMessages = append(apiMessages, anthropicMessage{
				Role: "user",
				Content: []interface{}{
					anthropicToolResultContent{
						Type:      "tool_result",
						ToolUseID: msg.ToolCallID,
						Content:   msg.Content,
					},
				},
			})
		}
	}

	return systemPrompt, apiMessages, nil
}

// toAnthropicTools converts neutral tool definitions to the Anthropic format.
func toAnthropicTools(tools []llm.Tool) []anthropicTool {
	var out []anthropicTool
	for _, tool := range tools {
		out = append(out, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}
	return out
}

// send posts the request and returns the raw HTTP response with the status
// already checked. The caller owns the body.
func (p *AnthropicProvider) send(ctx context.Context, apiReq *anthropicRequest, requestID string) (*http.Response, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "anthropic",
			Message:   fmt.Sprintf("failed to marshal request: %v", err),
			RequestID: requestID,
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "anthropic",
			Message:   fmt.Sprintf("failed to create request: %v", err),
			RequestID: requestID,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "anthropic",
			Message:   fmt.Sprintf("request failed: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)

		var errResp anthropicErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, &errors.ProviderError{
				Provider:   "anthropic",
				StatusCode: resp.StatusCode,
				Message:    errResp.Error.Message,
				Suggestion: anthropicSuggestion(resp.StatusCode, errResp.Error.Type),
				RequestID:  requestID,
			}
		}
		return nil, &errors.ProviderError{
			Provider:   "anthropic",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("API request failed with status %d: %s", resp.StatusCode, string(respBody)),
			RequestID:  requestID,
		}
	}

	return resp, nil
}

// doRequest sends the API request and decodes the JSON response body.
func (p *AnthropicProvider) doRequest(ctx context.Context, apiReq *anthropicRequest, requestID string) (*anthropicResponse, error) {
	resp, err := p.send(ctx, apiReq, requestID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:   "anthropic",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to read response: %v", err),
			RequestID:  requestID,
			Cause:      err,
		}
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &errors.ProviderError{
			Provider:  "anthropic",
			Message:   fmt.Sprintf("failed to parse response: %v", err),
			RequestID: requestID,
		}
	}

	return &apiResp, nil
}

// anthropicSuggestion returns actionable guidance for an API error.
func anthropicSuggestion(statusCode int, errorType string) string {
	switch statusCode {
	case http.StatusUnauthorized:
		return "Check that your API key is valid and correctly configured"
	case http.StatusForbidden:
		return "Your API key may not have access to this model or feature"
	case http.StatusTooManyRequests:
		return "Rate limit exceeded. Retry after a short delay or reduce request frequency"
	case http.StatusBadRequest:
		if errorType == "invalid_request_error" {
			return "Check the request parameters for errors"
		}
		return "Review the request format and parameters"
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return "Anthropic API is experiencing issues. Retry after a short delay"
	default:
		return "Check the Anthropic API documentation for more details"
	}
}

// parseResponse converts an anthropicResponse to a CompletionResponse.
func (p *AnthropicProvider) parseResponse(resp *anthropicResponse, requestID string) *llm.CompletionResponse {
	content, toolCalls := parseAnthropicContent(resp.Content)

	return &llm.CompletionResponse{
		Content:      content,
		ToolCalls:    toolCalls,
		FinishReason: mapAnthropicStopReason(resp.StopReason),
		Usage: llm.TokenUsage{
			InputTokens:         resp.Usage.InputTokens,
			OutputTokens:        resp.Usage.OutputTokens,
			TotalTokens:         resp.Usage.InputTokens + resp.Usage.OutputTokens,
			CacheCreationTokens: resp.Usage.CacheCreationTokens,
			CacheReadTokens:     resp.Usage.CacheReadTokens,
		},
		Model:     resp.Model,
		RequestID: requestID,
		Created:   time.Now(),
	}
}

// parseAnthropicContent extracts text and tool calls from response content
// blocks. Multiple text blocks join with newlines.
func parseAnthropicContent(blocks []map[string]interface{}) (string, []llm.ToolCall) {
	var textContent strings.Builder
	var toolCalls []llm.ToolCall

	for _, block := range blocks {
		blockType, _ := block["type"].(string)

		switch blockType {
		case "text":
			if text, ok := block["text"].(string); ok {
				if textContent.Len() > 0 {
					textContent.WriteString("\n")
				}
				textContent.WriteString(text)
			}
		case "tool_use":
			id, _ := block["id"].(string)
			name, _ := block["name"].(string)

			inputJSON, err := json.Marshal(block["input"])
			if err != nil {
				inputJSON = []byte("{}")
			}

			toolCalls = append(toolCalls, llm.ToolCall{
				ID:        id,
				Name:      name,
				Arguments: string(inputJSON),
			})
		}
	}

	return textContent.String(), toolCalls
}

// mapAnthropicStopReason converts Anthropic's stop_reason to a FinishReason.
func mapAnthropicStopReason(stopReason string) llm.FinishReason {
	switch stopReason {
	case "end_turn", "stop_sequence":
		return llm.FinishReasonStop
	case "max_tokens":
		return llm.FinishReasonLength
	case "tool_use":
		return llm.FinishReasonToolCalls
	case "content_filtered":
		return llm.FinishReasonContentFilter
	default:
		return llm.FinishReasonStop
	}
}

// processStream reads the SSE stream and sends chunks to the channel.
// Event order per message: message_start, then content_block_start/delta/stop
// groups, then message_delta (stop reason, output token count), message_stop.
func (p *AnthropicProvider) processStream(ctx context.Context, resp *http.Response, chunks chan<- llm.StreamChunk, requestID string) {
	defer close(chunks)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	var currentToolCall *llm.ToolCallDelta
	var toolCallIndex int
	var totalUsage llm.TokenUsage
	var haveUsage bool

	for {
		select {
		case <-ctx.Done():
			chunks <- llm.StreamChunk{
				RequestID:    requestID,
				Error:        ctx.Err(),
				FinishReason: llm.FinishReasonError,
			}
			return
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return
			}
			chunks <- llm.StreamChunk{
				RequestID:    requestID,
				Error:        fmt.Errorf("stream read error: %w", err),
				FinishReason: llm.FinishReasonError,
			}
			return
		}

		// SSE format: "event: <type>\ndata: <json>\n\n"
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "event:") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue // skip malformed events
		}

		switch event.Type {
		case "message_start":
			// Carries the input token count; output tokens arrive later
			// in message_delta.
			if event.Message != nil {
				totalUsage.InputTokens = event.Message.Usage.InputTokens
				totalUsage.CacheCreationTokens = event.Message.Usage.CacheCreationTokens
				totalUsage.CacheReadTokens = event.Message.Usage.CacheReadTokens
				totalUsage.TotalTokens = totalUsage.InputTokens + totalUsage.OutputTokens
				haveUsage = true
			}

		case "content_block_start":
			if event.ContentBlock != nil {
				blockType, _ := event.ContentBlock["type"].(string)
				if blockType == "tool_use" {
					id, _ := event.ContentBlock["id"].(string)
					name, _ := event.ContentBlock["name"].(string)
					currentToolCall = &llm.ToolCallDelta{
						Index: toolCallIndex,
						ID:    id,
						Name:  name,
					}
					toolCallIndex++

					chunks <- llm.StreamChunk{
						RequestID: requestID,
						Delta: llm.StreamDelta{
							ToolCallDelta: currentToolCall,
						},
					}
				}
			}

		case "content_block_delta":
			if event.Delta != nil {
				deltaType, _ := event.Delta["type"].(string)

				switch deltaType {
				case "text_delta":
					text, _ := event.Delta["text"].(string)
					if text != "" {
						chunks <- llm.StreamChunk{
							RequestID: requestID,
							Delta:     llm.StreamDelta{Content: text},
						}
					}

				case "input_json_delta":
					partialJSON, _ := event.Delta["partial_json"].(string)
					if partialJSON != "" && currentToolCall != nil {
						chunks <- llm.StreamChunk{
							RequestID: requestID,
							Delta: llm.StreamDelta{
								ToolCallDelta: &llm.ToolCallDelta{
									Index:          currentToolCall.Index,
									ArgumentsDelta: partialJSON,
								},
							},
						}
					}
				}
			}

		case "content_block_stop":
			currentToolCall = nil

		case "message_delta":
			if event.Usage != nil {
				totalUsage.OutputTokens = event.Usage.OutputTokens
				totalUsage.TotalTokens = totalUsage.InputTokens + totalUsage.OutputTokens
				haveUsage = true
			}
			if event.Delta != nil {
				stopReason, _ := event.Delta["stop_reason"].(string)
				if stopReason != "" {
					chunk := llm.StreamChunk{
						RequestID:    requestID,
						FinishReason: mapAnthropicStopReason(stopReason),
					}
					if haveUsage {
						usage := totalUsage
						chunk.Usage = &usage
					}
					chunks <- chunk
				}
			}

		case "message_stop":
			return

		case "error":
			errMsg := "unknown streaming error"
			if event.Error != nil && event.Error.Message != "" {
				errMsg = event.Error.Message
			}
			chunks <- llm.StreamChunk{
				RequestID: requestID,
				Error: &errors.ProviderError{
					Provider:  "anthropic",
					Message:   errMsg,
					RequestID: requestID,
				},
				FinishReason: llm.FinishReasonError,
			}
			return
		}
	}
}

// anthropicRequest is the request body for the Messages API.
type anthropicRequest struct {
	Model         string             `json:"model"`
	Messages      []anthropicMessage `json:"messages"`
	MaxTokens     int                `json:"max_tokens"`
	System        string             `json:"system,omitempty"`
	Temperature   *float64           `json:"temperature,omitempty"`
	Tools         []anthropicTool    `json:"tools,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
}

// anthropicMessage is a message in the Anthropic API format.
type anthropicMessage struct {
	Role    string        `json:"role"`
	Content []interface{} `json:"content"`
}

// anthropicTextContent is a text content block.
type anthropicTextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// anthropicToolResultContent is a tool result content block.
type anthropicToolResultContent struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
}

// anthropicTool is a tool definition in Anthropic's API format.
type anthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// anthropicResponse is the response from the Messages API.
type anthropicResponse struct {
	ID         string                   `json:"id"`
	Type       string                   `json:"type"`
	Role       string                   `json:"role"`
	Content    []map[string]interface{} `json:"content"`
	Model      string                   `json:"model"`
	StopReason string                   `json:"stop_reason"`
	Usage      anthropicUsage           `json:"usage"`
}

// anthropicUsage is the token usage block in API responses.
type anthropicUsage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheCreationTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// anthropicErrorResponse is an error response from the API.
type anthropicErrorResponse struct {
	Type  string              `json:"type"`
	Error anthropicErrorField `json:"error"`
}

type anthropicErrorField struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// anthropicStreamEvent is a single SSE event from the streaming API.
type anthropicStreamEvent struct {
	Type         string                 `json:"type"`
	Index        int                    `json:"index,omitempty"`
	ContentBlock map[string]interface{} `json:"content_block,omitempty"`
	Delta        map[string]interface{} `json:"delta,omitempty"`
	Message      *anthropicResponse     `json:"message,omitempty"`
	Usage        *anthropicUsage        `json:"usage,omitempty"`
	Error        *anthropicErrorField   `json:"error,omitempty"`
}
