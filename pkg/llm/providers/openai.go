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
	// openaiAPIBaseURL is the default base URL for the OpenAI API. BaseURL
	// overrides make the provider work with any chat-completions compatible
	// gateway.
	openaiAPIBaseURL = "https://api.openai.com/v1"

	// openaiDefaultModel is used when the request does not name a model.
	openaiDefaultModel = "gpt-4o"

	// openaiDefaultMaxTokens bounds completions when the request does not.
	openaiDefaultMaxTokens = 8192
)

// OpenAIProvider implements llm.Provider against the chat completions API.
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAI is the factory registered with the llm registry.
func NewOpenAI(creds llm.Credentials) (llm.Provider, error) {
	apiCreds, ok := creds.(llm.APIKeyCredentials)
	if !ok {
		return nil, &errors.ConfigError{
			Key:    "llm.provider",
			Reason: "openai requires API key credentials",
		}
	}
	return NewOpenAIProvider(apiCreds.APIKey, apiCreds.BaseURL)
}

// NewOpenAIProvider creates an OpenAI provider. baseURL overrides the public
// endpoint when non-empty.
func NewOpenAIProvider(apiKey, baseURL string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, &errors.ConfigError{
			Key:    "openai.api_key",
			Reason: "API key is required for the OpenAI provider",
		}
	}
	if baseURL == "" {
		baseURL = openaiAPIBaseURL
	}

	cfg := httpclient.DefaultConfig()
	cfg.Timeout = 120 * time.Second
	cfg.UserAgent = "flowwright-openai/1.0"
	cfg.RetryAttempts = 0

	httpClient, err := httpclient.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &OpenAIProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}, nil
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Complete sends a synchronous chat completion request.
func (p *OpenAIProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	requestID := uuid.New().String()

	apiReq, err := p.buildAPIRequest(req, false)
	if err != nil {
		return nil, err
	}

	resp, err := p.send(ctx, apiReq, requestID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:   "openai",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to read response: %v", err),
			RequestID:  requestID,
			Cause:      err,
		}
	}

	var apiResp openaiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &errors.ProviderError{
			Provider:  "openai",
			Message:   fmt.Sprintf("failed to parse response: %v", err),
			RequestID: requestID,
		}
	}

	return p.parseResponse(&apiResp, requestID)
}

// Stream sends a streaming chat completion request and decodes the SSE chunks.
func (p *OpenAIProvider) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
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

// buildAPIRequest converts a CompletionRequest into the OpenAI wire shape.
func (p *OpenAIProvider) buildAPIRequest(req llm.CompletionRequest, stream bool) (*openaiRequest, error) {
	if len(req.Messages) == 0 {
		return nil, &errors.ValidationError{
			Field:      "messages",
			Message:    "completion request must have at least one message",
			Suggestion: "Add at least one message to the completion request",
		}
	}

	apiMessages := make([]openaiMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		apiMsg := openaiMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		for _, tc := range msg.ToolCalls {
			apiMsg.ToolCalls = append(apiMsg.ToolCalls, openaiToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: openaiFunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		if msg.Role == llm.MessageRoleTool {
			apiMsg.ToolCallID = msg.ToolCallID
		}
		apiMessages = append(apiMessages, apiMsg)
	}

	maxTokens := openaiDefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	model := req.Model
	if model == "" {
		model = openaiDefaultModel
	}

	var tools []openaiTool
	for _, tool := range req.Tools {
		tools = append(tools, openaiTool{
			Type: "function",
			Function: openaiFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}

	apiReq := &openaiRequest{
		Model:       model,
		Messages:    apiMessages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Tools:       tools,
		Stop:        req.StopSequences,
		Stream:      stream,
	}
	if stream {
		// Ask for a final usage-only chunk so token accounting survives
		// streaming.
		apiReq.StreamOptions = &openaiStreamOptions{IncludeUsage: true}
	}

	return apiReq, nil
}

// send posts the request and returns the raw HTTP response with the status
// already checked. The caller owns the body.
func (p *OpenAIProvider) send(ctx context.Context, apiReq *openaiRequest, requestID string) (*http.Response, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "openai",
			Message:   fmt.Sprintf("failed to marshal request: %v", err),
			RequestID: requestID,
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "openai",
			Message:   fmt.Sprintf("failed to create request: %v", err),
			RequestID: requestID,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "openai",
			Message:   fmt.Sprintf("request failed: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)

		var errResp openaiErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, &errors.ProviderError{
				Provider:   "openai",
				StatusCode: resp.StatusCode,
				Message:    errResp.Error.Message,
				Suggestion: openaiSuggestion(resp.StatusCode),
				RequestID:  requestID,
			}
		}
		return nil, &errors.ProviderError{
			Provider:   "openai",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("API request failed with status %d: %s", resp.StatusCode, string(respBody)),
			RequestID:  requestID,
		}
	}

	return resp, nil
}

// openaiSuggestion returns actionable guidance for an API error.
func openaiSuggestion(statusCode int) string {
	switch statusCode {
	case http.StatusUnauthorized:
		return "Check that your API key is valid and correctly configured"
	case http.StatusForbidden:
		return "Your API key may not have access to this model"
	case http.StatusNotFound:
		return "The requested model does not exist or you do not have access to it"
	case http.StatusTooManyRequests:
		return "Rate limit or quota exceeded. Retry after a short delay"
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return "OpenAI API is experiencing issues. Retry after a short delay"
	default:
		return "Check the OpenAI API documentation for more details"
	}
}

// parseResponse converts an openaiResponse to a CompletionResponse.
func (p *OpenAIProvider) parseResponse(resp *openaiResponse, requestID string) (*llm.CompletionResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, &errors.ProviderError{
			Provider:  "openai",
			Message:   "response contained no choices",
			RequestID: requestID,
		}
	}
	choice := resp.Choices[0]

	var toolCalls []llm.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		toolCalls = append(toolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	usage := llm.TokenUsage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
	if resp.Usage.PromptTokensDetails != nil {
		usage.CacheReadTokens = resp.Usage.PromptTokensDetails.CachedTokens
	}

	return &llm.CompletionResponse{
		Content:      choice.Message.Content,
		ToolCalls:    toolCalls,
		FinishReason: mapOpenAIFinishReason(choice.FinishReason),
		Usage:        usage,
		Model:        resp.Model,
		RequestID:    requestID,
		Created:      time.Now(),
	}, nil
}

// mapOpenAIFinishReason converts OpenAI's finish_reason to a FinishReason.
func mapOpenAIFinishReason(reason string) llm.FinishReason {
	switch reason {
	case "stop":
		return llm.FinishReasonStop
	case "length":
		return llm.FinishReasonLength
	case "tool_calls", "function_call":
		return llm.FinishReasonToolCalls
	case "content_filter":
		return llm.FinishReasonContentFilter
	default:
		return llm.FinishReasonStop
	}
}

// processStream reads the SSE stream and sends chunks to the channel.
// With stream_options.include_usage set, the final data chunk before [DONE]
// carries usage and an empty choices array.
func (p *OpenAIProvider) processStream(ctx context.Context, resp *http.Response, chunks chan<- llm.StreamChunk, requestID string) {
	defer close(chunks)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	var finishReason llm.FinishReason

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

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return
		}

		var event openaiStreamChunk
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue // skip malformed events
		}

		// Usage-only terminal chunk.
		if len(event.Choices) == 0 {
			if event.Usage != nil {
				usage := llm.TokenUsage{
					InputTokens:  event.Usage.PromptTokens,
					OutputTokens: event.Usage.CompletionTokens,
					TotalTokens:  event.Usage.TotalTokens,
				}
				if event.Usage.PromptTokensDetails != nil {
					usage.CacheReadTokens = event.Usage.PromptTokensDetails.CachedTokens
				}
				chunks <- llm.StreamChunk{
					RequestID:    requestID,
					FinishReason: finishReason,
					Usage:        &usage,
				}
			}
			continue
		}

		choice := event.Choices[0]

		if choice.Delta.Content != "" {
			chunks <- llm.StreamChunk{
				RequestID: requestID,
				Delta:     llm.StreamDelta{Content: choice.Delta.Content},
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			chunks <- llm.StreamChunk{
				RequestID: requestID,
				Delta: llm.StreamDelta{
					ToolCallDelta: &llm.ToolCallDelta{
						Index:          tc.Index,
						ID:             tc.ID,
						Name:           tc.Function.Name,
						ArgumentsDelta: tc.Function.Arguments,
					},
				},
			}
		}

		if choice.FinishReason != "" {
			finishReason = mapOpenAIFinishReason(choice.FinishReason)
			chunks <- llm.StreamChunk{
				RequestID:    requestID,
				FinishReason: finishReason,
			}
		}
	}
}

// openaiRequest is the request body for the chat completions API.
type openaiRequest struct {
	Model         string               `json:"model"`
	Messages      []openaiMessage      `json:"messages"`
	MaxTokens     int                  `json:"max_tokens,omitempty"`
	Temperature   *float64             `json:"temperature,omitempty"`
	Tools         []openaiTool         `json:"tools,omitempty"`
	Stop          []string             `json:"stop,omitempty"`
	Stream        bool                 `json:"stream,omitempty"`
	StreamOptions *openaiStreamOptions `json:"stream_options,omitempty"`
}

type openaiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// openaiMessage is a message in the chat completions format.
type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

// openaiToolCall is a tool invocation in a message.
type openaiToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openaiFunctionCall `json:"function"`
}

type openaiFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// openaiTool wraps a function definition.
type openaiTool struct {
	Type     string         `json:"type"`
	Function openaiFunction `json:"function"`
}

type openaiFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// openaiResponse is the response from the chat completions API.
type openaiResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

// openaiUsage is the token usage block in API responses.
type openaiUsage struct {
	PromptTokens        int                `json:"prompt_tokens"`
	CompletionTokens    int                `json:"completion_tokens"`
	TotalTokens         int                `json:"total_tokens"`
	PromptTokensDetails *openaiTokenDetail `json:"prompt_tokens_details,omitempty"`
}

type openaiTokenDetail struct {
	CachedTokens int `json:"cached_tokens"`
}

// openaiErrorResponse is an error response from the API.
type openaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// openaiStreamChunk is a single SSE chunk from the streaming API.
type openaiStreamChunk struct {
	ID      string               `json:"id"`
	Object  string               `json:"object"`
	Model   string               `json:"model"`
	Choices []openaiStreamChoice `json:"choices"`
	Usage   *openaiUsage         `json:"usage,omitempty"`
}

type openaiStreamChoice struct {
	Index        int               `json:"index"`
	Delta        openaiStreamDelta `json:"delta"`
	FinishReason string            `json:"finish_reason"`
}

type openaiStreamDelta struct {
	Role      string                `json:"role,omitempty"`
	Content   string                `json:"content,omitempty"`
	ToolCalls []openaiToolCallDelta `json:"tool_calls,omitempty"`
}

type openaiToolCallDelta struct {
	Index    int                `json:"index"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function openaiFunctionCall `json:"function"`
}
