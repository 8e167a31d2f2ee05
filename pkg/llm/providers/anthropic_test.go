package providers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/flowwright/flowwright/pkg/errors"
	"github.com/flowwright/flowwright/pkg/llm"
)

func testAnthropicProvider(t *testing.T, handler http.Handler) *AnthropicProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := NewAnthropicProvider("test-api-key", server.URL)
	if err != nil {
		t.Fatalf("NewAnthropicProvider failed: %v", err)
	}
	return provider
}

func TestNewAnthropicProvider(t *testing.T) {
	provider, err := NewAnthropicProvider("test-api-key", "")
	if err != nil {
		t.Fatalf("failed to create provider with valid API key: %v", err)
	}
	if provider == nil {
		t.Fatal("expected provider, got nil")
	}
	if provider.baseURL != anthropicAPIBaseURL {
		t.Errorf("expected default base URL, got %s", provider.baseURL)
	}

	_, err = NewAnthropicProvider("", "")
	if err == nil {
		t.Error("expected error with empty API key, got nil")
	}
	var cfgErr *pkgerrors.ConfigError
	if !stderrors.As(err, &cfgErr) {
		t.Errorf("expected ConfigError, got %T", err)
	}
}

func TestNewAnthropic_CredentialType(t *testing.T) {
	provider, err := NewAnthropic(llm.APIKeyCredentials{APIKey: "test-api-key"})
	if err != nil {
		t.Fatalf("factory failed with API key credentials: %v", err)
	}
	if provider.Name() != "anthropic" {
		t.Errorf("expected name 'anthropic', got '%s'", provider.Name())
	}

	_, err = NewAnthropic(llm.AWSCredentials{Region: "us-east-1"})
	if err == nil {
		t.Error("expected error with AWS credentials, got nil")
	}
}

func TestAnthropicProvider_Name(t *testing.T) {
	provider, _ := NewAnthropicProvider("test-api-key", "")
	if provider.Name() != "anthropic" {
		t.Errorf("expected provider name 'anthropic', got '%s'", provider.Name())
	}
}

func TestAnthropicProvider_Complete(t *testing.T) {
	var gotBody map[string]interface{}
	provider := testAnthropicProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-api-key" {
			t.Error("missing x-api-key header")
		}
		if r.Header.Get("anthropic-version") != anthropicAPIVersion {
			t.Errorf("unexpected anthropic-version: %s", r.Header.Get("anthropic-version"))
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("bad request body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"content": [
				{"type": "text", "text": "Creating the workflow now."},
				{"type": "tool_use", "id": "toolu_01", "name": "add_node", "input": {"type": "n8n-nodes-base.webhook"}}
			],
			"model": "claude-sonnet-4-20250514",
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 1200, "output_tokens": 85}
		}`))
	}))

	resp, err := provider.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.MessageRoleSystem, Content: "You build workflows."},
			{Role: llm.MessageRoleUser, Content: "Add a webhook trigger"},
		},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	// Request body assertions
	if gotBody["model"] != anthropicDefaultModel {
		t.Errorf("expected default model %s, got %v", anthropicDefaultModel, gotBody["model"])
	}
	if gotBody["max_tokens"] != float64(anthropicDefaultMaxTokens) {
		t.Errorf("expected default max_tokens, got %v", gotBody["max_tokens"])
	}
	if gotBody["system"] != "You build workflows." {
		t.Errorf("expected system prompt, got %v", gotBody["system"])
	}

	// Response assertions
	if resp.Content != "Creating the workflow now." {
		t.Errorf("unexpected content: %s", resp.Content)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "toolu_01" || tc.Name != "add_node" {
		t.Errorf("unexpected tool call: %+v", tc)
	}
	if tc.Arguments != `{"type":"n8n-nodes-base.webhook"}` {
		t.Errorf("unexpected tool arguments: %s", tc.Arguments)
	}
	if resp.FinishReason != llm.FinishReasonToolCalls {
		t.Errorf("expected tool_calls finish reason, got %s", resp.FinishReason)
	}
	if resp.Usage.InputTokens != 1200 || resp.Usage.OutputTokens != 85 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
	if resp.Usage.TotalTokens != 1285 {
		t.Errorf("expected total 1285, got %d", resp.Usage.TotalTokens)
	}
}

func TestAnthropicProvider_CompleteAPIError(t *testing.T) {
	provider := testAnthropicProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"type": "error", "error": {"type": "authentication_error", "message": "invalid x-api-key"}}`))
	}))

	_, err := provider.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.MessageRoleUser, Content: "hello"}},
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var provErr *pkgerrors.ProviderError
	if !stderrors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %T: %v", err, err)
	}
	if provErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", provErr.StatusCode)
	}
	if provErr.Message != "invalid x-api-key" {
		t.Errorf("unexpected message: %s", provErr.Message)
	}
	if !strings.Contains(provErr.Suggestion, "API key") {
		t.Errorf("expected API key suggestion, got: %s", provErr.Suggestion)
	}
}

func TestAnthropicProvider_CompleteEmptyMessages(t *testing.T) {
	provider, _ := NewAnthropicProvider("test-api-key", "")

	_, err := provider.Complete(context.Background(), llm.CompletionRequest{})
	if err == nil {
		t.Fatal("expected error for empty messages, got nil")
	}

	var valErr *pkgerrors.ValidationError
	if !stderrors.As(err, &valErr) {
		t.Errorf("expected ValidationError, got %T", err)
	}
}

func TestAnthropicProvider_Stream(t *testing.T) {
	events := []string{
		`event: message_start`,
		`data: {"type":"message_start","message":{"id":"msg_01","usage":{"input_tokens":1200}}}`,
		``,
		`event: content_block_start`,
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Creating "}}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"the workflow."}}`,
		``,
		`event: content_block_stop`,
		`data: {"type":"content_block_stop","index":0}`,
		``,
		`event: message_delta`,
		`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":12}}`,
		``,
		`event: message_stop`,
		`data: {"type":"message_stop"}`,
		``,
	}

	provider := testAnthropicProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if body["stream"] != true {
			t.Error("expected stream: true in request")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(strings.Join(events, "\n") + "\n"))
	}))

	chunks, err := provider.Stream(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.MessageRoleUser, Content: "build it"}},
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	var content string
	var finish *llm.StreamChunk
	for chunk := range chunks {
		if chunk.Error != nil {
			t.Fatalf("unexpected stream error: %v", chunk.Error)
		}
		content += chunk.Delta.Content
		if chunk.FinishReason != "" {
			c := chunk
			finish = &c
		}
	}

	if content != "Creating the workflow." {
		t.Errorf("unexpected assembled content: %q", content)
	}
	if finish == nil {
		t.Fatal("expected a finish chunk")
	}
	if finish.FinishReason != llm.FinishReasonStop {
		t.Errorf("expected stop finish reason, got %s", finish.FinishReason)
	}
	if finish.Usage == nil {
		t.Fatal("expected usage on finish chunk")
	}
	if finish.Usage.InputTokens != 1200 || finish.Usage.OutputTokens != 12 || finish.Usage.TotalTokens != 1212 {
		t.Errorf("unexpected usage: %+v", finish.Usage)
	}
}

func TestAnthropicProvider_StreamToolUse(t *testing.T) {
	events := []string{
		`data: {"type":"message_start","message":{"usage":{"input_tokens":500}}}`,
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_01","name":"add_node"}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"type\":"}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"\"n8n-nodes-base.webhook\"}"}}`,
		`data: {"type":"content_block_stop","index":0}`,
		`data: {"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":40}}`,
		`data: {"type":"message_stop"}`,
	}

	provider := testAnthropicProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(strings.Join(events, "\n\n") + "\n"))
	}))

	chunks, err := provider.Stream(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.MessageRoleUser, Content: "add a webhook"}},
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	var started *llm.ToolCallDelta
	var arguments string
	var finish llm.FinishReason
	for chunk := range chunks {
		if chunk.Error != nil {
			t.Fatalf("unexpected stream error: %v", chunk.Error)
		}
		if tc := chunk.Delta.ToolCallDelta; tc != nil {
			if tc.ID != "" {
				started = tc
			}
			arguments += tc.ArgumentsDelta
		}
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
	}

	if started == nil {
		t.Fatal("expected a tool call start chunk")
	}
	if started.Index != 0 || started.ID != "toolu_01" || started.Name != "add_node" {
		t.Errorf("unexpected tool call start: %+v", started)
	}
	if arguments != `{"type":"n8n-nodes-base.webhook"}` {
		t.Errorf("unexpected assembled arguments: %s", arguments)
	}
	if finish != llm.FinishReasonToolCalls {
		t.Errorf("expected tool_calls finish reason, got %s", finish)
	}
}

func TestAnthropicProvider_StreamError(t *testing.T) {
	provider := testAnthropicProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}` + "\n"))
	}))

	chunks, err := provider.Stream(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.MessageRoleUser, Content: "build it"}},
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	var streamErr error
	for chunk := range chunks {
		if chunk.Error != nil {
			streamErr = chunk.Error
		}
	}

	if streamErr == nil {
		t.Fatal("expected an error chunk")
	}
	var provErr *pkgerrors.ProviderError
	if !stderrors.As(streamErr, &provErr) {
		t.Fatalf("expected ProviderError, got %T", streamErr)
	}
	if provErr.Message != "Overloaded" {
		t.Errorf("unexpected message: %s", provErr.Message)
	}
}

func TestBuildAnthropicMessages(t *testing.T) {
	system, messages, err := buildAnthropicMessages([]llm.Message{
		{Role: llm.MessageRoleSystem, Content: "You build workflows."},
		{Role: llm.MessageRoleSystem, Content: "Use only allowed node types."},
		{Role: llm.MessageRoleUser, Content: "Add a webhook"},
		{Role: llm.MessageRoleAssistant, Content: "Adding it.", ToolCalls: []llm.ToolCall{
			{ID: "toolu_01", Name: "add_node", Arguments: `{"type":"n8n-nodes-base.webhook"}`},
		}},
		{Role: llm.MessageRoleTool, ToolCallID: "toolu_01", Content: `{"node_id":"node_1"}`},
	})
	if err != nil {
		t.Fatalf("buildAnthropicMessages failed: %v", err)
	}

	if system != "You build workflows.\n\nUse only allowed node types." {
		t.Errorf("unexpected system prompt: %q", system)
	}

	if len(messages) != 3 {
		t.Fatalf("expected 3 API messages, got %d", len(messages))
	}

	if messages[0].Role != "user" {
		t.Errorf("expected first message role 'user', got %s", messages[0].Role)
	}

	if messages[1].Role != "assistant" || len(messages[1].Content) != 2 {
		t.Errorf("expected assistant message with text + tool_use blocks, got %+v", messages[1])
	}

	// Tool results travel back as user messages with tool_result blocks.
	if messages[2].Role != "user" {
		t.Errorf("expected tool result role 'user', got %s", messages[2].Role)
	}
	result, ok := messages[2].Content[0].(anthropicToolResultContent)
	if !ok {
		t.Fatalf("expected tool_result block, got %T", messages[2].Content[0])
	}
	if result.ToolUseID != "toolu_01" {
		t.Errorf("expected tool_use_id 'toolu_01', got %s", result.ToolUseID)
	}
}

func TestBuildAnthropicMessages_Empty(t *testing.T) {
	_, _, err := buildAnthropicMessages(nil)
	if err == nil {
		t.Fatal("expected error for empty messages, got nil")
	}
}

func TestMapAnthropicStopReason(t *testing.T) {
	tests := []struct {
		stopReason string
		want       llm.FinishReason
	}{
		{"end_turn", llm.FinishReasonStop},
		{"stop_sequence", llm.FinishReasonStop},
		{"max_tokens", llm.FinishReasonLength},
		{"tool_use", llm.FinishReasonToolCalls},
		{"content_filtered", llm.FinishReasonContentFilter},
		{"something_else", llm.FinishReasonStop},
	}

	for _, tt := range tests {
		got := mapAnthropicStopReason(tt.stopReason)
		if got != tt.want {
			t.Errorf("mapAnthropicStopReason(%s) = %s, want %s", tt.stopReason, got, tt.want)
		}
	}
}
