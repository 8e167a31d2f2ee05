package providers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"

	"github.com/flowwright/flowwright/pkg/errors"
	"github.com/flowwright/flowwright/pkg/httpclient"
	"github.com/flowwright/flowwright/pkg/llm"
)

const (
	// bedrockAnthropicVersion is the required version marker for Anthropic
	// model bodies on Bedrock.
	bedrockAnthropicVersion = "bedrock-2023-05-31"

	// bedrockDefaultModel is used when the request does not name a model.
	bedrockDefaultModel = "anthropic.claude-sonnet-4-20250514-v1:0"

	// bedrockServiceName is the SigV4 signing service name.
	bedrockServiceName = "bedrock"
)

// awsAccessKeyPattern matches AWS access key IDs for redaction in error
// messages surfaced to users and logs.
var awsAccessKeyPattern = regexp.MustCompile(`AKIA[0-9A-Z]{16}`)

// BedrockProvider implements llm.Provider against Amazon Bedrock's
// InvokeModel API for Anthropic models. Requests are signed with SigV4 using
// the SDK's default credential chain; no API key is handled directly.
type BedrockProvider struct {
	region      string
	endpoint    string
	stsEndpoint string
	awsConfig   aws.Config
	signer      *v4.Signer
	httpClient  *http.Client

	credMu     sync.Mutex
	creds      aws.Credentials
	credExpiry time.Time
}

// NewBedrock is the factory registered with the llm registry.
func NewBedrock(creds llm.Credentials) (llm.Provider, error) {
	awsCreds, ok := creds.(llm.AWSCredentials)
	if !ok {
		return nil, &errors.ConfigError{
			Key:    "llm.provider",
			Reason: "bedrock requires AWS credentials (region, optional profile)",
		}
	}
	return NewBedrockProvider(awsCreds)
}

// NewBedrockProvider creates a Bedrock provider. It loads the SDK credential
// chain and verifies it with an STS GetCallerIdentity call so credential
// problems surface at startup rather than mid-generation.
func NewBedrockProvider(creds llm.AWSCredentials) (*BedrockProvider, error) {
	if creds.Region == "" {
		return nil, &errors.ConfigError{
			Key:    "bedrock.region",
			Reason: "AWS region is required for the Bedrock provider",
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(creds.Region),
	}
	if creds.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(creds.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:   "bedrock",
			Message:    fmt.Sprintf("failed to load AWS configuration: %v", sanitizeAWSMessage(err.Error())),
			Suggestion: "Check your AWS environment, shared config files, or instance role",
			Cause:      err,
		}
	}

	cfg := httpclient.DefaultConfig()
	cfg.Timeout = 120 * time.Second
	cfg.UserAgent = "flowwright-bedrock/1.0"
	cfg.RetryAttempts = 0

	httpClient, err := httpclient.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	p := &BedrockProvider{
		region:     creds.Region,
		endpoint:   fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", creds.Region),
		awsConfig:  awsCfg,
		signer:     v4.NewSigner(),
		httpClient: httpClient,
	}

	if err := p.verifyCredentials(ctx); err != nil {
		return nil, err
	}

	return p, nil
}

// Name returns the provider identifier.
func (p *BedrockProvider) Name() string {
	return "bedrock"
}

// Complete sends a synchronous InvokeModel request.
func (p *BedrockProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	requestID := uuid.New().String()

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
		model = bedrockDefaultModel
	}

	apiReq := &bedrockRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        maxTokens,
		System:           systemPrompt,
		Messages:         apiMessages,
		Temperature:      req.Temperature,
		Tools:            toAnthropicTools(req.Tools),
		StopSequences:    req.StopSequences,
	}

	respBody, err := p.invoke(ctx, model, apiReq, requestID)
	if err != nil {
		return nil, err
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &errors.ProviderError{
			Provider:  "bedrock",
			Message:   fmt.Sprintf("failed to parse response: %v", err),
			RequestID: requestID,
		}
	}

	content, toolCalls := parseAnthropicContent(apiResp.Content)

	return &llm.CompletionResponse{
		Content:      content,
		ToolCalls:    toolCalls,
		FinishReason: mapAnthropicStopReason(apiResp.StopReason),
		Usage: llm.TokenUsage{
			InputTokens:  apiResp.Usage.InputTokens,
			OutputTokens: apiResp.Usage.OutputTokens,
			TotalTokens:  apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
		},
		Model:     model,
		RequestID: requestID,
		Created:   time.Now(),
	}, nil
}

// Stream satisfies llm.Provider. Bedrock's response streaming uses binary
// event-stream framing, not SSE; Stream issues a blocking InvokeModel and
// replays the result as content chunks followed by a finish chunk.
func (p *BedrockProvider) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	chunks := make(chan llm.StreamChunk, len(resp.ToolCalls)+2)

	if resp.Content != "" {
		chunks <- llm.StreamChunk{
			RequestID: resp.RequestID,
			Delta:     llm.StreamDelta{Content: resp.Content},
		}
	}
	for i, tc := range resp.ToolCalls {
		chunks <- llm.StreamChunk{
			RequestID: resp.RequestID,
			Delta: llm.StreamDelta{
				ToolCallDelta: &llm.ToolCallDelta{
					Index:          i,
					ID:             tc.ID,
					Name:           tc.Name,
					ArgumentsDelta: tc.Arguments,
				},
			},
		}
	}

	usage := resp.Usage
	chunks <- llm.StreamChunk{
		RequestID:    resp.RequestID,
		FinishReason: resp.FinishReason,
		Usage:        &usage,
	}
	close(chunks)

	return chunks, nil
}

// invoke signs and sends an InvokeModel request, returning the raw response
// body.
func (p *BedrockProvider) invoke(ctx context.Context, model string, apiReq *bedrockRequest, requestID string) ([]byte, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "bedrock",
			Message:   fmt.Sprintf("failed to marshal request: %v", err),
			RequestID: requestID,
		}
	}

	invokeURL := p.endpoint + "/model/" + url.PathEscape(model) + "/invoke"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, invokeURL, bytes.NewReader(body))
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "bedrock",
			Message:   fmt.Sprintf("failed to create request: %v", err),
			RequestID: requestID,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	payloadHash := sha256.Sum256(body)
	hashHex := hex.EncodeToString(payloadHash[:])
	httpReq.Header.Set("X-Amz-Content-Sha256", hashHex)

	creds, err := p.currentCredentials(ctx)
	if err != nil {
		return nil, err
	}

	if err := p.signer.SignHTTP(ctx, creds, httpReq, hashHex, bedrockServiceName, p.region, time.Now()); err != nil {
		return nil, &errors.ProviderError{
			Provider:  "bedrock",
			Message:   fmt.Sprintf("failed to sign request: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "bedrock",
			Message:   fmt.Sprintf("request failed: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:   "bedrock",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to read response: %v", err),
			RequestID:  requestID,
			Cause:      err,
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.apiError(resp, respBody, requestID)
	}

	return respBody, nil
}

// apiError converts a non-200 Bedrock response into a ProviderError. The
// error type arrives in the X-Amzn-Errortype header, the message in a JSON
// body.
func (p *BedrockProvider) apiError(resp *http.Response, body []byte, requestID string) error {
	var errResp struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &errResp)

	message := errResp.Message
	if message == "" {
		message = fmt.Sprintf("API request failed with status %d", resp.StatusCode)
	}

	errType := resp.Header.Get("X-Amzn-Errortype")
	if idx := strings.Index(errType, ":"); idx >= 0 {
		errType = errType[:idx]
	}
	if errType != "" {
		message = fmt.Sprintf("%s: %s", errType, message)
	}

	return &errors.ProviderError{
		Provider:   "bedrock",
		StatusCode: resp.StatusCode,
		Message:    sanitizeAWSMessage(message),
		Suggestion: bedrockSuggestion(resp.StatusCode, errType),
		RequestID:  requestID,
	}
}

// bedrockSuggestion returns actionable guidance for an API error.
func bedrockSuggestion(statusCode int, errType string) string {
	switch statusCode {
	case http.StatusForbidden:
		return "Check that your AWS credentials have bedrock:InvokeModel permission and the model is enabled in this region"
	case http.StatusNotFound:
		return "Check the model ID and that the model is available in this region"
	case http.StatusTooManyRequests:
		return "Bedrock throttled the request. Retry after a short delay or request a quota increase"
	case http.StatusBadRequest:
		if errType == "ValidationException" {
			return "Check the request parameters for errors"
		}
		return "Review the request format and parameters"
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return "Bedrock is experiencing issues. Retry after a short delay"
	default:
		return "Check the Amazon Bedrock documentation for more details"
	}
}

// verifyCredentials calls STS GetCallerIdentity so bad credentials fail
// fast with a clear message.
func (p *BedrockProvider) verifyCredentials(ctx context.Context) error {
	if _, err := p.currentCredentials(ctx); err != nil {
		return err
	}

	var optFns []func(*sts.Options)
	if p.stsEndpoint != "" {
		optFns = append(optFns, func(o *sts.Options) {
			o.BaseEndpoint = aws.String(p.stsEndpoint)
		})
	}
	stsClient := sts.NewFromConfig(p.awsConfig, optFns...)

	verifyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := stsClient.GetCallerIdentity(verifyCtx, &sts.GetCallerIdentityInput{}); err != nil {
		return &errors.ProviderError{
			Provider:   "bedrock",
			Message:    fmt.Sprintf("AWS credential verification failed: %v", sanitizeAWSMessage(err.Error())),
			Suggestion: "Check your AWS credentials (environment, shared config, or instance role) and region",
			Cause:      err,
		}
	}

	return nil
}

// currentCredentials returns cached SigV4 credentials, refreshing from the
// provider chain when expired. Cached credentials live at most an hour.
func (p *BedrockProvider) currentCredentials(ctx context.Context) (aws.Credentials, error) {
	p.credMu.Lock()
	defer p.credMu.Unlock()

	if !p.credExpiry.IsZero() && time.Now().Before(p.credExpiry) {
		return p.creds, nil
	}

	creds, err := p.awsConfig.Credentials.Retrieve(ctx)
	if err != nil {
		return aws.Credentials{}, &errors.ProviderError{
			Provider:   "bedrock",
			Message:    fmt.Sprintf("unable to resolve AWS credentials: %v", sanitizeAWSMessage(err.Error())),
			Suggestion: "Check your AWS environment, shared config files, or instance role",
			Cause:      err,
		}
	}

	p.creds = creds
	expiry := creds.Expires
	if expiry.IsZero() || time.Until(expiry) > time.Hour {
		expiry = time.Now().Add(time.Hour)
	}
	p.credExpiry = expiry

	return p.creds, nil
}

// sanitizeAWSMessage redacts AWS access key IDs from error messages.
func sanitizeAWSMessage(msg string) string {
	return awsAccessKeyPattern.ReplaceAllString(msg, "AKIA****")
}

// bedrockRequest is the InvokeModel body for Anthropic models on Bedrock.
// It is the Messages API body with an anthropic_version marker instead of a
// model field (the model ID lives in the URL).
type bedrockRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
	Temperature      *float64           `json:"temperature,omitempty"`
	Tools            []anthropicTool    `json:"tools,omitempty"`
	StopSequences    []string           `json:"stop_sequences,omitempty"`
}
