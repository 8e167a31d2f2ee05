package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/flowwright/flowwright/pkg/httpclient"
)

const (
	apiKeyHeader = "X-N8N-API-KEY"

	// maxErrorBody caps how much of an error response is read into messages.
	maxErrorBody = 8 * 1024
)

// ClientConfig holds connection settings for an n8n instance.
type ClientConfig struct {
	// BaseURL is the instance root, e.g. "https://n8n.example.com".
	BaseURL string

	// APIKey authenticates against the public API. n8n issues these as JWTs.
	APIKey string

	// Timeout bounds each request. Defaults to 30s.
	Timeout time.Duration

	// RateLimit is the client-side request budget in requests per second.
	// Defaults to 5.
	RateLimit float64

	Logger *slog.Logger
}

// Validate checks the configuration, distinguishing "not configured" (no URL
// or key, remote operations should be skipped) from genuinely bad settings.
func (c *ClientConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: missing base URL", ErrNotConfigured)
	}
	if c.APIKey == "" {
		return fmt.Errorf("%w: missing API key", ErrNotConfigured)
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base URL %q must start with http:// or https://", c.BaseURL)
	}
	return nil
}

// Client talks to the n8n public API (v1). It applies a client-side rate
// limit so bursts of validation probes do not trip the instance's own
// limiter.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates an n8n API client. Returns an error wrapping
// ErrNotConfigured when the base URL or API key is missing.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 5
	}

	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = timeout
	httpCfg.UserAgent = "flowwright/1.0"
	// The retry transport only retries idempotent methods; workflow creation
	// must not be replayed blindly, so POSTs stay single-shot.
	httpCfg.RetryAttempts = 2

	client, err := httpclient.New(httpCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "n8n-client")

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    client,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)),
		logger:  logger,
	}

	if expiry, ok := APIKeyExpiry(cfg.APIKey); ok && time.Now().After(expiry) {
		logger.Warn("n8n API key appears to be expired", "expired_at", expiry)
	}

	return c, nil
}

// APIKeyExpiry inspects an n8n API key, which the instance issues as a JWT,
// and reports the embedded expiry. Returns false when the key is not a JWT
// or encodes no expiry; the key is never rejected on this basis because
// self-hosted instances can issue non-expiring keys.
func APIKeyExpiry(apiKey string) (time.Time, bool) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(apiKey, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// CreatedWorkflow is the API's record of a persisted workflow.
type CreatedWorkflow struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// createRequest is the POST payload. The API rejects read-only fields (id,
// active), and requires a settings object, so the payload is rebuilt rather
// than reusing the Workflow document directly.
type createRequest struct {
	Name        string        `json:"name"`
	Nodes       []Node        `json:"nodes"`
	Connections ConnectionMap `json:"connections"`
	Settings    *Settings     `json:"settings"`
}

// Create persists a workflow on the n8n instance and returns its assigned ID.
func (c *Client) Create(ctx context.Context, wf *Workflow) (*CreatedWorkflow, error) {
	settings := wf.Settings
	if settings == nil {
		settings = &Settings{ExecutionOrder: ExecutionOrderV1}
	}
	payload := createRequest{
		Name:        wf.Name,
		Nodes:       wf.Nodes,
		Connections: wf.Connections,
		Settings:    settings,
	}
	if payload.Connections == nil {
		payload.Connections = ConnectionMap{}
	}

	var created CreatedWorkflow
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/workflows", payload, &created); err != nil {
		return nil, err
	}
	c.logger.Info("created workflow", "workflow_id", created.ID, "name", created.Name)
	return &created, nil
}

// Delete removes a workflow by ID.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/workflows/"+id, nil, nil)
}

// EditorURL returns the editor page for a workflow on this instance.
func (c *Client) EditorURL(id string) string {
	return c.baseURL + "/workflow/" + id
}

// Activate enables a workflow so its triggers start firing.
func (c *Client) Activate(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/v1/workflows/"+id+"/activate", nil, nil)
}

// RemoteValidation is the outcome of a ValidateByCreate round-trip.
type RemoteValidation struct {
	// Valid is true when the instance accepted the workflow.
	Valid bool

	// Message carries the rejection reason when Valid is false.
	Message string

	// CleanedUp is false when the probe workflow was created but could not
	// be deleted afterwards and is still on the instance.
	CleanedUp bool
}

// ValidateByCreate checks a workflow against the instance the only way the
// public API allows: create it, then delete it again. A VALIDATION rejection
// is reported as an invalid result, not an error; authentication, network
// and server failures are returned as errors since they say nothing about
// the workflow.
func (c *Client) ValidateByCreate(ctx context.Context, wf *Workflow) (*RemoteValidation, error) {
	created, err := c.Create(ctx, wf)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Type == ErrorTypeValidation {
			return &RemoteValidation{Valid: false, Message: apiErr.Message, CleanedUp: true}, nil
		}
		return nil, err
	}

	result := &RemoteValidation{Valid: true, CleanedUp: true}
	if err := c.Delete(ctx, created.ID); err != nil {
		// The validation answer is already known; losing the cleanup only
		// leaves a stray inactive workflow behind.
		c.logger.Warn("failed to delete validation workflow", "workflow_id", created.ID, "error", err)
		result.CleanedUp = false
	}
	return result, nil
}

// doJSON performs one API request, decoding a JSON response into out when
// out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return newNetworkError(err)
	}
	defer resp.Body.Close()

	c.logger.Debug("n8n API request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, readAPIMessage(resp.Body))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// readAPIMessage extracts the "message" field n8n error responses carry,
// falling back to the raw body.
func readAPIMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(data) == 0 {
		return "no error details provided"
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(data))
}
