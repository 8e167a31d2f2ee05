package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	pkgerrors "github.com/flowwright/flowwright/pkg/errors"
)

var (
	// ErrMaxRetriesExceeded indicates all retry attempts have been exhausted.
	ErrMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")
)

// RetryConfig configures retry behavior with exponential backoff and
// client-side request pacing.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retries).
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier (typically 2.0 for exponential).
	Multiplier float64

	// Jitter adds randomness to prevent thundering herd (0.0-1.0).
	Jitter float64

	// RequestsPerSecond throttles outgoing requests across attempts and
	// calls. 0 disables pacing.
	RequestsPerSecond float64

	// RetryableErrors decides whether an error should trigger a retry.
	// If nil, the default logic applies (HTTP 5xx, 429, timeouts, transient
	// network errors).
	RetryableErrors func(error) bool
}

// DefaultRetryConfig returns sensible default retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// RetryableProvider wraps a provider with retry and pacing logic. It
// implements Provider, so callers use it exactly like the wrapped provider.
type RetryableProvider struct {
	provider Provider
	config   RetryConfig
	limiter  *rate.Limiter
}

// NewRetryableProvider wraps a provider with retry logic.
func NewRetryableProvider(provider Provider, config RetryConfig) *RetryableProvider {
	if config.RetryableErrors == nil {
		config.RetryableErrors = isRetryableError
	}

	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}

	return &RetryableProvider{
		provider: provider,
		config:   config,
		limiter:  limiter,
	}
}

// Name returns the wrapped provider's name.
func (r *RetryableProvider) Name() string {
	return r.provider.Name()
}

// Complete executes a completion request with retry logic.
func (r *RetryableProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if err := r.waitForAttempt(ctx, attempt); err != nil {
			return nil, err
		}

		resp, err := r.provider.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !r.config.RetryableErrors(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrMaxRetriesExceeded, r.config.MaxRetries+1, lastErr)
}

// Stream executes a streaming request with retry logic. A stream cannot be
// partially replayed, so only failures before the first chunk are retried;
// errors that arrive mid-stream pass through to the caller.
func (r *RetryableProvider) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if err := r.waitForAttempt(ctx, attempt); err != nil {
			return nil, err
		}

		chunks, err := r.provider.Stream(ctx, req)
		if err == nil {
			return chunks, nil
		}
		lastErr = err

		if !r.config.RetryableErrors(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrMaxRetriesExceeded, r.config.MaxRetries+1, lastErr)
}

// waitForAttempt blocks for the backoff delay (attempts after the first)
// and then for the rate limiter.
func (r *RetryableProvider) waitForAttempt(ctx context.Context, attempt int) error {
	if attempt > 0 {
		select {
		case <-time.After(r.calculateBackoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// calculateBackoff computes the delay for a given attempt with jitter.
func (r *RetryableProvider) calculateBackoff(attempt int) time.Duration {
	backoff := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))

	if backoff > float64(r.config.MaxDelay) {
		backoff = float64(r.config.MaxDelay)
	}

	// Add jitter: backoff * (1 ± jitter)
	if r.config.Jitter > 0 {
		jitterAmount := backoff * r.config.Jitter
		jitterDelta := (rand.Float64() * 2 * jitterAmount) - jitterAmount
		backoff += jitterDelta
	}

	return time.Duration(backoff)
}

// isRetryableError is the default retry classification: server errors and
// rate limiting are retryable, authentication and request errors are not.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var provErr *pkgerrors.ProviderError
	if errors.As(err, &provErr) && provErr.StatusCode != 0 {
		return provErr.StatusCode >= 500 || provErr.StatusCode == http.StatusTooManyRequests
	}

	var timeoutErr *pkgerrors.TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	type temporary interface {
		Temporary() bool
	}
	var temp temporary
	if errors.As(err, &temp) {
		return temp.Temporary()
	}

	return false
}
