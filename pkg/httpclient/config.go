package httpclient

import (
	"fmt"
	"time"
)

// Config controls timeout, retry and identification for a client.
type Config struct {
	// Timeout bounds the whole request, retries included. Must be > 0.
	Timeout time.Duration

	// RetryAttempts is how many retries follow the initial attempt.
	// 0 disables the retry layer entirely.
	RetryAttempts int

	// RetryBackoff is the delay before the first retry; subsequent delays
	// double, with jitter.
	RetryBackoff time.Duration

	// MaxBackoff caps the backoff growth.
	MaxBackoff time.Duration

	// UserAgent is required: every caller identifies itself.
	UserAgent string

	// AllowNonIdempotentRetry opts POST/PUT/PATCH/DELETE into retries.
	// Leave false unless the target endpoint deduplicates requests.
	AllowNonIdempotentRetry bool
}

// DefaultConfig returns the defaults shared by all flowwright integrations.
func DefaultConfig() Config {
	return Config{
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryBackoff:  100 * time.Millisecond,
		MaxBackoff:    30 * time.Second,
		UserAgent:     "flowwright-http/1.0",
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0, got %v", c.Timeout)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts must be >= 0, got %d", c.RetryAttempts)
	}
	if c.RetryAttempts > 0 {
		if c.RetryBackoff <= 0 {
			return fmt.Errorf("retry_backoff must be > 0 when retries are enabled, got %v", c.RetryBackoff)
		}
		if c.MaxBackoff < c.RetryBackoff {
			return fmt.Errorf("max_backoff (%v) must be >= retry_backoff (%v)", c.MaxBackoff, c.RetryBackoff)
		}
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user_agent is required")
	}
	return nil
}
