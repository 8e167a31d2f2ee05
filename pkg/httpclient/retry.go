package httpclient

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// retryTransport retries transient failures with exponential backoff.
type retryTransport struct {
	base            http.RoundTripper
	maxAttempts     int
	baseBackoff     time.Duration
	maxBackoff      time.Duration
	allowWriteRetry bool
}

func newRetryTransport(base http.RoundTripper, cfg Config) *retryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &retryTransport{
		base:            base,
		maxAttempts:     cfg.RetryAttempts + 1,
		baseBackoff:     cfg.RetryBackoff,
		maxBackoff:      cfg.MaxBackoff,
		allowWriteRetry: cfg.AllowNonIdempotentRetry,
	}
}

// RoundTrip implements http.RoundTripper. Non-idempotent methods pass
// through untouched unless write retries were explicitly enabled.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !isIdempotent(req.Method) && !t.allowWriteRetry {
		return t.base.RoundTrip(req)
	}

	var lastErr error
	var lastResp *http.Response

	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := t.backoff(attempt - 1)
			if lastResp != nil {
				if after := parseRetryAfter(lastResp); after > 0 && after < delay {
					delay = after
				}
			}
			select {
			case <-time.After(delay):
			case <-req.Context().Done():
				return nil, req.Context().Err()
			}
		}

		resp, err := t.base.RoundTrip(req)

		switch {
		case err == nil && !retryableStatus(resp.StatusCode):
			return resp, nil
		case err != nil && !retryableError(err):
			return nil, err
		}

		// Transient failure; the response will not be returned, so its
		// body must be drained here.
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		lastErr = err
		lastResp = resp

		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return lastResp, nil
}

// isIdempotent reports whether a method is safe to replay. PUT and DELETE
// are idempotent by the RFC but depend on server behavior, so only the read
// methods qualify.
func isIdempotent(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func retryableStatus(statusCode int) bool {
	switch {
	case statusCode >= 500:
		return true
	case statusCode == http.StatusRequestTimeout:
		return true
	case statusCode == http.StatusTooManyRequests:
		return true
	}
	return false
}

func retryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return retryableError(urlErr.Err)
	}

	msg := strings.ToLower(err.Error())
	for _, transient := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network unreachable",
		"temporary failure in name resolution",
		"eof",
	} {
		if strings.Contains(msg, transient) {
			return true
		}
	}
	return false
}

// backoff doubles per retry from the base delay, capped, plus up to 20%
// jitter so independent clients do not synchronize.
func (t *retryTransport) backoff(retry int) time.Duration {
	d := float64(t.baseBackoff) * math.Pow(2, float64(retry-1))
	if d > float64(t.maxBackoff) {
		d = float64(t.maxBackoff)
	}
	return time.Duration(d + rand.Float64()*d*0.2)
}

// parseRetryAfter reads a Retry-After header in either seconds or HTTP-date
// form, returning 0 when absent or unusable.
func parseRetryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if delay := time.Until(at); delay > 0 {
			return delay
		}
	}
	return 0
}
