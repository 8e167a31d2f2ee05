// Package httpclient builds the HTTP clients every outbound integration
// (the n8n API, LLM provider APIs) shares, so timeout, retry and logging
// behavior stays consistent across the codebase.
//
// A client is a stack of transport layers: a base transport with TLS 1.2+
// and connection pooling, a logging layer that sets the User-Agent, injects
// W3C trace context and logs sanitized URLs, and an optional retry layer
// with exponential backoff that honors Retry-After.
//
//	cfg := httpclient.DefaultConfig()
//	cfg.UserAgent = "flowwright/1.0"
//	client, err := httpclient.New(cfg)
//
// # Retry behavior
//
// Transient failures are retried: 5xx, 408 and 429 statuses (with
// Retry-After support) and network-level errors such as refused or reset
// connections. 4xx client errors are not. Only idempotent methods (GET,
// HEAD, OPTIONS) retry unless AllowNonIdempotentRetry is set; a
// workflow-creating POST must never be replayed blindly.
//
// # Logging
//
// Requests emit structured slog records: debug for successes, warn for
// failures, with method, sanitized URL, status and duration. Query
// parameters that look like secrets are redacted before they reach a log
// line.
package httpclient
