// Package tools provides utilities for tool execution and output processing.
package tools

import (
	"regexp"
	"sync"
)

// Redactor detects and redacts sensitive data patterns in strings. Tool
// inputs can carry credentials (node credential objects, API keys), so tool
// transcripts are passed through a Redactor before logging or persistence.
type Redactor struct {
	patterns []*redactionPattern
	mu       sync.RWMutex // Protects patterns for thread-safe usage
}

// redactionPattern represents a compiled pattern with its replacement string.
type redactionPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// NewRedactor creates a new redactor with default patterns for common
// sensitive data: LLM provider API keys, JWTs (n8n API keys are JWTs),
// bearer tokens, generic api_key/token/password assignments, and
// credentials embedded in URLs.
func NewRedactor() *Redactor {
	r := &Redactor{
		patterns: make([]*redactionPattern, 0),
	}

	// LLM provider API keys (sk-ant-..., sk-..., gsk_..., xai-...)
	r.addPattern(`\b(sk-ant-|sk-|gsk_|xai-)[a-zA-Z0-9_\-]{16,}`, "[REDACTED]")

	// JWTs (three base64url segments). n8n API keys take this form.
	r.addPattern(`\beyJ[a-zA-Z0-9_\-]+\.[a-zA-Z0-9_\-]+\.[a-zA-Z0-9_\-]+`, "[REDACTED]")

	// Bearer tokens in Authorization headers
	r.addPattern(`(?i)Bearer\s+([a-zA-Z0-9_\-\.]{10,})`, "Bearer [REDACTED]")

	// API keys in various formats: api_key=xxx, apiKey: xxx, api-key="xxx"
	r.addPattern(`(?i)(api[_-]?key|apikey)\s*[=:]\s*['"]?([a-zA-Z0-9_\-\.]{16,})['"]?`, "$1=[REDACTED]")

	// Generic token patterns
	r.addPattern(`(?i)(token|access[_-]?token|auth[_-]?token)\s*[=:]\s*['"]?([a-zA-Z0-9_\-\.]{16,})['"]?`, "$1=[REDACTED]")

	// Passwords in URLs (://user:password@host)
	r.addPattern(`://([^:@\s]+):([^@\s]+)@`, "://$1:[REDACTED]@")

	// Password assignments, quoted and unquoted
	r.addPattern(`(?i)(password|pwd|pass)\s*[=:]\s*'([^']{3,})'`, "$1=[REDACTED]")
	r.addPattern(`(?i)(password|pwd|pass)\s*[=:]\s*"([^"]{3,})"`, "$1=[REDACTED]")
	r.addPattern(`(?i)(password|pwd|pass)\s*[=:]\s*([^;'"\s]{3,})`, "$1=[REDACTED]")

	// Generic secret patterns (for environment variables or config)
	r.addPattern(`(?i)(secret|private[_-]?key)\s*[=:]\s*['"]?([a-zA-Z0-9_\-/+=]{16,})['"]?`, "$1=[REDACTED]")

	return r
}

// addPattern compiles and adds a new redaction pattern.
func (r *Redactor) addPattern(pattern, replacement string) {
	regex := regexp.MustCompile(pattern)
	r.patterns = append(r.patterns, &redactionPattern{
		regex:       regex,
		replacement: replacement,
	})
}

// Redact scans the input string and replaces all matches of sensitive
// patterns with [REDACTED]. It applies all patterns in sequence and is safe
// for concurrent use.
func (r *Redactor) Redact(s string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := s
	for _, p := range r.patterns {
		result = p.regex.ReplaceAllString(result, p.replacement)
	}
	return result
}
