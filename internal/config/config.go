// Copyright 2025 The Flowwright Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	fwerrors "github.com/flowwright/flowwright/pkg/errors"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Config represents the complete Flowwright configuration.
type Config struct {
	// Version is the config schema version. Written by the setup wizard.
	Version int `yaml:"version,omitempty"`

	Log        LogConfig        `yaml:"log"`
	LLM        LLMConfig        `yaml:"llm"` // Global LLM settings (timeouts, retries, etc.)
	N8N        N8NConfig        `yaml:"n8n"`
	Generation GenerationConfig `yaml:"generation"`
	History    HistoryConfig    `yaml:"history"`
	Tracing    TracingConfig    `yaml:"tracing"`

	// DefaultProvider names the provider instance used when no explicit
	// provider is requested.
	// Environment: FLOWWRIGHT_PROVIDER
	DefaultProvider string `yaml:"default_provider,omitempty" json:"default_provider,omitempty"`

	// Providers maps provider instance names to their configurations.
	Providers ProvidersMap `yaml:"providers,omitempty" json:"providers,omitempty"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Environment: LOG_LEVEL
	// Default: info
	Level string `yaml:"level"`

	// Format sets the output format (json, text).
	// Environment: LOG_FORMAT
	// Default: json
	Format string `yaml:"format"`

	// AddSource adds source file and line information to logs.
	// Environment: LOG_SOURCE
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// LLMConfig configures global LLM behavior shared by all providers.
type LLMConfig struct {
	// Model overrides the default model for the selected provider.
	// Environment: FLOWWRIGHT_MODEL
	// Default: empty (provider-specific default)
	Model string `yaml:"model,omitempty"`

	// MaxTokens caps the completion size requested from the provider.
	// Environment: LLM_MAX_TOKENS
	// Default: 8192
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// RequestTimeout is the maximum duration for a single completion request.
	// Generation turns stream large tool-call payloads, so this is generous.
	// Environment: LLM_REQUEST_TIMEOUT
	// Default: 120s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxRetries is the maximum number of retry attempts for failed requests.
	// Environment: LLM_MAX_RETRIES
	// Default: 3
	MaxRetries int `yaml:"max_retries"`

	// RetryBackoffBase is the base duration for exponential backoff.
	// Environment: LLM_RETRY_BACKOFF_BASE
	// Default: 500ms
	RetryBackoffBase time.Duration `yaml:"retry_backoff_base"`
}

// N8NConfig configures the connection to an n8n instance.
// An empty BaseURL means no instance is configured; generation still works
// but live validation and deployment are unavailable.
type N8NConfig struct {
	// BaseURL is the n8n instance URL (e.g., "https://n8n.example.com").
	// Environment: N8N_BASE_URL
	BaseURL string `yaml:"base_url,omitempty"`

	// APIKey authenticates against the n8n public API.
	// Supports $secret:key references.
	// Environment: N8N_API_KEY
	APIKey string `yaml:"api_key,omitempty"`

	// Timeout is the per-request timeout for n8n API calls.
	// Environment: N8N_TIMEOUT
	// Default: 30s
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// RequestsPerSecond throttles calls to the n8n API.
	// Default: 5
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`

	// Activate controls whether deployed workflows are activated immediately.
	// Default: false
	Activate bool `yaml:"activate"`
}

// GenerationConfig bounds the self-correcting generation loop.
type GenerationConfig struct {
	// MaxTurns is the hard cap on oracle round-trips per generation.
	// Environment: FLOWWRIGHT_MAX_TURNS
	// Default: 20
	MaxTurns int `yaml:"max_turns,omitempty"`

	// RetryBudget is the number of validation-failure repair cycles allowed
	// after the oracle first declares the workflow complete.
	// Environment: FLOWWRIGHT_RETRY_BUDGET
	// Default: 3
	RetryBudget int `yaml:"retry_budget,omitempty"`

	// AllowedNodeTypes restricts which node types the generator may place.
	// Glob patterns are supported ("n8n-nodes-base.*"); a leading ! blocks
	// the matched types and takes precedence. Empty means no restriction.
	AllowedNodeTypes []string `yaml:"allowed_node_types,omitempty"`

	// ClassifierRules extend the built-in failure classification table.
	// Rules are evaluated in order before the defaults.
	ClassifierRules []ClassifierRule `yaml:"classifier_rules,omitempty"`
}

// ClassifierRule is a user-defined failure classification rule. When is an
// expression evaluated against a failure (variables: message, tool); the
// first matching rule decides how the generation loop reacts.
type ClassifierRule struct {
	// When is the match expression, e.g. `message contains "quota"`.
	When string `yaml:"when"`

	// Class is "recoverable" or "non_recoverable".
	Class string `yaml:"class"`

	// Hint is an optional repair hint fed back to the model on
	// recoverable failures.
	Hint string `yaml:"hint,omitempty"`
}

// HistoryConfig configures local generation history.
type HistoryConfig struct {
	// Enabled controls whether generations are recorded.
	// Environment: FLOWWRIGHT_HISTORY_ENABLED
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite database location.
	// Environment: FLOWWRIGHT_HISTORY_PATH
	// Default: ~/.local/share/flowwright/history.db
	Path string `yaml:"path,omitempty"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	// Enabled activates span export. Opt-in.
	// Environment: FLOWWRIGHT_TRACING_ENABLED
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP receiver address (host:port).
	// Environment: OTEL_EXPORTER_OTLP_ENDPOINT
	Endpoint string `yaml:"endpoint,omitempty"`

	// Protocol selects the exporter: "grpc", "http", or "stdout".
	// Default: grpc
	Protocol string `yaml:"protocol,omitempty"`

	// Insecure disables TLS for OTLP connections.
	Insecure bool `yaml:"insecure"`

	// SampleRate is the head sampling ratio in [0, 1].
	// Default: 1.0
	SampleRate float64 `yaml:"sample_rate,omitempty"`

	// ServiceName identifies this process in traces.
	// Default: flowwright
	ServiceName string `yaml:"service_name,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:     "info",
			Format:    "json",
			AddSource: false,
		},
		LLM: LLMConfig{
			MaxTokens:        8192,
			RequestTimeout:   120 * time.Second,
			MaxRetries:       3,
			RetryBackoffBase: 500 * time.Millisecond,
		},
		N8N: N8NConfig{
			Timeout:           30 * time.Second,
			RequestsPerSecond: 5,
			Activate:          false,
		},
		Generation: GenerationConfig{
			MaxTurns:    20,
			RetryBudget: 3,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    defaultHistoryPath(),
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Protocol:    "grpc",
			SampleRate:  1.0,
			ServiceName: "flowwright",
		},
		DefaultProvider: "anthropic",
	}
}

// Load loads configuration from environment variables and optionally from a
// YAML file. Environment variables take precedence over file-based
// configuration. If configPath is empty, only environment variables are used.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &fwerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	// Apply defaults to any zero values (handles minimal configs)
	cfg.applyDefaults()

	// Override with environment variables
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &fwerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// LoadWithSecrets loads configuration and resolves all secret references.
// It returns the config and any warnings about plaintext API keys.
func LoadWithSecrets(configPath string) (*Config, []string, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	ctx := context.Background()
	warnings, err := ResolveSecretsInProviders(ctx, cfg.Providers)
	if err != nil {
		return nil, nil, &fwerrors.ConfigError{
			Key:    "secrets",
			Reason: "failed to resolve secret references",
			Cause:  err,
		}
	}

	// The n8n API key supports the same $secret: references as providers.
	if cfg.N8N.APIKey != "" {
		resolved, err := ResolveSecretReference(ctx, cfg.N8N.APIKey)
		if err != nil {
			return nil, nil, &fwerrors.ConfigError{
				Key:    "n8n.api_key",
				Reason: "failed to resolve secret reference",
				Cause:  err,
			}
		}
		cfg.N8N.APIKey = resolved
	}

	return cfg, warnings, nil
}

// applyDefaults fills in zero values with sensible defaults.
// This allows minimal configs (e.g., just providers) to work without
// specifying all fields explicitly.
func (c *Config) applyDefaults() {
	defaults := Default()

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}

	// LLM defaults
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = defaults.LLM.MaxTokens
	}
	if c.LLM.RequestTimeout == 0 {
		c.LLM.RequestTimeout = defaults.LLM.RequestTimeout
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = defaults.LLM.MaxRetries
	}
	if c.LLM.RetryBackoffBase == 0 {
		c.LLM.RetryBackoffBase = defaults.LLM.RetryBackoffBase
	}

	// n8n defaults
	if c.N8N.Timeout == 0 {
		c.N8N.Timeout = defaults.N8N.Timeout
	}
	if c.N8N.RequestsPerSecond == 0 {
		c.N8N.RequestsPerSecond = defaults.N8N.RequestsPerSecond
	}

	// Generation defaults
	if c.Generation.MaxTurns == 0 {
		c.Generation.MaxTurns = defaults.Generation.MaxTurns
	}
	if c.Generation.RetryBudget == 0 {
		c.Generation.RetryBudget = defaults.Generation.RetryBudget
	}

	// History defaults
	if c.History.Path == "" {
		c.History.Path = defaults.History.Path
	}

	// Tracing defaults
	if c.Tracing.Protocol == "" {
		c.Tracing.Protocol = defaults.Tracing.Protocol
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = defaults.Tracing.SampleRate
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = defaults.Tracing.ServiceName
	}

	// Provider defaults
	if c.DefaultProvider == "" {
		c.DefaultProvider = defaults.DefaultProvider
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	path, err := expandHome(path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() {
	// Log configuration
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}

	// Provider selection
	if val := os.Getenv("FLOWWRIGHT_PROVIDER"); val != "" {
		c.DefaultProvider = val
	}
	if val := os.Getenv("FLOWWRIGHT_MODEL"); val != "" {
		c.LLM.Model = val
	}

	// LLM configuration
	if val := os.Getenv("LLM_MAX_TOKENS"); val != "" {
		if tokens, err := strconv.Atoi(val); err == nil {
			c.LLM.MaxTokens = tokens
		}
	}
	if val := os.Getenv("LLM_REQUEST_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.LLM.RequestTimeout = duration
		}
	}
	if val := os.Getenv("LLM_MAX_RETRIES"); val != "" {
		if retries, err := strconv.Atoi(val); err == nil {
			c.LLM.MaxRetries = retries
		}
	}
	if val := os.Getenv("LLM_RETRY_BACKOFF_BASE"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.LLM.RetryBackoffBase = duration
		}
	}

	// n8n configuration
	if val := os.Getenv("N8N_BASE_URL"); val != "" {
		c.N8N.BaseURL = val
	}
	if val := os.Getenv("N8N_API_KEY"); val != "" {
		c.N8N.APIKey = val
	}
	if val := os.Getenv("N8N_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.N8N.Timeout = duration
		}
	}

	// Generation configuration
	if val := os.Getenv("FLOWWRIGHT_MAX_TURNS"); val != "" {
		if turns, err := strconv.Atoi(val); err == nil {
			c.Generation.MaxTurns = turns
		}
	}
	if val := os.Getenv("FLOWWRIGHT_RETRY_BUDGET"); val != "" {
		if budget, err := strconv.Atoi(val); err == nil {
			c.Generation.RetryBudget = budget
		}
	}

	// History configuration
	if val := os.Getenv("FLOWWRIGHT_HISTORY_ENABLED"); val != "" {
		c.History.Enabled = val == "1" || strings.ToLower(val) == "true"
	}
	if val := os.Getenv("FLOWWRIGHT_HISTORY_PATH"); val != "" {
		c.History.Path = val
	}

	// Tracing configuration
	if val := os.Getenv("FLOWWRIGHT_TRACING_ENABLED"); val != "" {
		c.Tracing.Enabled = val == "1" || strings.ToLower(val) == "true"
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		c.Tracing.Endpoint = val
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	// Validate log configuration
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, warning, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	// Validate LLM configuration
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, fmt.Sprintf("llm.max_tokens must be positive, got %d", c.LLM.MaxTokens))
	}
	if c.LLM.RequestTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("llm.request_timeout must be positive, got %v", c.LLM.RequestTimeout))
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, fmt.Sprintf("llm.max_retries must be non-negative, got %d", c.LLM.MaxRetries))
	}
	if c.LLM.RetryBackoffBase <= 0 {
		errs = append(errs, fmt.Sprintf("llm.retry_backoff_base must be positive, got %v", c.LLM.RetryBackoffBase))
	}

	// Validate provider configuration
	// default_provider must reference a configured provider. Skip when no
	// providers are configured yet (credentials may come from env vars).
	if c.DefaultProvider != "" && len(c.Providers) > 0 {
		if _, exists := c.Providers[c.DefaultProvider]; !exists {
			errs = append(errs, fmt.Sprintf("default_provider %q not found in providers map. Available: %v", c.DefaultProvider, keysOf(c.Providers)))
		}
	}
	for name, provider := range c.Providers {
		if provider.Type == "" {
			errs = append(errs, fmt.Sprintf("provider %q must have a type field", name))
		}
	}

	// Validate n8n configuration
	if c.N8N.BaseURL != "" {
		if !strings.HasPrefix(c.N8N.BaseURL, "http://") && !strings.HasPrefix(c.N8N.BaseURL, "https://") {
			errs = append(errs, fmt.Sprintf("n8n.base_url must start with http:// or https://, got %q", c.N8N.BaseURL))
		}
	}
	if c.N8N.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("n8n.timeout must be positive, got %v", c.N8N.Timeout))
	}
	if c.N8N.RequestsPerSecond <= 0 {
		errs = append(errs, fmt.Sprintf("n8n.requests_per_second must be positive, got %v", c.N8N.RequestsPerSecond))
	}

	// Validate generation configuration
	if c.Generation.MaxTurns < 1 || c.Generation.MaxTurns > 100 {
		errs = append(errs, fmt.Sprintf("generation.max_turns must be between 1 and 100, got %d", c.Generation.MaxTurns))
	}
	if c.Generation.RetryBudget < 0 {
		errs = append(errs, fmt.Sprintf("generation.retry_budget must be non-negative, got %d", c.Generation.RetryBudget))
	}
	for i, rule := range c.Generation.ClassifierRules {
		if strings.TrimSpace(rule.When) == "" {
			errs = append(errs, fmt.Sprintf("generation.classifier_rules[%d].when must not be empty", i))
		}
		switch rule.Class {
		case "recoverable", "non_recoverable":
		default:
			errs = append(errs, fmt.Sprintf("generation.classifier_rules[%d].class must be one of [recoverable, non_recoverable], got %q", i, rule.Class))
		}
	}

	// Validate tracing configuration
	validProtocols := map[string]bool{"grpc": true, "http": true, "stdout": true}
	if !validProtocols[c.Tracing.Protocol] {
		errs = append(errs, fmt.Sprintf("tracing.protocol must be one of [grpc, http, stdout], got %q", c.Tracing.Protocol))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %v", c.Tracing.SampleRate))
	}
	if c.Tracing.Enabled && c.Tracing.Protocol != "stdout" && c.Tracing.Endpoint == "" {
		errs = append(errs, "tracing.endpoint is required when tracing is enabled with an OTLP protocol")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}

	return nil
}

// keysOf returns the keys of a ProvidersMap as a slice
func keysOf(m ProvidersMap) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// defaultHistoryPath returns the default location of the history database.
func defaultHistoryPath() string {
	dir, err := dataDirPath()
	if err != nil {
		return filepath.Join(os.TempDir(), "flowwright-history.db")
	}
	return filepath.Join(dir, "history.db")
}
