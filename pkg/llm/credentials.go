package llm

import (
	"fmt"
	"strings"
)

// Credentials is the interface all provider credential types implement.
// It gives provider factories a single authentication argument while keeping
// the per-provider shapes typed.
type Credentials interface {
	// Validate checks that the credentials are present and well formed.
	Validate() error

	// Redacted returns a safe-to-log rendering of the credentials. Secret
	// values are masked.
	Redacted() string

	// ProviderType returns the kind of provider these credentials are for.
	ProviderType() string
}

// APIKeyCredentials holds authentication for key-based HTTP providers
// (Anthropic, OpenAI).
type APIKeyCredentials struct {
	// APIKey is the authentication token for the provider's API.
	APIKey string

	// BaseURL optionally overrides the API endpoint (proxies, compatible
	// gateways). Empty uses the provider default.
	BaseURL string
}

// Validate checks that the API key is present. Format validation is left to
// individual providers since key formats vary.
func (c APIKeyCredentials) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	return nil
}

// Redacted returns a safe-to-log version with the API key masked.
func (c APIKeyCredentials) Redacted() string {
	masked := maskSecret(c.APIKey)
	if c.BaseURL != "" {
		return fmt.Sprintf("APIKey: %s, BaseURL: %s", masked, c.BaseURL)
	}
	return fmt.Sprintf("APIKey: %s", masked)
}

// ProviderType returns "api" indicating a key-based HTTP provider.
func (c APIKeyCredentials) ProviderType() string {
	return "api"
}

// AWSCredentials holds configuration for AWS-hosted providers (Bedrock).
// The actual access keys come from the SDK's default chain (environment,
// shared config, instance role); only the targeting lives here.
type AWSCredentials struct {
	// Region is the AWS region hosting the models (e.g., "us-east-1").
	Region string

	// Profile optionally names a shared-config profile to load.
	Profile string
}

// Validate checks that a region is configured.
func (c AWSCredentials) Validate() error {
	if c.Region == "" {
		return fmt.Errorf("AWS region is required")
	}
	return nil
}

// Redacted returns a safe-to-log version of the AWS credentials. Nothing
// here is secret; the SDK never hands us raw keys to leak.
func (c AWSCredentials) Redacted() string {
	if c.Profile != "" {
		return fmt.Sprintf("Region: %s, Profile: %s", c.Region, c.Profile)
	}
	return fmt.Sprintf("Region: %s", c.Region)
}

// ProviderType returns "aws" indicating an AWS SDK authenticated provider.
func (c AWSCredentials) ProviderType() string {
	return "aws"
}

// maskSecret returns a masked version of a secret string, showing the first
// and last 4 characters with asterisks in between.
func maskSecret(secret string) string {
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}

// Compile-time interface implementation checks
var (
	_ Credentials = APIKeyCredentials{}
	_ Credentials = AWSCredentials{}
)
