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
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/flowwright/flowwright/internal/secrets"
	fwerrors "github.com/flowwright/flowwright/pkg/errors"
)

var (
	// secretRefPattern matches $secret:key references in config values
	secretRefPattern = regexp.MustCompile(`^\$secret:(.+)$`)

	// plaintextAPIKeyPattern matches common plaintext API key formats
	plaintextAPIKeyPattern = regexp.MustCompile(`^(sk-ant-|sk-|gsk-|xai-)`)
)

// ProviderConfig defines configuration for a single provider instance
type ProviderConfig struct {
	// Type specifies the provider implementation ("anthropic", "openai", "bedrock")
	Type string `yaml:"type" json:"type"`

	// APIKey for direct API access. Optional; supports $secret:key references.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// APIKeyEnv names an environment variable holding the key, checked when
	// APIKey is empty. Falls back to the provider's conventional variable
	// (ANTHROPIC_API_KEY, OPENAI_API_KEY) when unset.
	APIKeyEnv string `yaml:"api_key_env,omitempty" json:"api_key_env,omitempty"`

	// BaseURL for providers that support custom endpoints (proxies,
	// openai-compatible gateways)
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// Model is the default model for this provider instance
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// Region for AWS-hosted providers (bedrock)
	Region string `yaml:"region,omitempty" json:"region,omitempty"`
}

// ProvidersMap is a map of provider names to their configurations
// Each key is a unique provider instance name chosen by the user
type ProvidersMap map[string]ProviderConfig

// ResolveSecretReference resolves a $secret:key reference to its actual value.
// If the value doesn't start with $secret:, it's returned as-is.
// This function uses a shared resolver with all available backends.
func ResolveSecretReference(ctx context.Context, value string) (string, error) {
	if value == "" {
		return "", nil
	}

	matches := secretRefPattern.FindStringSubmatch(value)
	if len(matches) != 2 {
		// Not a secret reference, return as-is
		return value, nil
	}

	key := matches[1]

	resolver := createSecretResolver()

	secretValue, err := resolver.Get(ctx, key)
	if err != nil {
		return "", &fwerrors.ConfigError{
			Key:    key,
			Reason: fmt.Sprintf("failed to resolve secret reference %q", key),
			Cause:  err,
		}
	}

	return secretValue, nil
}

// createSecretResolver creates a secrets resolver with all available backends.
func createSecretResolver() *secrets.Resolver {
	backends := []secrets.SecretBackend{
		secrets.NewEnvBackend(),
		secrets.NewKeychainBackend(),
	}

	// File backend with default path and ambient master key. Construction
	// fails only when the config directory cannot be determined or created.
	if fileBackend, err := secrets.NewFileBackend("", ""); err == nil {
		backends = append(backends, fileBackend)
	}

	return secrets.NewResolver(backends...)
}

// ResolveSecrets resolves all secret references in a provider configuration.
// It modifies the config in place and returns any warnings about plaintext
// API keys.
func (p *ProviderConfig) ResolveSecrets(ctx context.Context) (warnings []string, err error) {
	if p.APIKey != "" {
		// Check for plaintext API key before resolution
		if plaintextAPIKeyPattern.MatchString(p.APIKey) && !strings.HasPrefix(p.APIKey, "$secret:") {
			warnings = append(warnings,
				"Plaintext API key detected in config. Consider moving it to a secret backend: flowwright secrets set",
			)
		}

		resolved, err := ResolveSecretReference(ctx, p.APIKey)
		if err != nil {
			return warnings, &fwerrors.ConfigError{
				Key:    "api_key",
				Reason: "failed to resolve API key secret reference",
				Cause:  err,
			}
		}
		p.APIKey = resolved
	}

	return warnings, nil
}

// ResolveSecretsInProviders resolves all secret references in all providers.
// Returns aggregated warnings about plaintext API keys.
func ResolveSecretsInProviders(ctx context.Context, providers ProvidersMap) (warnings []string, err error) {
	for name, provider := range providers {
		providerWarnings, err := provider.ResolveSecrets(ctx)
		if err != nil {
			return warnings, &fwerrors.ConfigError{
				Key:    fmt.Sprintf("providers.%s", name),
				Reason: "failed to resolve provider secrets",
				Cause:  err,
			}
		}

		// Prefix warnings with provider name
		for _, w := range providerWarnings {
			warnings = append(warnings, fmt.Sprintf("provider %q: %s", name, w))
		}

		// Update the map with resolved config
		providers[name] = provider
	}

	return warnings, nil
}

// conventionalKeyEnv maps provider types to the environment variable their
// ecosystem conventionally uses for API keys.
var conventionalKeyEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
}

// EffectiveAPIKey resolves the API key for this provider: the configured
// (already secret-resolved) key first, then the named APIKeyEnv variable,
// then the provider type's conventional variable. Bedrock returns empty;
// the AWS SDK chain authenticates it.
func (p *ProviderConfig) EffectiveAPIKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	if env, ok := conventionalKeyEnv[p.Type]; ok {
		return os.Getenv(env)
	}
	return ""
}
