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

package shared

import (
	"fmt"
	"strings"

	"github.com/flowwright/flowwright/internal/config"
	"github.com/flowwright/flowwright/pkg/llm"

	// Register the built-in provider factories.
	_ "github.com/flowwright/flowwright/pkg/llm/providers"
)

// ResolveProviderConfig picks the provider entry to use. Resolution order:
//
// 1. The named entry in cfg.Providers (when name is non-empty)
// 2. The cfg.DefaultProvider entry
// 3. A synthesized entry when the requested name matches a known provider
//    type and its conventional environment carries a key
//
// Returns the resolved entry name alongside its configuration.
func ResolveProviderConfig(cfg *config.Config, name string) (string, config.ProviderConfig, error) {
	if name == "" {
		name = cfg.DefaultProvider
	}
	if name == "" && len(cfg.Providers) == 0 {
		return "", config.ProviderConfig{}, NewProviderError(
			"no provider configured: run 'flowwright setup' or set ANTHROPIC_API_KEY", nil)
	}

	if pc, ok := cfg.Providers[name]; ok {
		if pc.Type == "" {
			pc.Type = name
		}
		return name, pc, nil
	}

	// No entry under that name. If it names a known provider type, synthesize
	// an entry; the conventional environment variable supplies the key.
	if llm.HasFactory(name) {
		pc := config.ProviderConfig{Type: name}
		if pc.EffectiveAPIKey() == "" && name != "bedrock" {
			return "", config.ProviderConfig{}, NewProviderError(
				fmt.Sprintf("provider %q has no API key: set %s or add it with 'flowwright secrets set'",
					name, conventionalEnvName(name)), nil)
		}
		return name, pc, nil
	}

	known := strings.Join(llm.ListFactories(), ", ")
	return "", config.ProviderConfig{}, NewProviderError(
		fmt.Sprintf("unknown provider %q (known: %s)", name, known), nil)
}

// NewProvider constructs an llm.Provider from a resolved config entry.
func NewProvider(name string, pc config.ProviderConfig) (llm.Provider, error) {
	providerType := pc.Type
	if providerType == "" {
		providerType = name
	}

	var creds llm.Credentials
	switch providerType {
	case "bedrock":
		region := pc.Region
		if region == "" {
			region = "us-east-1"
		}
		creds = llm.AWSCredentials{Region: region}
	default:
		key := pc.EffectiveAPIKey()
		if key == "" {
			return nil, NewProviderError(
				fmt.Sprintf("provider %q has no API key: set %s or add it with 'flowwright secrets set'",
					name, conventionalEnvName(providerType)), nil)
		}
		creds = llm.APIKeyCredentials{APIKey: key, BaseURL: pc.BaseURL}
	}

	provider, err := llm.New(providerType, creds)
	if err != nil {
		return nil, NewProviderError(fmt.Sprintf("create provider %q", name), err)
	}
	return provider, nil
}

// EffectiveModel resolves the model to request: an explicit flag wins, then
// the provider entry, then the global llm.model setting. Empty means the
// provider's own default.
func EffectiveModel(flagValue string, pc config.ProviderConfig, cfg *config.Config) string {
	if flagValue != "" {
		return flagValue
	}
	if pc.Model != "" {
		return pc.Model
	}
	return cfg.LLM.Model
}

func conventionalEnvName(providerType string) string {
	switch providerType {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	default:
		return strings.ToUpper(providerType) + "_API_KEY"
	}
}
