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

/*
Package secrets provides secure credential storage and retrieval.

This package implements a multi-backend secret management system with support
for environment variables, OS keychains, and encrypted file storage. Secrets
are resolved through a priority-ordered chain of backends.

# Backends

The package provides several secret backends:

	env      - Environment variables (FLOWWRIGHT_SECRET_*, provider aliases)
	keychain - OS keychain (macOS Keychain, Linux Secret Service)
	file     - Encrypted file storage (AES-256-GCM)

Each backend implements the SecretBackend interface:

	type SecretBackend interface {
	    Name() string
	    Priority() int
	    Available() bool
	    Get(ctx context.Context, key string) (string, error)
	    Set(ctx context.Context, key, value string) error
	    Delete(ctx context.Context, key string) error
	    List(ctx context.Context) ([]string, error)
	}

# Usage

Create a resolver with multiple backends:

	fileBackend, _ := secrets.NewFileBackend("", "")
	resolver := secrets.NewResolver(
	    secrets.NewEnvBackend(),
	    secrets.NewKeychainBackend(),
	    fileBackend,
	)

Retrieve a secret:

	apiKey, err := resolver.Get(ctx, "providers/anthropic/api_key")

Store a secret:

	err := resolver.Set(ctx, "providers/anthropic/api_key", "sk-ant-...", "")

# Priority Order

Backends are queried in priority order (highest first):

 1. Environment (priority 100) - CI/container overrides always win
 2. Keychain (priority 50) - Encrypted at rest, preferred for workstations
 3. File (priority 25) - Encrypted file fallback

# Configuration Integration

Secrets can be referenced in configuration files:

	providers:
	  anthropic:
	    api_key: $secret:providers/anthropic/api_key

The config loader resolves these references at load time.

# Environment Variables

The env backend looks for variables prefixed with FLOWWRIGHT_SECRET_,
plus well-known provider aliases:

	export FLOWWRIGHT_SECRET_PROVIDERS_ANTHROPIC_API_KEY=sk-ant-...
	export ANTHROPIC_API_KEY=sk-ant-...

# Error Handling

Common errors:

  - ErrSecretNotFound: Secret doesn't exist in any backend
  - ErrBackendUnavailable: No backends are available
*/
package secrets
