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
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	fwerrors "github.com/flowwright/flowwright/pkg/errors"
)

// configHeader is prepended to every written config file.
const configHeader = `# Flowwright Configuration
# Managed by the setup wizard; safe to edit by hand.

`

// maxConfigBackups is the number of timestamped backups kept per config file.
const maxConfigBackups = 3

// WriteConfig writes a complete configuration to the given path. If path is
// empty, the default config path is used. An existing file is preserved as a
// timestamped backup before being replaced atomically.
func WriteConfig(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return &fwerrors.ConfigError{
				Key:    "config_file",
				Reason: "failed to determine config path",
				Cause:  err,
			}
		}
	}

	return writeConfigAtomic(cfg, path)
}

// WriteConfigMinimal writes a minimal configuration containing only the
// default provider and the providers map. Everything else is left to
// defaults so the file stays readable for hand editing.
func WriteConfigMinimal(defaultProvider string, providers ProvidersMap, path string) error {
	minimal := struct {
		Version         int          `yaml:"version"`
		DefaultProvider string       `yaml:"default_provider"`
		Providers       ProvidersMap `yaml:"providers"`
	}{
		Version:         1,
		DefaultProvider: defaultProvider,
		Providers:       providers,
	}

	return writeConfigAtomic(minimal, path)
}

// WriteConfigWithSecrets stores each plaintext provider API key in the named
// secret backend, replaces it with a $secret: reference, and writes a minimal
// config. It returns the keys that were stored.
func WriteConfigWithSecrets(ctx context.Context, defaultProvider string, providers ProvidersMap, path string, backendName string) ([]string, error) {
	resolver := createSecretResolver()

	var stored []string
	for name, provider := range providers {
		if provider.APIKey == "" || secretRefPattern.MatchString(provider.APIKey) {
			continue
		}

		key := fmt.Sprintf("providers/%s/api_key", name)
		if err := resolver.Set(ctx, key, provider.APIKey, backendName); err != nil {
			return stored, &fwerrors.ConfigError{
				Key:    fmt.Sprintf("providers.%s.api_key", name),
				Reason: fmt.Sprintf("failed to store secret in backend %q", backendName),
				Cause:  err,
			}
		}

		provider.APIKey = "$secret:" + key
		providers[name] = provider
		stored = append(stored, key)
	}

	if err := WriteConfigMinimal(defaultProvider, providers, path); err != nil {
		return stored, err
	}

	return stored, nil
}

// writeConfigAtomic marshals cfg to YAML, backs up any existing file, and
// replaces it atomically with 0600 permissions.
func writeConfigAtomic(cfg interface{}, path string) error {
	path, err := expandHome(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := backupExisting(path); err != nil {
		return fmt.Errorf("failed to back up existing config: %w", err)
	}

	payload := append([]byte(configHeader), data...)
	return writeAtomic(path, payload, 0600)
}

// writeAtomic writes data to path via a temp file in the same directory
// followed by a rename. The temp file is removed on failure.
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmpPath := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())

	if err := os.WriteFile(tmpPath, data, perm); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// backupExisting copies path to path.bak.<unixnano> if it exists, then
// rotates old backups so at most maxConfigBackups remain.
func backupExisting(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	backupPath := fmt.Sprintf("%s.bak.%d", path, time.Now().UnixNano())
	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return err
	}

	return rotateBackups(path)
}

// rotateBackups removes the oldest backups of path beyond maxConfigBackups.
func rotateBackups(path string) error {
	dir := filepath.Dir(path)
	prefix := filepath.Base(path) + ".bak."

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var backups []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			backups = append(backups, entry.Name())
		}
	}

	if len(backups) <= maxConfigBackups {
		return nil
	}

	// Backup names embed a unix-nano timestamp, so lexical order is
	// chronological.
	sort.Strings(backups)
	for _, name := range backups[:len(backups)-maxConfigBackups] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return err
		}
	}

	return nil
}

// expandHome expands a leading ~/ to the current user's home directory.
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, path[2:]), nil
}
