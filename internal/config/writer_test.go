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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriteConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	cfg := &Config{
		DefaultProvider: "test",
		Providers: ProvidersMap{
			"test": ProviderConfig{
				Type: "anthropic",
			},
		},
	}

	if err := WriteConfig(cfg, configPath); err != nil {
		t.Fatalf("WriteConfig failed: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("Config file was not created")
	}

	// Verify file permissions (0600)
	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("Failed to stat config file: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected file permissions 0600, got %o", info.Mode().Perm())
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	content := string(data)
	if !strings.Contains(content, "# Flowwright Configuration") {
		t.Error("Config file missing header comment")
	}
	if !strings.Contains(content, "default_provider: test") {
		t.Error("Config file missing default_provider")
	}
	if !strings.Contains(content, "type: anthropic") {
		t.Error("Config file missing provider type")
	}
}

func TestWriteConfigMinimal(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	providers := ProvidersMap{
		"anthropic": ProviderConfig{
			Type:  "anthropic",
			Model: "claude-sonnet-4-5",
		},
	}

	if err := WriteConfigMinimal("anthropic", providers, configPath); err != nil {
		t.Fatalf("WriteConfigMinimal failed: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	content := string(data)
	if !strings.Contains(content, "version: 1") {
		t.Error("Minimal config missing version")
	}
	if !strings.Contains(content, "default_provider: anthropic") {
		t.Error("Minimal config missing default_provider")
	}
	if !strings.Contains(content, "model: claude-sonnet-4-5") {
		t.Error("Minimal config missing provider model")
	}

	// The minimal config should not carry full sections
	for _, unwanted := range []string{"log:", "llm:", "n8n:", "generation:", "history:", "tracing:"} {
		if strings.Contains(content, unwanted) {
			t.Errorf("Minimal config contains unwanted section %q", unwanted)
		}
	}
}

func TestWriteConfigBackup(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	cfg1 := &Config{
		DefaultProvider: "old",
		Providers: ProvidersMap{
			"old": ProviderConfig{Type: "anthropic"},
		},
	}

	if err := WriteConfig(cfg1, configPath); err != nil {
		t.Fatalf("First WriteConfig failed: %v", err)
	}

	// Ensure a different backup timestamp
	time.Sleep(10 * time.Millisecond)

	cfg2 := &Config{
		DefaultProvider: "new",
		Providers: ProvidersMap{
			"new": ProviderConfig{Type: "openai"},
		},
	}

	if err := WriteConfig(cfg2, configPath); err != nil {
		t.Fatalf("Second WriteConfig failed: %v", err)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("Failed to read directory: %v", err)
	}

	backupFound := false
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "config.yaml.bak.") {
			backupFound = true

			backupPath := filepath.Join(tmpDir, entry.Name())
			data, err := os.ReadFile(backupPath)
			if err != nil {
				t.Fatalf("Failed to read backup file: %v", err)
			}
			if !strings.Contains(string(data), "default_provider: old") {
				t.Error("Backup doesn't contain old config")
			}
		}
	}

	if !backupFound {
		t.Error("No backup file was created")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read current config: %v", err)
	}
	if !strings.Contains(string(data), "default_provider: new") {
		t.Error("Current config doesn't contain new data")
	}
}

func TestRotateBackups(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	cfg := &Config{
		DefaultProvider: "test",
		Providers:       ProvidersMap{"test": ProviderConfig{Type: "anthropic"}},
	}

	// First write creates no backup (no existing file); each subsequent
	// write adds one until rotation caps the count.
	for i := 0; i < 6; i++ {
		cfg.DefaultProvider = "test" + string(rune('0'+i))
		if err := WriteConfig(cfg, configPath); err != nil {
			t.Fatalf("WriteConfig %d failed: %v", i, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("Failed to read directory: %v", err)
	}

	backupCount := 0
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "config.yaml.bak.") {
			backupCount++
		}
	}

	if backupCount != 3 {
		t.Errorf("Expected 3 backup files, got %d", backupCount)
	}
}

func TestWriteAtomicFailureCleanup(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}

	tmpDir := t.TempDir()

	readOnlyDir := filepath.Join(tmpDir, "readonly")
	if err := os.MkdirAll(readOnlyDir, 0500); err != nil {
		t.Fatalf("Failed to create read-only dir: %v", err)
	}
	defer os.Chmod(readOnlyDir, 0700) // Restore permissions for cleanup

	configPath := filepath.Join(readOnlyDir, "config.yaml")

	err := writeAtomic(configPath, []byte("test"), 0600)
	if err == nil {
		t.Error("Expected writeAtomic to fail with read-only directory")
	}

	// Verify no temp files left behind
	entries, err := os.ReadDir(readOnlyDir)
	if err != nil && !os.IsPermission(err) {
		t.Fatalf("Failed to read directory: %v", err)
	}

	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp.") {
			t.Errorf("Found leftover temp file: %s", entry.Name())
		}
	}
}

func TestWriteConfigExpandsHomedir(t *testing.T) {
	tmpDir := t.TempDir()

	t.Setenv("HOME", tmpDir)

	cfg := &Config{
		DefaultProvider: "test",
		Providers:       ProvidersMap{"test": ProviderConfig{Type: "anthropic"}},
	}

	configPath := "~/config.yaml"
	if err := WriteConfig(cfg, configPath); err != nil {
		t.Fatalf("WriteConfig failed: %v", err)
	}

	expectedPath := filepath.Join(tmpDir, "config.yaml")
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Errorf("Config file not created at expected path: %s", expectedPath)
	}
}
