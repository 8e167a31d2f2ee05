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

// Package secrets implements the secrets command for managing provider
// and n8n credentials across the tiered secret backends.
package secrets

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/flowwright/flowwright/internal/cli/prompt"
	"github.com/flowwright/flowwright/internal/commands/shared"
	"github.com/flowwright/flowwright/internal/config"
	"github.com/flowwright/flowwright/internal/secrets"
)

var (
	secretBackend string
	secretUnmask  bool
	secretForce   bool
	secretDryRun  bool
	secretYes     bool
)

// NewCommand creates the secrets command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage provider and n8n credentials",
		Long: `Manage secrets securely using multiple backends.

Secrets are stored in a tiered backend system with automatic fallback:
  1. Environment variables (highest priority, read-only)
  2. System keychain (macOS Keychain, Linux Secret Service, Windows Credential Manager)
  3. Encrypted file (fallback for headless servers)

Keys are hierarchical:
  providers/anthropic/api_key
  providers/openai/api_key
  n8n/api_key

Config values reference stored secrets as $secret:<key>.`,
		Example: `  flowwright secrets set providers/anthropic/api_key
  flowwright secrets get providers/anthropic/api_key
  flowwright secrets list
  flowwright secrets delete providers/anthropic/api_key`,
	}

	cmd.AddCommand(newSetCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newDeleteCommand())
	cmd.AddCommand(newMigrateCommand())

	return cmd
}

func newSetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key>",
		Short: "Store a secret securely",
		Long: `Store a secret in the specified backend.

The secret value can be provided via:
  - Interactive prompt (hidden input, default)
  - Standard input: echo "value" | flowwright secrets set <key>

Backend Selection:
  --backend <name>  Target specific backend (keychain, file)
  Default: First available writable backend (usually keychain)`,
		Example: `  flowwright secrets set providers/anthropic/api_key
  flowwright secrets set n8n/api_key --backend file
  echo "sk-ant-..." | flowwright secrets set providers/anthropic/api_key`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runSet,
	}

	cmd.Flags().StringVar(&secretBackend, "backend", "", "Target backend (keychain, file)")

	return cmd
}

func newGetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Retrieve a secret value",
		Long: `Retrieve a secret value from any available backend.

By default the value is masked. Use --unmask to print the full value,
for example when piping it into another tool.`,
		Example: `  flowwright secrets get providers/anthropic/api_key
  flowwright secrets get n8n/api_key --unmask`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runGet,
	}

	cmd.Flags().BoolVar(&secretUnmask, "unmask", false, "Show full value (not masked)")

	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all secret keys",
		Long: `List all secret keys across all backends.

Shows the key, the backend providing it, and whether that backend is
read-only. Values are never shown.`,
		Example: `  flowwright secrets list
  flowwright secrets list --json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runList,
	}
}

func newDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a secret",
		Long: `Remove a secret from the specified backend.

Requires confirmation unless --force is used.`,
		Example: `  flowwright secrets delete providers/openai/api_key
  flowwright secrets delete n8n/api_key --backend keychain
  flowwright secrets delete n8n/api_key --force`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runDelete,
	}

	cmd.Flags().StringVar(&secretBackend, "backend", "", "Target backend (keychain, file)")
	cmd.Flags().BoolVar(&secretForce, "force", false, "Skip confirmation prompt")

	return cmd
}

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Move plaintext API keys out of the config file",
		Long: `Migrate plaintext API keys from the config file to secure storage.

This command:
  1. Scans the config file for plaintext API keys
  2. Stores them in the default writable backend
  3. Rewrites the config to use $secret: references
  4. Creates a backup before modification`,
		Example: `  flowwright secrets migrate             # Interactive migration
  flowwright secrets migrate --dry-run   # Preview without applying
  flowwright secrets migrate --yes       # Skip the confirmation prompt
  flowwright secrets migrate --backend file`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runMigrate,
	}

	cmd.Flags().BoolVar(&secretDryRun, "dry-run", false, "Preview changes without applying")
	cmd.Flags().BoolVar(&secretYes, "yes", false, "Skip the confirmation prompt")
	cmd.Flags().StringVar(&secretBackend, "backend", "", "Target backend (keychain, file)")

	return cmd
}

type setResponse struct {
	shared.JSONResponse
	Key     string `json:"key"`
	Backend string `json:"backend"`
}

func runSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	if err := validateKey(key); err != nil {
		return shared.NewMissingInputError(err.Error(), nil)
	}

	value, err := readSecretValue(cmd.ErrOrStderr())
	if err != nil {
		return shared.NewMissingInputError("failed to read secret value", err)
	}
	if value == "" {
		return shared.NewMissingInputError("secret value cannot be empty", nil)
	}

	resolver := newResolver()
	if err := resolver.Set(cmd.Context(), key, value, secretBackend); err != nil {
		if errors.Is(err, secrets.ErrBackendUnavailable) {
			return shared.NewGenerationError(
				fmt.Sprintf("backend unavailable: set the environment variable %s instead, or pick another backend with --backend", envHint(key)), err)
		}
		return shared.NewGenerationError("failed to store secret", err)
	}

	backendUsed := secretBackend
	if backendUsed == "" {
		for _, b := range resolver.Backends() {
			if ro, ok := b.(secrets.ReadOnlyBackend); !ok || !ro.ReadOnly() {
				backendUsed = b.Name()
				break
			}
		}
	}

	if shared.GetJSON() {
		return shared.EmitJSON(setResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "secrets set", Success: true},
			Key:          key,
			Backend:      backendUsed,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Stored %s in the %s backend\n", key, backendUsed)
	return nil
}

type getResponse struct {
	shared.JSONResponse
	Key    string `json:"key"`
	Value  string `json:"value"`
	Masked bool   `json:"masked"`
}

func runGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	value, err := newResolver().Get(cmd.Context(), key)
	if err != nil {
		if errors.Is(err, secrets.ErrSecretNotFound) {
			return shared.NewMissingInputError(
				fmt.Sprintf("secret %q not found: store it with 'flowwright secrets set %s'", key, key), err)
		}
		return shared.NewGenerationError("failed to get secret", err)
	}

	display := value
	if !secretUnmask {
		display = maskValue(value)
	}

	if shared.GetJSON() {
		return shared.EmitJSON(getResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "secrets get", Success: true},
			Key:          key,
			Value:        display,
			Masked:       !secretUnmask,
		})
	}

	if secretUnmask {
		fmt.Fprintln(cmd.OutOrStdout(), value)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s (use --unmask to show full value)\n", display)
	}

	return nil
}

type listResponse struct {
	shared.JSONResponse
	Secrets []secretEntry `json:"secrets"`
}

type secretEntry struct {
	Key      string `json:"key"`
	Backend  string `json:"backend"`
	ReadOnly bool   `json:"read_only"`
}

func runList(cmd *cobra.Command, args []string) error {
	metadata, err := newResolver().List(cmd.Context())
	if err != nil {
		return shared.NewGenerationError("failed to list secrets", err)
	}

	sort.Slice(metadata, func(i, j int) bool { return metadata[i].Key < metadata[j].Key })

	if shared.GetJSON() {
		resp := listResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "secrets list", Success: true},
			Secrets:      make([]secretEntry, 0, len(metadata)),
		}
		for _, meta := range metadata {
			resp.Secrets = append(resp.Secrets, secretEntry{Key: meta.Key, Backend: meta.Backend, ReadOnly: meta.ReadOnly})
		}
		return shared.EmitJSON(resp)
	}

	out := cmd.OutOrStdout()
	if len(metadata) == 0 {
		fmt.Fprintln(out, "No secrets found")
		return nil
	}

	fmt.Fprintf(out, "%-45s %-10s %s\n", "KEY", "BACKEND", "READ-ONLY")
	for _, meta := range metadata {
		readOnly := "no"
		if meta.ReadOnly {
			readOnly = "yes"
		}
		fmt.Fprintf(out, "%-45s %-10s %s\n", meta.Key, meta.Backend, readOnly)
	}
	fmt.Fprintf(out, "\nTotal: %d secret(s)\n", len(metadata))

	return nil
}

type deleteResponse struct {
	shared.JSONResponse
	Key string `json:"key"`
}

func runDelete(cmd *cobra.Command, args []string) error {
	key := args[0]

	if !secretForce {
		if shared.IsNonInteractive() || shared.GetJSON() {
			return shared.NewMissingInputNonInteractiveError(
				fmt.Sprintf("deleting %s needs confirmation: re-run with --force", key), nil)
		}
		ok, err := prompt.NewSurveyPrompter(true).Confirm(cmd.Context(), fmt.Sprintf("Delete secret %q?", key), false)
		if err != nil {
			return shared.NewMissingInputError("confirmation failed", err)
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Deletion cancelled")
			return nil
		}
	}

	if err := newResolver().Delete(cmd.Context(), key, secretBackend); err != nil {
		if errors.Is(err, secrets.ErrSecretNotFound) {
			return shared.NewMissingInputError(fmt.Sprintf("secret %q not found", key), err)
		}
		if errors.Is(err, secrets.ErrReadOnlyBackend) {
			return shared.NewMissingInputError("cannot delete from a read-only backend: unset the environment variable instead", err)
		}
		return shared.NewGenerationError("failed to delete secret", err)
	}

	if shared.GetJSON() {
		return shared.EmitJSON(deleteResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "secrets delete", Success: true},
			Key:          key,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", key)
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	configPath := shared.GetConfigPath()
	if configPath == "" {
		var err error
		configPath, err = config.ConfigPath()
		if err != nil {
			return shared.NewGenerationError("failed to determine config path", err)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return shared.NewMissingInputError(
				fmt.Sprintf("config file not found at %s: run 'flowwright setup' first", configPath), nil)
		}
		return shared.NewGenerationError("failed to read config", err)
	}

	var rawConfig map[string]interface{}
	if err := yaml.Unmarshal(data, &rawConfig); err != nil {
		return shared.NewGenerationError("failed to parse config", err)
	}

	targets := scanPlaintextKeys(rawConfig)
	out := cmd.OutOrStdout()

	if len(targets) == 0 {
		fmt.Fprintln(out, "No plaintext API keys found in config.")
		return nil
	}

	fmt.Fprintf(out, "Found %d plaintext API key(s):\n\n", len(targets))
	for i, m := range targets {
		fmt.Fprintf(out, "%d. %s\n", i+1, m.Name)
		fmt.Fprintf(out, "   Current: %s\n", maskValue(m.Value))
		fmt.Fprintf(out, "   New ref: $secret:%s\n\n", m.Key)
	}

	if secretDryRun {
		fmt.Fprintln(out, "--dry-run: no changes made")
		return nil
	}

	if !secretYes {
		if shared.IsNonInteractive() || shared.GetJSON() {
			return shared.NewMissingInputNonInteractiveError("migration needs confirmation: re-run with --yes", nil)
		}
		ok, err := prompt.NewSurveyPrompter(true).Confirm(cmd.Context(), "Proceed with migration?", false)
		if err != nil {
			return shared.NewMissingInputError("confirmation failed", err)
		}
		if !ok {
			fmt.Fprintln(out, "Migration cancelled")
			return nil
		}
	}

	backupPath := configPath + ".backup." + time.Now().Format("20060102-150405")
	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return shared.NewGenerationError("failed to create config backup", err)
	}
	fmt.Fprintf(out, "Created backup: %s\n", backupPath)

	resolver := newResolver()
	ctx := cmd.Context()
	for _, m := range targets {
		if err := resolver.Set(ctx, m.Key, m.Value, secretBackend); err != nil {
			return shared.NewGenerationError(fmt.Sprintf("failed to store secret %q", m.Key), err)
		}
		fmt.Fprintf(out, "Stored secret: %s\n", m.Key)

		if err := applySecretRef(rawConfig, m, "$secret:"+m.Key); err != nil {
			return shared.NewGenerationError(fmt.Sprintf("failed to update config for %s", m.Name), err)
		}
	}

	updated, err := yaml.Marshal(rawConfig)
	if err != nil {
		return shared.NewGenerationError("failed to marshal updated config", err)
	}
	if err := os.WriteFile(configPath, updated, 0600); err != nil {
		return shared.NewGenerationError("failed to write updated config", err)
	}

	fmt.Fprintf(out, "\nMigrated %d API key(s) to secure storage\n", len(targets))
	fmt.Fprintf(out, "Config updated: %s\n", configPath)

	return nil
}

// newResolver creates a secrets resolver over the standard backend chain.
func newResolver() *secrets.Resolver {
	backends := []secrets.SecretBackend{
		secrets.NewEnvBackend(),
		secrets.NewKeychainBackend(),
	}
	if fileBackend, err := secrets.NewFileBackend("", ""); err == nil {
		backends = append(backends, fileBackend)
	}
	return secrets.NewResolver(backends...)
}

// readSecretValue reads a secret from piped stdin, or prompts with hidden
// input when stdin is a terminal. The prompt goes to stderr so stdout stays
// clean for scripting.
func readSecretValue(errOut io.Writer) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}

	fmt.Fprint(errOut, "Enter secret value (hidden): ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(errOut)
	if err != nil {
		return "", err
	}

	return string(raw), nil
}

// maskValue masks a secret for display, keeping the first and last four
// characters of longer values.
func maskValue(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "..." + value[len(value)-4:]
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("secret key cannot be empty")
	}
	if strings.ContainsAny(key, " \t") {
		return fmt.Errorf("secret key cannot contain whitespace")
	}
	if strings.Contains(key, "\\") {
		return fmt.Errorf("secret key must use forward slashes")
	}
	return nil
}

// envHint converts a secret key to the FLOWWRIGHT_SECRET_* variable that
// overrides it.
func envHint(key string) string {
	return "FLOWWRIGHT_SECRET_" + strings.ToUpper(strings.ReplaceAll(key, "/", "_"))
}

// migrationTarget is a plaintext key found in the config file.
type migrationTarget struct {
	Name  string // config location, e.g. a provider name or "n8n"
	Key   string // secret key, e.g. providers/anthropic/api_key
	Value string
}

// scanPlaintextKeys finds plaintext API keys in the providers and n8n
// sections. Values already using $secret: references are skipped.
func scanPlaintextKeys(rawConfig map[string]interface{}) []migrationTarget {
	var targets []migrationTarget

	if providers, ok := rawConfig["providers"].(map[string]interface{}); ok {
		names := make([]string, 0, len(providers))
		for name := range providers {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			provider, ok := providers[name].(map[string]interface{})
			if !ok {
				continue
			}
			apiKey, ok := provider["api_key"].(string)
			if !ok || !isPlaintextAPIKey(apiKey) {
				continue
			}
			targets = append(targets, migrationTarget{
				Name:  fmt.Sprintf("provider %s", name),
				Key:   fmt.Sprintf("providers/%s/api_key", name),
				Value: apiKey,
			})
		}
	}

	if n8nSection, ok := rawConfig["n8n"].(map[string]interface{}); ok {
		if apiKey, ok := n8nSection["api_key"].(string); ok && apiKey != "" && !strings.HasPrefix(apiKey, "$secret:") {
			targets = append(targets, migrationTarget{
				Name:  "n8n",
				Key:   "n8n/api_key",
				Value: apiKey,
			})
		}
	}

	return targets
}

// isPlaintextAPIKey reports whether a value looks like a raw provider key
// rather than a $secret: reference.
func isPlaintextAPIKey(value string) bool {
	if strings.HasPrefix(value, "$secret:") {
		return false
	}
	return strings.HasPrefix(value, "sk-ant-") ||
		strings.HasPrefix(value, "sk-") ||
		strings.HasPrefix(value, "gsk-") ||
		strings.HasPrefix(value, "xai-")
}

// applySecretRef rewrites the config entry named by the target to a
// $secret: reference.
func applySecretRef(rawConfig map[string]interface{}, m migrationTarget, secretRef string) error {
	if m.Name == "n8n" {
		section, ok := rawConfig["n8n"].(map[string]interface{})
		if !ok {
			return fmt.Errorf("n8n section not found")
		}
		section["api_key"] = secretRef
		return nil
	}

	providers, ok := rawConfig["providers"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("providers section not found")
	}

	name := strings.TrimPrefix(m.Name, "provider ")
	provider, ok := providers[name].(map[string]interface{})
	if !ok {
		return fmt.Errorf("provider %q not found", name)
	}

	provider["api_key"] = secretRef
	return nil
}
