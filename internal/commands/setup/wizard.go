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

package setup

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"runtime"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flowwright/flowwright/internal/commands/shared"
	"github.com/flowwright/flowwright/internal/config"
	"github.com/flowwright/flowwright/internal/secrets"
)

// wizardState collects answers across the wizard's forms.
type wizardState struct {
	configPath string
	existing   *config.Config

	providerType string
	providerName string
	apiKey       string // direct key value, stored before writing
	apiKeyEnv    string // environment variable reference
	model        string
	region       string // bedrock

	n8nBaseURL string
	n8nAPIKey  string

	historyOn bool
}

func runSetup(cmd *cobra.Command, args []string) error {
	if shared.IsNonInteractive() {
		return shared.NewMissingInputNonInteractiveError(
			"setup needs an interactive terminal: write the config file by hand or use environment variables", nil)
	}

	configPath := shared.GetConfigPath()
	if configPath == "" {
		var err error
		configPath, err = config.ConfigPath()
		if err != nil {
			return shared.NewGenerationError("failed to determine config path", err)
		}
	}

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	if ok, msg := keychainAvailable(); !ok {
		fmt.Fprintf(errOut, "%s\n", shared.RenderWarn(msg))
		fmt.Fprintf(errOut, "%s\n\n", shared.Muted.Render("API keys will fall back to the encrypted file or an environment variable."))
	}

	state := &wizardState{
		configPath: configPath,
		existing:   loadExisting(configPath),
		historyOn:  true,
	}

	if err := askProvider(state); err != nil {
		return abortOr(err)
	}
	if err := askN8N(state); err != nil {
		return abortOr(err)
	}
	if err := askHistory(state); err != nil {
		return abortOr(err)
	}

	save, err := confirmSave(state)
	if err != nil {
		return abortOr(err)
	}
	if !save {
		fmt.Fprintln(out, "Setup cancelled, nothing written")
		return nil
	}

	warnings, err := saveState(cmd.Context(), state)
	for _, w := range warnings {
		fmt.Fprintf(errOut, "%s\n", shared.RenderWarn(w))
	}
	if err != nil {
		return shared.NewGenerationError("failed to write config", err)
	}

	fmt.Fprintf(out, "\n%s\n\n", shared.RenderOK(fmt.Sprintf("Configuration saved to %s", configPath)))
	fmt.Fprintln(out, shared.Header.Render("Next steps:"))
	fmt.Fprintf(out, "  %s  %s\n",
		shared.StatusInfo.Render(`flowwright build "when a webhook fires, post the payload to Slack"`),
		shared.Muted.Render("# generate your first workflow"))
	if state.n8nBaseURL == "" && (state.existing == nil || state.existing.N8N.BaseURL == "") {
		fmt.Fprintf(out, "  %s  %s\n",
			shared.StatusInfo.Render("flowwright setup"),
			shared.Muted.Render("# re-run later to connect an n8n instance"))
	}
	fmt.Fprintln(out)

	return nil
}

func askProvider(state *wizardState) error {
	var providerType string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Provider").
				Description("Select the LLM provider that generates workflows").
				Options(
					huh.NewOption("Anthropic API", "anthropic"),
					huh.NewOption("OpenAI API", "openai"),
					huh.NewOption("AWS Bedrock", "bedrock"),
				).
				Value(&providerType),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	state.providerType = providerType
	state.providerName = providerType

	if providerType == "bedrock" {
		if err := askRegion(state); err != nil {
			return err
		}
	} else {
		if err := askAPIKey(state); err != nil {
			return err
		}
	}

	return askModel(state)
}

func askAPIKey(state *wizardState) error {
	var source string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("API Key Source").
				Description("How would you like to provide the API key?").
				Options(
					huh.NewOption("Enter API key directly", "direct"),
					huh.NewOption("Read from an environment variable", "env"),
				).
				Value(&source),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	if source == "env" {
		conventional := conventionalEnvName(state.providerType)
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Environment Variable").
					Description("Name of the variable holding the API key").
					Placeholder(conventional).
					Validate(validateEnvVarName).
					Value(&state.apiKeyEnv),
			),
		)
		if err := form.Run(); err != nil {
			return err
		}
		if state.apiKeyEnv == "" {
			state.apiKeyEnv = conventional
		}
		return nil
	}

	form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API Key").
				Description("Stored in the system keychain or encrypted file, never in the config").
				EchoMode(huh.EchoModePassword).
				Validate(apiKeyValidator(state.providerType)).
				Value(&state.apiKey),
		),
	)
	return form.Run()
}

func askRegion(state *wizardState) error {
	region := ""
	if state.existing != nil {
		if pc, ok := state.existing.Providers[state.providerName]; ok {
			region = pc.Region
		}
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("AWS Region").
				Description("Credentials come from the standard AWS chain (env, profile, IMDS)").
				Placeholder("us-east-1").
				Value(&region),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	if region == "" {
		region = "us-east-1"
	}
	state.region = region
	return nil
}

func askModel(state *wizardState) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Model").
				Description("Leave empty for the provider default").
				Placeholder(defaultModelFor(state.providerType)).
				Value(&state.model),
		),
	)
	return form.Run()
}

func askN8N(state *wizardState) error {
	configure := state.existing != nil && state.existing.N8N.BaseURL != ""

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Connect an n8n instance?").
				Description("Enables deployment and remote validation. You can add this later.").
				Value(&configure),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}
	if !configure {
		return nil
	}

	baseURL := ""
	if state.existing != nil {
		baseURL = state.existing.N8N.BaseURL
	}

	form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("n8n Base URL").
				Placeholder("https://n8n.example.com").
				Validate(validateN8NURL).
				Value(&baseURL),
			huh.NewInput().
				Title("n8n API Key").
				Description("Created under Settings > API in your n8n instance. Leave empty to keep the current key.").
				EchoMode(huh.EchoModePassword).
				Value(&state.n8nAPIKey),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	state.n8nBaseURL = baseURL
	return nil
}

func askHistory(state *wizardState) error {
	on := true
	if state.existing != nil {
		on = state.existing.History.Enabled
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Record generation history?").
				Description("Sessions are stored locally and can be listed, resumed, and pruned").
				Value(&on),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	state.historyOn = on
	return nil
}

func confirmSave(state *wizardState) (bool, error) {
	save := true

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Save configuration to %s?", state.configPath)).
				Description(summarize(state)).
				Value(&save),
		),
	)
	if err := form.Run(); err != nil {
		return false, err
	}

	return save, nil
}

// summarize renders the review block shown before saving.
func summarize(state *wizardState) string {
	lines := []string{"Provider: " + state.providerName}
	if state.model != "" {
		lines = append(lines, "Model:    "+state.model)
	}
	if state.region != "" {
		lines = append(lines, "Region:   "+state.region)
	}
	if state.apiKeyEnv != "" {
		lines = append(lines, "API key:  $"+state.apiKeyEnv)
	}
	if state.apiKey != "" {
		lines = append(lines, "API key:  stored securely")
	}
	if state.n8nBaseURL != "" {
		lines = append(lines, "n8n:      "+state.n8nBaseURL)
	}
	history := "on"
	if !state.historyOn {
		history = "off"
	}
	lines = append(lines, "History:  "+history)
	return strings.Join(lines, "\n")
}

// saveState stores collected keys and writes the config. A first-run setup
// that skipped n8n and kept history on gets a minimal config file that
// stays easy to edit by hand; everything else writes the full configuration.
func saveState(ctx context.Context, state *wizardState) ([]string, error) {
	if state.minimal() {
		return saveMinimal(ctx, state)
	}
	return saveFull(ctx, state)
}

func (s *wizardState) minimal() bool {
	return s.existing == nil && s.n8nBaseURL == "" && s.historyOn
}

func (s *wizardState) provider() config.ProviderConfig {
	return config.ProviderConfig{
		Type:      s.providerType,
		APIKey:    s.apiKey,
		APIKeyEnv: s.apiKeyEnv,
		Model:     s.model,
		Region:    s.region,
	}
}

func saveMinimal(ctx context.Context, state *wizardState) ([]string, error) {
	providers := config.ProvidersMap{state.providerName: state.provider()}

	stored, err := config.WriteConfigWithSecrets(ctx, state.providerName, providers, state.configPath, "")
	if err == nil {
		return nil, nil
	}
	if len(stored) > 0 || state.apiKey == "" {
		// The key was stored (or there was none); the write itself failed.
		return nil, err
	}

	// No writable backend: reference an environment variable instead.
	env := conventionalEnvName(state.providerType)
	warning := fmt.Sprintf("could not store the API key securely (%v): export %s before running flowwright", err, env)

	pc := state.provider()
	pc.APIKey = ""
	pc.APIKeyEnv = env
	providers = config.ProvidersMap{state.providerName: pc}

	if err := config.WriteConfigMinimal(state.providerName, providers, state.configPath); err != nil {
		return nil, err
	}
	return []string{warning}, nil
}

func saveFull(ctx context.Context, state *wizardState) ([]string, error) {
	var warnings []string

	cfg := state.existing
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.Version = 1

	pc := state.provider()
	if pc.APIKey != "" {
		key := fmt.Sprintf("providers/%s/api_key", state.providerName)
		if err := storeSecret(ctx, key, pc.APIKey); err != nil {
			env := conventionalEnvName(state.providerType)
			warnings = append(warnings, fmt.Sprintf("could not store the API key securely (%v): export %s before running flowwright", err, env))
			pc.APIKey = ""
			pc.APIKeyEnv = env
		} else {
			pc.APIKey = "$secret:" + key
		}
	}

	if cfg.Providers == nil {
		cfg.Providers = make(config.ProvidersMap)
	}
	cfg.Providers[state.providerName] = pc
	cfg.DefaultProvider = state.providerName

	if state.n8nBaseURL != "" {
		cfg.N8N.BaseURL = state.n8nBaseURL
		if state.n8nAPIKey != "" {
			if err := storeSecret(ctx, "n8n/api_key", state.n8nAPIKey); err != nil {
				warnings = append(warnings, fmt.Sprintf("could not store the n8n API key securely (%v): export N8N_API_KEY instead", err))
			} else {
				cfg.N8N.APIKey = "$secret:n8n/api_key"
			}
		}
	}

	cfg.History.Enabled = state.historyOn

	if err := config.WriteConfig(cfg, state.configPath); err != nil {
		return warnings, err
	}
	return warnings, nil
}

// storeSecret stores a value in the first writable secret backend.
func storeSecret(ctx context.Context, key, value string) error {
	backends := []secrets.SecretBackend{
		secrets.NewEnvBackend(),
		secrets.NewKeychainBackend(),
	}
	if fileBackend, err := secrets.NewFileBackend("", ""); err == nil {
		backends = append(backends, fileBackend)
	}
	return secrets.NewResolver(backends...).Set(ctx, key, value, "")
}

// loadExisting reads the config file directly, without environment
// overrides, so re-running setup edits what is actually on disk.
func loadExisting(path string) *config.Config {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var cfg config.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil
	}
	return &cfg
}

// abortOr maps a ctrl-c in the wizard to the conventional SIGINT exit code.
func abortOr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, huh.ErrUserAborted) {
		return &shared.ExitError{Code: 130}
	}
	return shared.NewGenerationError("setup failed", err)
}

func keychainAvailable() (bool, string) {
	if secrets.NewKeychainBackend().Available() {
		return true, ""
	}
	switch runtime.GOOS {
	case "darwin":
		return false, "System keychain unavailable. Try unlocking Keychain in Keychain Access.app"
	case "linux":
		return false, "System keychain unavailable. Ensure GNOME Keyring or KWallet is running"
	case "windows":
		return false, "System keychain unavailable. Check the Windows Credential Manager service"
	default:
		return false, "System keychain unavailable on this platform"
	}
}

func conventionalEnvName(providerType string) string {
	switch providerType {
	case "openai":
		return "OPENAI_API_KEY"
	default:
		return "ANTHROPIC_API_KEY"
	}
}

func defaultModelFor(providerType string) string {
	switch providerType {
	case "openai":
		return "gpt-4o"
	case "bedrock":
		return "anthropic.claude-sonnet-4-20250514-v1:0"
	default:
		return "claude-sonnet-4-20250514"
	}
}

var envVarNamePattern = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

// validateEnvVarName accepts empty input; the placeholder default applies.
func validateEnvVarName(s string) error {
	if s == "" {
		return nil
	}
	if !envVarNamePattern.MatchString(s) {
		return fmt.Errorf("use uppercase letters, digits, and underscores")
	}
	return nil
}

// apiKeyValidator returns a format check for the provider's keys. Error
// messages never include the key itself.
func apiKeyValidator(providerType string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("API key is required")
		}
		switch providerType {
		case "anthropic":
			if !strings.HasPrefix(s, "sk-ant-") {
				return fmt.Errorf("expected a key starting with sk-ant-")
			}
		case "openai":
			if !strings.HasPrefix(s, "sk-") {
				return fmt.Errorf("expected a key starting with sk-")
			}
		}
		return nil
	}
}

func validateN8NURL(s string) error {
	if s == "" {
		return fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("malformed URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must include a host")
	}
	return nil
}
