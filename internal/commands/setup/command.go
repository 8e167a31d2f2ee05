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

// Package setup implements the interactive configuration wizard.
package setup

import (
	"github.com/spf13/cobra"
)

// NewCommand creates the setup command.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive wizard to configure flowwright",
		Long: `Launch the interactive setup wizard to configure:
  - An LLM provider (Anthropic, OpenAI, or AWS Bedrock)
  - The n8n instance used for deployment and remote validation
  - Generation history

API keys are stored in the system keychain when available, falling back
to an encrypted file or an environment variable reference. The config
file itself never contains plaintext keys.

Re-running setup updates the existing configuration in place.`,
		Example:       `  flowwright setup`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runSetup,
	}
}
