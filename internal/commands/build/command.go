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

// Package build implements the build command: it turns a plain-language
// description into an n8n workflow by running the generation loop against
// the configured model provider.
package build

import (
	"github.com/spf13/cobra"
)

// buildOptions holds the command's flag values.
type buildOptions struct {
	name       string
	provider   string
	model      string
	maxTurns   int
	retries    int
	file       string
	output     string
	copyOut    bool
	query      string
	continueID string
	noSave     bool
	noInput    bool
}

// NewCommand creates the build command.
func NewCommand() *cobra.Command {
	opts := &buildOptions{}

	cmd := &cobra.Command{
		Use:   "build [description]",
		Short: "Generate an n8n workflow from a description",
		Long: `Build generates an n8n workflow from a plain-language description.

The description is taken from the first argument, from --file, or from
stdin when piped. With none of those, an interactive prompt opens (unless
running non-interactively, in which case the command fails with a
structured error).

The model builds the workflow through a fixed set of graph tools and the
result is validated before it is emitted. Validation failures are fed back
to the model for repair within the configured retry budget. If the model
asks a clarifying question, build prompts you for the answer and resumes;
in non-interactive mode the question is reported and the command exits
with the missing-input code instead.

The finished workflow JSON goes to stdout (or --output); status and
commentary go to stderr, so the output can be piped directly.

Provider resolution order:
  1. --provider flag
  2. default_provider from config
  3. A provider type with its conventional API key variable set
     (e.g. ANTHROPIC_API_KEY)`,
		Example: `  # Generate and save
  flowwright build "when a webhook fires, post the payload to Slack" -o flow.json

  # Pipe a description in, pipe the workflow out
  cat description.txt | flowwright build | jq .nodes

  # Resume a recorded session with new instructions
  flowwright build --continue 1a2b3c4d "rename the Slack node to Notify"

  # Machine-readable result
  flowwright build "fetch RSS hourly and email new items" --json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "Name for the generated workflow")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "Override the configured provider")
	cmd.Flags().StringVar(&opts.model, "model", "", "Override the provider's model")
	cmd.Flags().IntVar(&opts.maxTurns, "max-turns", 0, "Override the turn budget for this generation")
	cmd.Flags().IntVar(&opts.retries, "retries", -1, "Override the validation-repair budget")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Read the description from a file (use '-' for stdin)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write the workflow JSON to a file (default stdout)")
	cmd.Flags().BoolVar(&opts.copyOut, "copy", false, "Copy the workflow JSON to the clipboard")
	cmd.Flags().StringVar(&opts.query, "query", "", "Filter the workflow JSON through a jq expression")
	cmd.Flags().StringVar(&opts.continueID, "continue", "", "Resume a recorded session by ID (prefix accepted)")
	cmd.Flags().BoolVar(&opts.noSave, "no-save", false, "Don't record this generation in history")
	cmd.Flags().BoolVar(&opts.noInput, "no-input", false, "Disable interactive prompts")

	return cmd
}
