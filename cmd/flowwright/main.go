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

package main

import (
	"github.com/flowwright/flowwright/internal/cli"
	"github.com/flowwright/flowwright/internal/commands/build"
	"github.com/flowwright/flowwright/internal/commands/history"
	"github.com/flowwright/flowwright/internal/commands/mcp"
	"github.com/flowwright/flowwright/internal/commands/secrets"
	"github.com/flowwright/flowwright/internal/commands/setup"
	"github.com/flowwright/flowwright/internal/commands/validate"
	versioncmd "github.com/flowwright/flowwright/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// Set version information from build-time ldflags
	cli.SetVersion(version, commit, buildDate)

	// Create root command and add subcommands
	rootCmd := cli.NewRootCommand()

	// Core generation commands
	rootCmd.AddCommand(build.NewCommand())
	rootCmd.AddCommand(validate.NewCommand())

	// Session management
	rootCmd.AddCommand(history.NewCommand())

	// Configuration and security
	rootCmd.AddCommand(setup.NewCommand())
	rootCmd.AddCommand(secrets.NewCommand())

	// Assistant integration
	rootCmd.AddCommand(mcp.NewCommand())

	// Version command
	rootCmd.AddCommand(versioncmd.NewVersionCommand())

	// Custom help command with JSON support
	rootCmd.SetHelpCommand(cli.NewHelpCommand(rootCmd))

	// Execute root command
	if err := rootCmd.Execute(); err != nil {
		cli.HandleExitError(err)
	}
}
