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

package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
)

func newTestRoot() *cobra.Command {
	root := NewRootCommand()
	root.AddCommand(&cobra.Command{
		Use:   "build [description]",
		Short: "Generate an n8n workflow",
		RunE:  func(cmd *cobra.Command, args []string) error { return nil },
	})
	root.AddCommand(&cobra.Command{
		Use:    "hidden-cmd",
		Short:  "should not appear",
		Hidden: true,
		RunE:   func(cmd *cobra.Command, args []string) error { return nil },
	})
	return root
}

func TestHelpCommand_JSONAllCommands(t *testing.T) {
	root := newTestRoot()
	// Executed standalone: Execute on a child delegates to its root, which
	// would re-parse the root's own arguments.
	help := NewHelpCommand(root)

	var buf bytes.Buffer
	help.SetOut(&buf)
	help.SetArgs([]string{"--json"})

	if err := help.Execute(); err != nil {
		t.Fatalf("help --json error = %v", err)
	}

	var resp HelpResponse
	if err := json.Unmarshal(buf.Bytes(), &resp); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}

	if !resp.Success {
		t.Error("expected success=true")
	}
	if resp.Command != nil {
		t.Error("expected no single command in all-commands output")
	}

	names := map[string]bool{}
	for _, c := range resp.Commands {
		names[c.Name] = true
	}
	if !names["build"] {
		t.Errorf("expected build command in listing, got %v", names)
	}
	if names["hidden-cmd"] {
		t.Error("hidden commands must not appear in listing")
	}

	flagNames := map[string]bool{}
	for _, f := range resp.GlobalFlags {
		flagNames[f.Name] = true
	}
	for _, want := range []string{"verbose", "quiet", "json", "config"} {
		if !flagNames[want] {
			t.Errorf("expected global flag %q in output", want)
		}
	}
}

func TestHelpCommand_JSONSingleCommand(t *testing.T) {
	root := newTestRoot()
	help := NewHelpCommand(root)

	var buf bytes.Buffer
	help.SetOut(&buf)
	help.SetArgs([]string{"build", "--json"})

	if err := help.Execute(); err != nil {
		t.Fatalf("help build --json error = %v", err)
	}

	var resp HelpResponse
	if err := json.Unmarshal(buf.Bytes(), &resp); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}

	if resp.Command == nil {
		t.Fatal("expected command metadata")
	}
	if resp.Command.Name != "build" {
		t.Errorf("Name = %q, want build", resp.Command.Name)
	}
	if resp.Command.Usage == "" {
		t.Error("expected usage line")
	}
}

func TestHelpCommand_UnknownCommand(t *testing.T) {
	root := newTestRoot()
	help := NewHelpCommand(root)

	help.SilenceErrors = true
	help.SetArgs([]string{"teleport"})

	err := help.Execute()
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
}
