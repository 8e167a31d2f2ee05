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

package validate

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flowwright/flowwright/internal/commands/shared"
)

const validWorkflow = `{
  "name": "Webhook to Email",
  "nodes": [
    {
      "id": "a1",
      "name": "Webhook",
      "type": "n8n-nodes-base.webhook",
      "typeVersion": 1,
      "position": [0, 0],
      "parameters": {}
    },
    {
      "id": "a2",
      "name": "Send Email",
      "type": "n8n-nodes-base.emailSend",
      "typeVersion": 1,
      "position": [200, 0],
      "parameters": {}
    }
  ],
  "connections": {
    "Webhook": {
      "main": [[{"node": "Send Email", "type": "main", "index": 0}]]
    }
  },
  "settings": {"executionOrder": "v1"}
}`

func writeWorkflow(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to create test workflow: %v", err)
	}
	return path
}

func TestNewCommand(t *testing.T) {
	cmd := NewCommand()

	if cmd.Use != "validate <workflow.json>" {
		t.Errorf("unexpected use line: %q", cmd.Use)
	}

	if cmd.Flags().Lookup("remote") == nil {
		t.Error("--remote flag not defined")
	}
	if cmd.Flags().Lookup("allowlist") == nil {
		t.Error("--allowlist flag not defined")
	}
	// Note: --json flag is global and added by root command, not locally
}

func TestValidateValidWorkflow(t *testing.T) {
	path := writeWorkflow(t, validWorkflow)

	cmd := NewCommand()
	var outBuf, errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetArgs([]string{path})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected valid workflow to pass, got error: %v\nStdout: %s\nStderr: %s",
			err, outBuf.String(), errBuf.String())
	}

	if !strings.Contains(outBuf.String(), "is valid") {
		t.Errorf("expected success message, got: %q", outBuf.String())
	}
}

func TestValidateInvalidJSON(t *testing.T) {
	path := writeWorkflow(t, `{"name": "broken", "nodes": [`)

	cmd := NewCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected invalid JSON to fail validation")
	}

	var exitErr *shared.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *shared.ExitError, got %T", err)
	}
	if exitErr.Code != shared.ExitInvalidWorkflow {
		t.Errorf("expected exit code %d, got %d", shared.ExitInvalidWorkflow, exitErr.Code)
	}
}

func TestValidateDanglingConnection(t *testing.T) {
	// Connection references a node that does not exist.
	broken := `{
  "name": "Broken",
  "nodes": [
    {
      "id": "a1",
      "name": "Webhook",
      "type": "n8n-nodes-base.webhook",
      "typeVersion": 1,
      "position": [0, 0],
      "parameters": {}
    }
  ],
  "connections": {
    "Webhook": {
      "main": [[{"node": "Ghost", "type": "main", "index": 0}]]
    }
  }
}`
	path := writeWorkflow(t, broken)

	cmd := NewCommand()
	var outBuf, errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected structural error to fail validation")
	}

	var exitErr *shared.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != shared.ExitInvalidWorkflow {
		t.Errorf("expected invalid workflow exit code, got %v", err)
	}

	if !strings.Contains(errBuf.String(), "Ghost") {
		t.Errorf("expected error output to name the missing target, got: %q", errBuf.String())
	}
}

func TestValidateWarningsDoNotFail(t *testing.T) {
	// Two unconnected non-trigger nodes: orphan and no-trigger warnings,
	// but structurally valid.
	warnOnly := `{
  "name": "Warnings Only",
  "nodes": [
    {
      "id": "a1",
      "name": "Set",
      "type": "n8n-nodes-base.set",
      "typeVersion": 1,
      "position": [0, 0],
      "parameters": {}
    },
    {
      "id": "a2",
      "name": "Code",
      "type": "n8n-nodes-base.code",
      "typeVersion": 1,
      "position": [200, 0],
      "parameters": {}
    }
  ],
  "connections": {}
}`
	path := writeWorkflow(t, warnOnly)

	cmd := NewCommand()
	var outBuf, errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetArgs([]string{path})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("warnings must not fail validation: %v\nStderr: %s", err, errBuf.String())
	}

	if !strings.Contains(outBuf.String(), "warning:") {
		t.Errorf("expected warnings in output, got: %q", outBuf.String())
	}
	if !strings.Contains(outBuf.String(), "is valid") {
		t.Errorf("expected success line, got: %q", outBuf.String())
	}
}

func TestValidateMissingFile(t *testing.T) {
	cmd := NewCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing.json")})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected missing file to fail")
	}

	var exitErr *shared.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != shared.ExitMissingInput {
		t.Errorf("expected missing input exit code, got %v", err)
	}
}
