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

// Package history implements the history command group over the local
// generation store.
package history

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowwright/flowwright/internal/commands/build"
	"github.com/flowwright/flowwright/internal/commands/shared"
	"github.com/flowwright/flowwright/internal/config"
	internalhistory "github.com/flowwright/flowwright/internal/history"
	"github.com/flowwright/flowwright/pkg/n8n"
)

// NewCommand creates the history command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "View past workflow generations",
		Long: `Commands for listing, inspecting, and pruning recorded generation
sessions. Every 'flowwright build' run is recorded unless history is
disabled or --no-save was given.

Session IDs can be abbreviated to any unique prefix of at least four
characters.`,
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newOutputCommand())
	cmd.AddCommand(newResumeCommand())
	cmd.AddCommand(newPruneCommand())

	return cmd
}

func newListCommand() *cobra.Command {
	var limit int
	var failed bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded generation sessions",
		Example: `  # Most recent sessions
  flowwright history list

  # Only generations that did not produce a valid workflow
  flowwright history list --failed

  # Session IDs of successful runs, for scripting
  flowwright history list --json | jq -r '.sessions[] | select(.success) | .id'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, limit, failed)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of sessions to show (0 for all)")
	cmd.Flags().BoolVar(&failed, "failed", false, "Show only unsuccessful generations")

	return cmd
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session in detail",
		Long: `Display a recorded generation session: the prompt, the outcome, and
the model's closing message. Use 'history output' for the workflow JSON.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, args[0])
		},
	}
}

func newOutputCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "output <session-id>",
		Short: "Print a session's workflow JSON",
		Example: `  flowwright history output 1a2b3c4d > flow.json
  flowwright history output 1a2b3c4d | flowwright validate -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutput(cmd, args[0])
		},
	}
}

func newResumeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <session-id> [description]",
		Short: "Continue a recorded session with new instructions",
		Long: `Resume re-runs generation seeded with the stored transcript, so the
model keeps its context from the earlier session. This is shorthand for
'flowwright build --continue <session-id>'; use build directly for the
full flag set (--output, --query, and so on).`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			buildCmd := build.NewCommand()
			buildArgs := []string{"--continue", args[0]}
			if len(args) > 1 {
				buildArgs = append(buildArgs, args[1])
			}
			buildCmd.SetArgs(buildArgs)
			buildCmd.SetOut(cmd.OutOrStdout())
			buildCmd.SetErr(cmd.ErrOrStderr())
			return buildCmd.Execute()
		},
	}

	return cmd
}

func newPruneCommand() *cobra.Command {
	var olderThan string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old sessions",
		Example: `  # Delete sessions older than 30 days
  flowwright history prune --older-than 30d

  # Delete everything
  flowwright history prune --older-than 0s`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(cmd, olderThan)
		},
	}

	cmd.Flags().StringVar(&olderThan, "older-than", "30d", "Age cutoff, e.g. 7d, 48h")

	return cmd
}

// openStore opens the configured session store. Secrets are not needed
// here, so the cheaper config load is enough.
func openStore() (*internalhistory.Store, error) {
	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		return nil, shared.NewGenerationError("failed to load config", err)
	}
	store, err := internalhistory.Open(internalhistory.Config{Path: cfg.History.Path})
	if err != nil {
		return nil, shared.NewGenerationError("failed to open history store", err)
	}
	return store, nil
}

type sessionSummaryJSON struct {
	ID           string    `json:"id"`
	Prompt       string    `json:"prompt"`
	WorkflowName string    `json:"workflow_name,omitempty"`
	Success      bool      `json:"success"`
	Turns        int       `json:"turns"`
	TotalTokens  int       `json:"total_tokens"`
	DurationMS   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

type listResponse struct {
	shared.JSONResponse
	Sessions []sessionSummaryJSON `json:"sessions"`
}

func runList(cmd *cobra.Command, limit int, failed bool) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	filter := internalhistory.Filter{Limit: limit}
	if failed {
		f := false
		filter.Success = &f
	}

	summaries, err := store.List(cmd.Context(), filter)
	if err != nil {
		return shared.NewGenerationError("failed to list sessions", err)
	}

	if shared.GetJSON() {
		resp := listResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "history list", Success: true},
			Sessions:     make([]sessionSummaryJSON, 0, len(summaries)),
		}
		for _, s := range summaries {
			resp.Sessions = append(resp.Sessions, sessionSummaryJSON{
				ID:           s.ID,
				Prompt:       s.Prompt,
				WorkflowName: s.WorkflowName,
				Success:      s.Success,
				Turns:        s.Turns,
				TotalTokens:  s.TotalTokens,
				DurationMS:   s.Duration.Milliseconds(),
				CreatedAt:    s.CreatedAt,
			})
		}
		return shared.EmitJSON(resp)
	}

	out := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintln(out, "No sessions recorded")
		return nil
	}

	fmt.Fprintln(out, "ID        WHEN              STATUS  TURNS  WORKFLOW")
	for _, s := range summaries {
		status := "ok"
		if !s.Success {
			status = "failed"
		}
		name := s.WorkflowName
		if name == "" {
			name = truncate(s.Prompt, 40)
		}
		fmt.Fprintf(out, "%-9s %-17s %-7s %-6d %s\n",
			shortID(s.ID),
			s.CreatedAt.Local().Format("2006-01-02 15:04"),
			status,
			s.Turns,
			truncate(name, 40))
	}

	return nil
}

type showResponse struct {
	shared.JSONResponse
	Session struct {
		sessionSummaryJSON
		Provider           string `json:"provider,omitempty"`
		Model              string `json:"model,omitempty"`
		Retries            int    `json:"retries"`
		RequiresHumanInput bool   `json:"requires_human_input,omitempty"`
		Message            string `json:"message,omitempty"`
		Nodes              int    `json:"nodes"`
	} `json:"session"`
}

func runShow(cmd *cobra.Command, id string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := store.Get(cmd.Context(), id)
	if err != nil {
		return shared.NewMissingInputError(fmt.Sprintf("session %s not found", id), err)
	}

	nodes := 0
	if len(sess.WorkflowJSON) > 0 {
		if wf, err := n8n.Parse(sess.WorkflowJSON); err == nil {
			nodes = len(wf.Nodes)
		}
	}

	if shared.GetJSON() {
		resp := showResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "history show", Success: true},
		}
		resp.Session.sessionSummaryJSON = sessionSummaryJSON{
			ID:           sess.ID,
			Prompt:       sess.Prompt,
			WorkflowName: sess.WorkflowName,
			Success:      sess.Success,
			Turns:        sess.Turns,
			TotalTokens:  sess.Tokens.TotalTokens,
			DurationMS:   sess.Duration.Milliseconds(),
			CreatedAt:    sess.CreatedAt,
		}
		resp.Session.Provider = sess.Provider
		resp.Session.Model = sess.Model
		resp.Session.Retries = sess.RetriesUsed
		resp.Session.RequiresHumanInput = sess.RequiresHumanInput
		resp.Session.Message = sess.Message
		resp.Session.Nodes = nodes
		return shared.EmitJSON(resp)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session:   %s\n", sess.ID)
	fmt.Fprintf(out, "Created:   %s\n", sess.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Status:    %s\n", shared.RenderStatus(sess.Success, statusLabel(sess.Success)))
	if sess.Provider != "" {
		model := sess.Model
		if model == "" {
			model = "default"
		}
		fmt.Fprintf(out, "Provider:  %s (%s)\n", sess.Provider, model)
	}
	if sess.WorkflowName != "" {
		fmt.Fprintf(out, "Workflow:  %s (%d nodes)\n", sess.WorkflowName, nodes)
	}
	fmt.Fprintf(out, "Turns:     %d (%d retries)\n", sess.Turns, sess.RetriesUsed)
	fmt.Fprintf(out, "Tokens:    %d in / %d out\n", sess.Tokens.InputTokens, sess.Tokens.OutputTokens)
	fmt.Fprintf(out, "Duration:  %s\n", sess.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "\nPrompt:\n  %s\n", indent(sess.Prompt))
	if sess.Message != "" {
		fmt.Fprintf(out, "\nMessage:\n  %s\n", indent(sess.Message))
	}
	if sess.RequiresHumanInput {
		fmt.Fprintf(out, "\n%s\n", shared.RenderWarn("this session stopped on a question; continue it with 'flowwright history resume "+shortID(sess.ID)+"'"))
	}

	return nil
}

func runOutput(cmd *cobra.Command, id string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := store.Get(cmd.Context(), id)
	if err != nil {
		return shared.NewMissingInputError(fmt.Sprintf("session %s not found", id), err)
	}
	if len(sess.WorkflowJSON) == 0 {
		return shared.NewMissingInputError(fmt.Sprintf("session %s has no workflow recorded", shortID(sess.ID)), nil)
	}

	out := cmd.OutOrStdout()
	data := sess.WorkflowJSON
	if !strings.HasSuffix(string(data), "\n") {
		data = append(data, '\n')
	}
	_, err = out.Write(data)
	return err
}

type pruneResponse struct {
	shared.JSONResponse
	Deleted int64 `json:"deleted"`
}

func runPrune(cmd *cobra.Command, olderThan string) error {
	age, err := parseAge(olderThan)
	if err != nil {
		return shared.NewMissingInputError(fmt.Sprintf("invalid --older-than value %q", olderThan), err)
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	deleted, err := store.Prune(cmd.Context(), time.Now().Add(-age))
	if err != nil {
		return shared.NewGenerationError("failed to prune sessions", err)
	}

	if shared.GetJSON() {
		return shared.EmitJSON(pruneResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "history prune", Success: true},
			Deleted:      deleted,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d session(s)\n", deleted)
	return nil
}

// parseAge parses durations like "30d" or "48h". The d suffix means days,
// which time.ParseDuration does not accept.
func parseAge(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("expected a day count before 'd'")
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("age must not be negative")
	}
	return d, nil
}

func statusLabel(ok bool) string {
	if ok {
		return "OK"
	}
	return "FAILED"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func indent(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", "\n  ")
}
