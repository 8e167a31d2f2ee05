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

package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/flowwright/flowwright/internal/catalog"
	"github.com/flowwright/flowwright/internal/cli/prompt"
	"github.com/flowwright/flowwright/internal/commands/shared"
	"github.com/flowwright/flowwright/internal/config"
	"github.com/flowwright/flowwright/internal/history"
	"github.com/flowwright/flowwright/internal/log"
	"github.com/flowwright/flowwright/internal/tracing"
	"github.com/flowwright/flowwright/pkg/agent"
	pkgerrors "github.com/flowwright/flowwright/pkg/errors"
	"github.com/flowwright/flowwright/pkg/graph"
	"github.com/flowwright/flowwright/pkg/llm"
	"github.com/flowwright/flowwright/pkg/n8n"
	"github.com/flowwright/flowwright/pkg/tools"
	"github.com/flowwright/flowwright/pkg/tools/builtin"
)

// maxClarifyRounds caps how many clarifying questions build will relay to
// the user in one invocation before giving up.
const maxClarifyRounds = 3

func runBuild(cmd *cobra.Command, args []string, opts *buildOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interactive := isInteractiveAllowed(opts)

	description, err := resolveDescription(ctx, args, opts, interactive)
	if err != nil {
		return err
	}

	cfg, warnings, err := config.LoadWithSecrets(shared.GetConfigPath())
	if err != nil {
		return shared.NewProviderError("failed to load config", err)
	}
	if !shared.GetQuiet() && !shared.GetJSON() {
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
		}
	}

	logger := log.New(buildLogConfig(cfg))

	providerName, pc, err := shared.ResolveProviderConfig(cfg, opts.provider)
	if err != nil {
		return err
	}
	provider, err := shared.NewProvider(providerName, pc)
	if err != nil {
		return err
	}
	model := shared.EffectiveModel(opts.model, pc, cfg)

	tp, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		Endpoint:       cfg.Tracing.Endpoint,
		Protocol:       cfg.Tracing.Protocol,
		Insecure:       cfg.Tracing.Insecure,
		SampleRate:     cfg.Tracing.SampleRate,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version(),
	})
	if err != nil {
		return shared.NewGenerationError("failed to initialize telemetry", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	cat, err := catalog.New()
	if err != nil {
		// The catalog is advisory; generation works without it.
		logger.Warn("node catalog unavailable", "error", err)
		cat = nil
	}

	var client *n8n.Client
	if cfg.N8N.BaseURL != "" && cfg.N8N.APIKey != "" {
		client, err = n8n.NewClient(n8n.ClientConfig{
			BaseURL:   cfg.N8N.BaseURL,
			APIKey:    cfg.N8N.APIKey,
			Timeout:   cfg.N8N.Timeout,
			RateLimit: cfg.N8N.RequestsPerSecond,
			Logger:    logger,
		})
		if err != nil {
			return shared.NewGenerationError("failed to create n8n client", err)
		}
	}

	builder := graph.NewBuilder()
	session, err := builtin.NewSession(builtin.SessionConfig{
		Builder:      builder,
		WorkflowName: opts.name,
		Catalog:      cat,
		Allowlist:    catalog.NewAllowlist(cfg.Generation.AllowedNodeTypes),
		Client:       client,
		Logger:       logger,
	})
	if err != nil {
		return shared.NewGenerationError("failed to create tool session", err)
	}
	registry := tools.NewRegistry()
	if err := builtin.Register(registry, session); err != nil {
		return shared.NewGenerationError("failed to register tools", err)
	}

	classifier, err := buildClassifier(cfg.Generation.ClassifierRules)
	if err != nil {
		return shared.NewGenerationError("invalid classifier rules", err)
	}

	store, seed, err := openHistory(ctx, cfg, opts, session, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	maxTurns := cfg.Generation.MaxTurns
	if opts.maxTurns > 0 {
		maxTurns = opts.maxTurns
	}
	retries := cfg.Generation.RetryBudget
	if opts.retries >= 0 {
		retries = opts.retries
	}

	agentOpts := func(transcript []llm.Message) []agent.Option {
		o := []agent.Option{
			agent.WithMaxTurns(maxTurns),
			agent.WithRetryBudget(retries),
			agent.WithModel(model),
			agent.WithLogger(logger),
			agent.WithTracer(tp.Tracer("agent")),
		}
		if opts.name != "" {
			o = append(o, agent.WithWorkflowName(opts.name))
		}
		if classifier != nil {
			o = append(o, agent.WithClassifier(classifier))
		}
		if client != nil {
			o = append(o, agent.WithN8NClient(client))
		}
		if len(transcript) > 0 {
			o = append(o, agent.WithHistory(transcript))
		}
		return o
	}

	// The clarify loop: each round runs the generation loop to completion.
	// When the model stops to ask a question and we can reach a human, the
	// answer becomes the next round's input and the transcript carries over.
	// The graph is shared across rounds, so work already done survives.
	prompter := prompt.NewSurveyPrompter(interactive)
	input := description
	transcript := seed
	var result *agent.Result
	for round := 0; ; round++ {
		result, err = generate(ctx, provider, registry, builder, agentOpts(transcript), input)
		if err != nil {
			return mapAgentError(err)
		}
		if !result.RequiresHumanInput || !interactive || round >= maxClarifyRounds {
			break
		}
		answer, perr := prompter.Clarify(ctx, result.Message)
		if perr != nil || strings.TrimSpace(answer) == "" {
			break
		}
		transcript = result.Transcript
		input = answer
	}

	recordMetrics(ctx, tp.Metrics(), result)

	if store != nil && cfg.History.Enabled && !opts.noSave {
		if err := saveSession(ctx, store, result, description, providerName, model); err != nil {
			logger.Warn("failed to record session", "error", err)
		}
	}

	return emitResult(result, opts, providerName, model)
}

// generate runs one full pass of the generation loop, with a spinner when
// stdout is a terminal. The spinner writes to stdout, so it is suppressed
// whenever the workflow JSON might be piped.
func generate(ctx context.Context, provider llm.Provider, registry *tools.Registry, builder *graph.Builder, opts []agent.Option, input string) (*agent.Result, error) {
	showSpinner := !shared.GetQuiet() && !shared.GetJSON() && term.IsTerminal(int(os.Stdout.Fd()))
	if showSpinner {
		sp := shared.NewSpinner()
		sp.Start("Generating workflow")
		defer sp.Stop()
	}

	a := agent.New(provider, registry, builder, opts...)
	return a.Build(ctx, input)
}

// resolveDescription finds the workflow description: positional argument,
// --file, piped stdin, then an interactive prompt. Order matters: an
// explicit argument always wins, and the prompt only opens when nothing
// else supplied a description and a human is reachable.
func resolveDescription(ctx context.Context, args []string, opts *buildOptions, interactive bool) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return args[0], nil
	}

	if opts.file != "" {
		data, err := readDescriptionFile(opts.file)
		if err != nil {
			return "", shared.NewMissingInputError("failed to read description", err)
		}
		if strings.TrimSpace(string(data)) == "" {
			return "", shared.NewMissingInputError(fmt.Sprintf("description file %s is empty", opts.file), nil)
		}
		return string(data), nil
	}

	// A piped stdin carries the description; a terminal stdin means we can
	// ask for one.
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", shared.NewMissingInputError("failed to read description from stdin", err)
		}
		if strings.TrimSpace(string(data)) != "" {
			return string(data), nil
		}
	}

	if interactive {
		prompter := prompt.NewSurveyPrompter(true)
		description, err := prompter.Description(ctx)
		if err != nil {
			return "", shared.NewMissingInputError("no workflow description provided", err)
		}
		return description, nil
	}

	return "", shared.NewMissingInputNonInteractiveError(
		"no workflow description provided: pass one as an argument, via --file, or on stdin", nil)
}

func readDescriptionFile(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// isInteractiveAllowed reports whether build may prompt. --json implies
// non-interactive: a machine consuming the envelope cannot answer a survey.
func isInteractiveAllowed(opts *buildOptions) bool {
	if opts.noInput || shared.GetJSON() {
		return false
	}
	return !shared.IsNonInteractive()
}

// buildLogConfig derives the logger for one build run. CLI verbosity flags
// override the configured level; output always goes to stderr so stdout
// stays clean for the workflow JSON.
func buildLogConfig(cfg *config.Config) *log.Config {
	logCfg := &log.Config{
		Level:     cfg.Log.Level,
		Format:    log.Format(cfg.Log.Format),
		Output:    os.Stderr,
		AddSource: cfg.Log.AddSource,
	}
	switch {
	case shared.GetVerbose():
		logCfg.Level = "debug"
		logCfg.Format = log.FormatText
	case shared.GetQuiet():
		logCfg.Level = "error"
	}
	return logCfg
}

// buildClassifier compiles user-defined failure classification rules, or
// returns nil when there are none so the agent falls back to its default
// table.
func buildClassifier(ruleCfgs []config.ClassifierRule) (agent.Classifier, error) {
	if len(ruleCfgs) == 0 {
		return nil, nil
	}
	rules := make([]agent.Rule, len(ruleCfgs))
	for i, r := range ruleCfgs {
		rules[i] = agent.Rule{
			When:  r.When,
			Class: agent.Class(r.Class),
			Hint:  r.Hint,
		}
	}
	return agent.NewRuleClassifier(rules, nil)
}

// openHistory opens the session store when history is enabled or a resume
// was requested, and loads the transcript for --continue. A store that
// fails to open only aborts the command when the resume depends on it.
func openHistory(ctx context.Context, cfg *config.Config, opts *buildOptions, session *builtin.Session, logger *slog.Logger) (*history.Store, []llm.Message, error) {
	if !cfg.History.Enabled && opts.continueID == "" {
		return nil, nil, nil
	}

	store, err := history.Open(history.Config{Path: cfg.History.Path})
	if err != nil {
		if opts.continueID != "" {
			return nil, nil, shared.NewGenerationError("failed to open history store", err)
		}
		logger.Warn("history store unavailable", "error", err)
		return nil, nil, nil
	}

	if opts.continueID == "" {
		return store, nil, nil
	}

	sess, err := store.Get(ctx, opts.continueID)
	if err != nil {
		store.Close()
		return nil, nil, shared.NewMissingInputError(fmt.Sprintf("cannot resume session %s", opts.continueID), err)
	}
	if opts.name == "" && sess.WorkflowName != "" {
		session.SetWorkflowName(sess.WorkflowName)
	}
	return store, sess.Transcript, nil
}

func recordMetrics(ctx context.Context, m *tracing.Metrics, result *agent.Result) {
	m.RecordSession(ctx, result.Success, result.Turns, result.RetriesUsed, result.TokensUsed, result.Duration)
	for _, exec := range result.ToolExecutions {
		m.RecordToolCall(ctx, exec.ToolName, exec.Success)
	}
	if n := len(result.Errors); n > 0 {
		m.RecordValidationFailures(ctx, "local", n)
	}
}

func saveSession(ctx context.Context, store *history.Store, result *agent.Result, description, providerName, model string) error {
	name := ""
	if result.Workflow != nil {
		name = result.Workflow.Name
	}
	return store.Save(ctx, &history.Session{
		ID:                 result.SessionID,
		Prompt:             description,
		WorkflowName:       name,
		Provider:           providerName,
		Model:              model,
		Success:            result.Success,
		RequiresHumanInput: result.RequiresHumanInput,
		Message:            result.Message,
		Turns:              result.Turns,
		RetriesUsed:        result.RetriesUsed,
		Tokens:             result.TokensUsed,
		Duration:           result.Duration,
		WorkflowJSON:       result.WorkflowJSON,
		Transcript:         result.Transcript,
		CreatedAt:          time.Now().UTC(),
	})
}

// mapAgentError translates a generation-loop failure into an exit-coded
// error. Provider failures get their own code so scripts can distinguish
// "model unreachable" from "model gave up".
func mapAgentError(err error) error {
	if errors.Is(err, context.Canceled) {
		return shared.NewGenerationError("generation cancelled", err)
	}
	var perr *pkgerrors.ProviderError
	if errors.As(err, &perr) {
		return shared.NewProviderError("model call failed", err)
	}
	return shared.NewGenerationError("generation failed", err)
}

func version() string {
	v, _, _ := shared.GetVersion()
	return v
}
