// Package agent runs the workflow generation loop: a bounded, self-correcting
// conversation in which a language model builds an n8n workflow through
// graph-construction tools.
//
// Each Build is a session:
//  1. Send the conversation to the model.
//  2. Execute any tool calls it makes and feed the results back.
//  3. When the model stops calling tools (or the turn budget runs out),
//     validate the built workflow.
//  4. On validation errors, classify them; recoverable ones go back to the
//     model as a repair prompt, within a retry budget.
//
// The loop always terminates: turns bound the conversation, retries bound
// the repair attempts, and the history is append-only so every decision made
// along the way stays visible in the transcript.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/flowwright/flowwright/pkg/graph"
	"github.com/flowwright/flowwright/pkg/llm"
	"github.com/flowwright/flowwright/pkg/n8n"
	"github.com/flowwright/flowwright/pkg/tools"
)

// ErrBusy is returned by Build when another build is already running on the
// same Agent. Sessions are single-flight: a second prompt against
// in-progress state would interleave two conversations over one graph.
var ErrBusy = errors.New("a build is already running on this agent")

const (
	// DefaultMaxTurns bounds the number of model calls per session.
	DefaultMaxTurns = 20

	// DefaultRetryBudget bounds the validation repair attempts per session.
	DefaultRetryBudget = 3

	// defaultWorkflowName is used when the caller does not name the
	// workflow.
	defaultWorkflowName = "Generated Workflow"
)

// state is the loop's position in the generation state machine.
type state int

const (
	stateTurn state = iota
	stateToolExec
	stateFinalizeCheck
	stateValidate
	stateRetry
	stateDoneSuccess
	stateDoneFailure
)

// StreamHandler receives chunks from the model as they arrive, letting
// callers render text incrementally. Setting one switches the loop from
// Complete to Stream; the assembled response drives the loop either way.
type StreamHandler func(llm.StreamChunk)

// Agent drives generation sessions against one model provider and one tool
// registry, building into a shared graph. Create one per conversation; the
// zero value is not usable.
type Agent struct {
	provider llm.Provider
	registry *tools.Registry
	builder  *graph.Builder

	validator     *n8n.Validator
	n8nClient     *n8n.Client
	classifier    Classifier
	logger        *slog.Logger
	tracer        trace.Tracer
	streamHandler StreamHandler

	systemPrompt string
	workflowName string
	model        string
	maxTokens    int
	temperature  *float64
	maxTurns     int
	retryBudget  int
	history      []llm.Message

	busy sync.Mutex
}

// Option configures an Agent.
type Option func(*Agent)

// WithMaxTurns overrides the model-call budget per Build.
func WithMaxTurns(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxTurns = n
		}
	}
}

// WithRetryBudget overrides the validation repair budget per Build. Zero
// disables repair attempts entirely.
func WithRetryBudget(n int) Option {
	return func(a *Agent) {
		if n >= 0 {
			a.retryBudget = n
		}
	}
}

// WithModel selects a provider-specific model ID. Empty keeps the
// provider's default.
func WithModel(model string) Option {
	return func(a *Agent) { a.model = model }
}

// WithMaxTokens caps the response length per model call.
func WithMaxTokens(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

// WithTemperature fixes the sampling temperature.
func WithTemperature(t float64) Option {
	return func(a *Agent) { a.temperature = &t }
}

// WithWorkflowName names the workflow produced by Build.
func WithWorkflowName(name string) Option {
	return func(a *Agent) {
		if name != "" {
			a.workflowName = name
		}
	}
}

// WithSystemPrompt replaces the built-in system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) {
		if prompt != "" {
			a.systemPrompt = prompt
		}
	}
}

// WithClassifier replaces the default failure classification table.
func WithClassifier(c Classifier) Option {
	return func(a *Agent) {
		if c != nil {
			a.classifier = c
		}
	}
}

// WithN8NClient enables remote validation: when the local validator passes,
// the workflow is round-tripped through the instance before the build is
// declared done. Without a client the build succeeds on local validation
// alone.
func WithN8NClient(client *n8n.Client) Option {
	return func(a *Agent) { a.n8nClient = client }
}

// WithLogger sets the structured logger for loop events.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithTracer enables span emission for the build, its turns, and its tool
// executions.
func WithTracer(tracer trace.Tracer) Option {
	return func(a *Agent) {
		if tracer != nil {
			a.tracer = tracer
		}
	}
}

// WithHistory seeds the conversation with messages from an earlier session,
// placed between the system prompt and the new user prompt. Use it to
// continue refining a workflow across builds.
func WithHistory(messages []llm.Message) Option {
	return func(a *Agent) {
		a.history = append([]llm.Message(nil), messages...)
	}
}

// WithStreamHandler streams model output through the handler as it is
// generated.
func WithStreamHandler(handler StreamHandler) Option {
	return func(a *Agent) { a.streamHandler = handler }
}

// New creates an agent. The provider supplies completions, the registry
// supplies the tools offered to the model, and the builder holds the
// workflow graph the tools mutate.
func New(provider llm.Provider, registry *tools.Registry, builder *graph.Builder, opts ...Option) *Agent {
	a := &Agent{
		provider:     provider,
		registry:     registry,
		builder:      builder,
		validator:    n8n.NewValidator(),
		classifier:   NewDefaultClassifier(),
		logger:       slog.Default(),
		tracer:       noop.NewTracerProvider().Tracer("agent"),
		systemPrompt: defaultSystemPrompt,
		workflowName: defaultWorkflowName,
		maxTurns:     DefaultMaxTurns,
		retryBudget:  DefaultRetryBudget,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Result is the outcome of one Build.
type Result struct {
	// Success is true when the loop ended with a workflow that passed
	// validation.
	Success bool

	// Workflow is the built workflow. It is set whenever the graph has
	// nodes, even when the build failed, so partial work is never thrown
	// away.
	Workflow *n8n.Workflow

	// WorkflowJSON is Workflow serialized as indented JSON, ready for
	// import or inspection.
	WorkflowJSON []byte

	// Message is the one-line human-readable outcome.
	Message string

	// Errors are the validation errors standing when the loop ended.
	Errors []string

	// Warnings are non-fatal findings from the final validation pass.
	Warnings []string

	// RequiresHumanInput marks outcomes the model cannot improve on its
	// own, such as credentials that must be configured on the instance or
	// an exhausted budget.
	RequiresHumanInput bool

	// Turns is the number of model calls made.
	Turns int

	// RetriesUsed is the number of validation repair prompts injected.
	RetriesUsed int

	// TokensUsed accumulates usage across every model call in the session.
	TokensUsed llm.TokenUsage

	// Duration is the wall-clock time of the build.
	Duration time.Duration

	// SessionID identifies this build in logs, traces, and history.
	SessionID string

	// ToolExecutions records every tool call in execution order.
	ToolExecutions []ToolExecution

	// Transcript is the full conversation, append-only across turns and
	// repair attempts. Feed it back through WithHistory to continue the
	// session.
	Transcript []llm.Message
}

// ToolExecution records a single tool call made during a build.
type ToolExecution struct {
	ToolName string
	Inputs   map[string]interface{}
	Outputs  map[string]interface{}
	Success  bool
	Error    string
	Duration time.Duration
}

// run is the mutable state of one Build.
type run struct {
	agent  *Agent
	logger *slog.Logger

	messages []llm.Message
	tools    []llm.Tool
	result   *Result

	// pending holds tool calls from the last model response awaiting
	// execution.
	pending []llm.ToolCall

	// classification is the verdict on the last failed validation.
	classification Classification

	// exhausted is set when the turn budget ran out; the final validation
	// still runs but never triggers a repair prompt.
	exhausted bool

	// humanFlag latches when any failure is classified non-recoverable.
	// Once set, repair prompts stop; the model cannot fix these.
	humanFlag bool
	humanErr  string
}

// Build runs the generation loop for one prompt and returns the outcome. A
// concurrent call on the same Agent returns ErrBusy. The Result is returned
// even when the build fails; the error return is reserved for provider
// failures and context cancellation, and even then the Result carries
// whatever was built.
func (a *Agent) Build(ctx context.Context, prompt string) (*Result, error) {
	if !a.busy.TryLock() {
		return nil, ErrBusy
	}
	defer a.busy.Unlock()

	start := time.Now()
	sessionID := uuid.New().String()
	logger := a.logger.With("session_id", sessionID)

	ctx, span := a.tracer.Start(ctx, "agent.build", trace.WithAttributes(
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	toolDefs, err := toolDefinitions(a.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to describe tools: %w", err)
	}

	r := &run{
		agent:  a,
		logger: logger,
		tools:  toolDefs,
		result: &Result{SessionID: sessionID},
	}
	r.messages = append(r.messages, llm.Message{Role: llm.MessageRoleSystem, Content: a.systemPrompt})
	r.messages = append(r.messages, a.history...)
	r.messages = append(r.messages, llm.Message{Role: llm.MessageRoleUser, Content: prompt})

	logger.Info("build started",
		"provider", a.provider.Name(),
		"max_turns", a.maxTurns,
		"retry_budget", a.retryBudget,
		"tools", len(toolDefs))

	err = r.loop(ctx)

	r.result.Transcript = r.messages
	r.result.Duration = time.Since(start)
	r.captureWorkflow()

	span.SetAttributes(
		attribute.Bool("build.success", r.result.Success),
		attribute.Int("build.turns", r.result.Turns),
		attribute.Int("build.retries", r.result.RetriesUsed),
	)

	if err != nil {
		span.RecordError(err)
		if r.result.Message == "" {
			r.result.Message = err.Error()
		}
		logger.Error("build aborted", "error", err, "turns", r.result.Turns)
		return r.result, err
	}

	logger.Info("build finished",
		"success", r.result.Success,
		"turns", r.result.Turns,
		"retries", r.result.RetriesUsed,
		"nodes", a.builder.Len(),
		"tokens", r.result.TokensUsed.TotalTokens,
		"duration", r.result.Duration)
	return r.result, nil
}

// loop drives the state machine until a terminal state. Only provider
// failures and context cancellation surface as errors; every domain outcome
// lands in the Result.
func (r *run) loop(ctx context.Context) error {
	st := stateTurn
	for {
		switch st {
		case stateTurn:
			next, err := r.turn(ctx)
			if err != nil {
				return err
			}
			st = next
		case stateToolExec:
			st = r.execTools(ctx)
		case stateFinalizeCheck:
			st = r.finalizeCheck()
		case stateValidate:
			st = r.validate(ctx)
		case stateRetry:
			st = r.injectRepairPrompt()
		case stateDoneSuccess:
			r.succeed()
			return nil
		case stateDoneFailure:
			return nil
		}
	}
}

// turn makes one model call, unless the turn budget is spent, in which case
// the loop moves straight to the final check on whatever has been built.
func (r *run) turn(ctx context.Context) (state, error) {
	if r.result.Turns >= r.agent.maxTurns {
		r.exhausted = true
		r.logger.Warn("turn budget spent, validating what exists", "max_turns", r.agent.maxTurns)
		return stateFinalizeCheck, nil
	}
	r.result.Turns++

	ctx, span := r.agent.tracer.Start(ctx, "agent.turn", trace.WithAttributes(
		attribute.Int("turn.number", r.result.Turns),
	))
	defer span.End()

	resp, err := r.complete(ctx)
	if err != nil {
		span.RecordError(err)
		r.result.Message = fmt.Sprintf("model call failed on turn %d", r.result.Turns)
		return stateDoneFailure, fmt.Errorf("model call on turn %d: %w", r.result.Turns, err)
	}

	r.result.TokensUsed.Add(resp.Usage)
	r.messages = append(r.messages, llm.Message{
		Role:      llm.MessageRoleAssistant,
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	})
	r.logger.Debug("model responded",
		"turn", r.result.Turns,
		"tool_calls", len(resp.ToolCalls),
		"finish_reason", resp.FinishReason)

	if len(resp.ToolCalls) > 0 {
		r.pending = resp.ToolCalls
		return stateToolExec, nil
	}
	return stateFinalizeCheck, nil
}

// complete makes one model call, streaming when a handler is installed.
func (r *run) complete(ctx context.Context) (*llm.CompletionResponse, error) {
	req := llm.CompletionRequest{
		Messages:    r.messages,
		Model:       r.agent.model,
		Tools:       r.tools,
		Temperature: r.agent.temperature,
	}
	if r.agent.maxTokens > 0 {
		maxTokens := r.agent.maxTokens
		req.MaxTokens = &maxTokens
	}

	if r.agent.streamHandler == nil {
		return r.agent.provider.Complete(ctx, req)
	}
	chunks, err := r.agent.provider.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return collectStream(chunks, r.agent.streamHandler)
}

// collectStream assembles a full response from a chunk stream, forwarding
// every chunk to the handler as it arrives. Tool call fragments are keyed by
// index and reassembled in arrival order.
func collectStream(chunks <-chan llm.StreamChunk, handler StreamHandler) (*llm.CompletionResponse, error) {
	resp := &llm.CompletionResponse{}
	var content strings.Builder
	calls := make(map[int]*llm.ToolCall)
	args := make(map[int]*strings.Builder)
	var order []int

	for chunk := range chunks {
		handler(chunk)
		if chunk.Error != nil {
			return nil, chunk.Error
		}

		content.WriteString(chunk.Delta.Content)
		if delta := chunk.Delta.ToolCallDelta; delta != nil {
			call, seen := calls[delta.Index]
			if !seen {
				call = &llm.ToolCall{}
				calls[delta.Index] = call
				args[delta.Index] = &strings.Builder{}
				order = append(order, delta.Index)
			}
			if delta.ID != "" {
				call.ID = delta.ID
			}
			if delta.Name != "" {
				call.Name = delta.Name
			}
			args[delta.Index].WriteString(delta.ArgumentsDelta)
		}
		if chunk.FinishReason != "" {
			resp.FinishReason = chunk.FinishReason
		}
		if chunk.Usage != nil {
			resp.Usage = *chunk.Usage
		}
		if chunk.RequestID != "" {
			resp.RequestID = chunk.RequestID
		}
	}

	resp.Content = content.String()
	for _, idx := range order {
		call := calls[idx]
		call.Arguments = args[idx].String()
		if call.Arguments == "" {
			call.Arguments = "{}"
		}
		resp.ToolCalls = append(resp.ToolCalls, *call)
	}
	return resp, nil
}

// execTools runs the pending tool calls sequentially in the order the model
// issued them, appending one tool message per call. Control then returns to
// the model so it can react to the results.
func (r *run) execTools(ctx context.Context) state {
	for _, call := range r.pending {
		exec, outputs := r.executeTool(ctx, call)
		r.result.ToolExecutions = append(r.result.ToolExecutions, exec)

		payload, err := json.Marshal(outputs)
		if err != nil {
			payload = []byte(`{"success":false,"error":"tool result could not be serialized"}`)
		}
		r.messages = append(r.messages, llm.Message{
			Role:       llm.MessageRoleTool,
			Content:    string(payload),
			ToolCallID: call.ID,
			Name:       call.Name,
		})

		if !exec.Success {
			verdict := r.agent.classifier.Classify(exec.Error)
			if verdict.Class == ClassNonRecoverable {
				if !r.humanFlag {
					r.humanFlag = true
					r.humanErr = exec.Error
				}
				r.logger.Warn("tool failure needs human attention",
					"tool", call.Name, "error", exec.Error)
			}
		}
	}
	r.pending = nil
	return stateTurn
}

// executeTool runs one tool call. Failures of every kind come back as a
// structured result map so the model always receives actionable text; the
// loop itself never aborts on a tool failure.
func (r *run) executeTool(ctx context.Context, call llm.ToolCall) (ToolExecution, map[string]interface{}) {
	ctx, span := r.agent.tracer.Start(ctx, "agent.tool", trace.WithAttributes(
		attribute.String("tool.name", call.Name),
	))
	defer span.End()

	start := time.Now()
	exec := ToolExecution{ToolName: call.Name}
	var outputs map[string]interface{}

	inputs, err := decodeArguments(call.Arguments)
	if err != nil {
		outputs = tools.Failf("invalid tool arguments: %v", err)
	} else {
		exec.Inputs = inputs
		out, execErr := r.agent.registry.Execute(ctx, call.Name, inputs)
		if execErr != nil {
			outputs = tools.Fail(execErr.Error())
		} else {
			outputs = out
		}
	}

	exec.Outputs = outputs
	exec.Success = tools.IsSuccess(outputs)
	if !exec.Success {
		exec.Error = tools.ErrorMessage(outputs)
	}
	exec.Duration = time.Since(start)

	span.SetAttributes(attribute.Bool("tool.success", exec.Success))
	r.logger.Debug("tool executed",
		"tool", call.Name,
		"success", exec.Success,
		"duration", exec.Duration)
	return exec, outputs
}

// decodeArguments parses the model-supplied JSON arguments. Empty arguments
// mean a no-parameter call, not an error.
func decodeArguments(raw string) (map[string]interface{}, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]interface{}{}, nil
	}
	var inputs map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &inputs); err != nil {
		return nil, err
	}
	if inputs == nil {
		inputs = map[string]interface{}{}
	}
	return inputs, nil
}

// finalizeCheck gates validation on there being anything to validate.
func (r *run) finalizeCheck() state {
	if r.agent.builder.Len() == 0 {
		r.result.Message = "no workflow was created: be more specific about the trigger and actions you want"
		r.result.RequiresHumanInput = true
		return stateDoneFailure
	}
	return stateValidate
}

// validate runs local validation and, when configured and locally clean,
// remote validation against the n8n instance.
func (r *run) validate(ctx context.Context) state {
	ctx, span := r.agent.tracer.Start(ctx, "agent.validate", trace.WithAttributes(
		attribute.Bool("validate.remote", r.agent.n8nClient != nil),
	))
	defer span.End()

	wf := r.agent.builder.Workflow(r.agent.workflowName)
	local := r.agent.validator.Validate(wf)
	span.SetAttributes(attribute.Int("validate.errors", len(local.Errors)))

	r.result.Errors = issueStrings(local.Errors)
	r.result.Warnings = issueStrings(local.Warnings)
	r.logger.Debug("validated workflow",
		"valid", local.Valid,
		"errors", len(local.Errors),
		"warnings", len(local.Warnings))

	if !local.Valid {
		return r.handleInvalid()
	}

	if r.agent.n8nClient != nil {
		remote, err := r.agent.n8nClient.ValidateByCreate(ctx, wf)
		switch {
		case err != nil:
			// The instance being unreachable says nothing about the
			// workflow; deliver the JSON and note the gap.
			r.logger.Warn("remote validation unavailable", "error", err)
			r.result.Warnings = append(r.result.Warnings,
				fmt.Sprintf("remote validation unavailable: %v", err))
		case !remote.Valid:
			r.result.Errors = append(r.result.Errors,
				fmt.Sprintf("n8n rejected the workflow: %s", remote.Message))
			return r.handleInvalid()
		case !remote.CleanedUp:
			r.result.Warnings = append(r.result.Warnings,
				"a validation probe workflow was left on the instance and should be deleted")
		}
	}
	return stateDoneSuccess
}

// handleInvalid decides what a failed validation means: a repair prompt, or
// the end of the line.
func (r *run) handleInvalid() state {
	combined := strings.Join(r.result.Errors, "; ")
	r.classification = r.agent.classifier.Classify(combined)

	if r.classification.Class == ClassNonRecoverable {
		r.result.Message = "validation found a problem that needs human attention: " + r.classification.Hint
		r.result.RequiresHumanInput = true
		return stateDoneFailure
	}
	if r.exhausted {
		r.result.Message = "turn limit reached before the workflow validated: simplify the request or finish it by hand"
		r.result.RequiresHumanInput = true
		return stateDoneFailure
	}
	if r.humanFlag {
		r.result.Message = "an earlier failure needs human attention: " + r.humanErr
		r.result.RequiresHumanInput = true
		return stateDoneFailure
	}
	if r.result.RetriesUsed >= r.agent.retryBudget {
		r.result.Message = fmt.Sprintf(
			"workflow still invalid after %d repair attempts: fix the remaining errors by hand or simplify the request",
			r.result.RetriesUsed)
		r.result.RequiresHumanInput = true
		return stateDoneFailure
	}
	return stateRetry
}

// injectRepairPrompt appends the validation findings as a user message and
// hands control back to the model.
func (r *run) injectRepairPrompt() state {
	r.result.RetriesUsed++
	r.messages = append(r.messages, llm.Message{
		Role:    llm.MessageRoleUser,
		Content: repairPrompt(r.result.Errors, r.classification.Hint),
	})
	r.logger.Info("injecting validation feedback",
		"retry", r.result.RetriesUsed,
		"errors", len(r.result.Errors))
	return stateTurn
}

// succeed fills in the success outcome. A latched non-recoverable tool
// failure still surfaces: the workflow is valid, but something on the
// instance needs attention before it can run.
func (r *run) succeed() {
	r.result.Success = true
	r.result.Message = fmt.Sprintf("generated workflow %q with %d nodes",
		r.agent.workflowName, r.agent.builder.Len())
	if r.humanFlag {
		r.result.RequiresHumanInput = true
		r.result.Warnings = append(r.result.Warnings,
			"needs attention before the workflow can run: "+r.humanErr)
	}
}

// captureWorkflow snapshots the graph into the result whenever it has nodes,
// regardless of outcome.
func (r *run) captureWorkflow() {
	if r.agent.builder.Len() == 0 {
		return
	}
	wf := r.agent.builder.Workflow(r.agent.workflowName)
	r.result.Workflow = wf
	if data, err := json.MarshalIndent(wf, "", "  "); err == nil {
		r.result.WorkflowJSON = data
	}
}

// repairPrompt formats validation findings into the message the model sees
// on a repair attempt.
func repairPrompt(errs []string, hint string) string {
	var b strings.Builder
	b.WriteString("The workflow has validation errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(hint)
	b.WriteString(". Fix these with the tools, then finish.")
	return b.String()
}

// issueStrings flattens validation issues into display strings, folding the
// suggestion in when present.
func issueStrings(issues []n8n.Issue) []string {
	out := make([]string, 0, len(issues))
	for _, issue := range issues {
		s := issue.Message
		if issue.Suggestion != "" {
			s += " (" + issue.Suggestion + ")"
		}
		out = append(out, s)
	}
	return out
}

// toolDefinitions converts registry descriptors into the neutral tool shape
// providers send to their APIs. The registry's JSON Schema structs are
// flattened into plain maps through a marshal round-trip.
func toolDefinitions(registry *tools.Registry) ([]llm.Tool, error) {
	descriptors := registry.GetToolDescriptors()
	defs := make([]llm.Tool, 0, len(descriptors))
	for _, d := range descriptors {
		schema := map[string]interface{}{"type": "object"}
		if d.Schema != nil && d.Schema.Inputs != nil {
			raw, err := json.Marshal(d.Schema.Inputs)
			if err != nil {
				return nil, fmt.Errorf("tool %s: %w", d.Name, err)
			}
			if err := json.Unmarshal(raw, &schema); err != nil {
				return nil, fmt.Errorf("tool %s: %w", d.Name, err)
			}
		}
		defs = append(defs, llm.Tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: schema,
		})
	}
	return defs, nil
}
