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

// Package mcp exposes the workflow-building tools over the Model Context
// Protocol. In this mode the connected assistant plays the model's role:
// it drives add_node, connect_nodes and the rest against a server-held
// session workflow and validates with the same two-layer checks the
// embedded generation loop uses.
//
// The server speaks stdio, so logs must go to stderr; stdout carries the
// protocol.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flowwright/flowwright/internal/catalog"
	"github.com/flowwright/flowwright/internal/tracing"
	"github.com/flowwright/flowwright/pkg/graph"
	"github.com/flowwright/flowwright/pkg/n8n"
	"github.com/flowwright/flowwright/pkg/tools"
	"github.com/flowwright/flowwright/pkg/tools/builtin"
)

// Config configures the MCP server.
type Config struct {
	// Name is the server name advertised to clients (default: "flowwright").
	Name string

	// Version is the flowwright version string (default: "dev").
	Version string

	// WorkflowName names the session workflow. Clients can rename it
	// later with set_workflow_name.
	WorkflowName string

	// Catalog backs list_node_types. Optional.
	Catalog *catalog.Catalog

	// Allowlist restricts which node types add_node accepts. Optional.
	Allowlist *catalog.Allowlist

	// Validator checks workflows. Defaults to n8n.NewValidator().
	Validator *n8n.Validator

	// Client talks to the n8n instance. Optional; without it the two
	// n8n tools report that the API is not configured.
	Client *n8n.Client

	// Logger must write to stderr in stdio mode.
	Logger *slog.Logger

	// Metrics records tool-call counters. Optional; nil records nothing.
	Metrics *tracing.Metrics
}

// Server holds one session workflow and serves the tools that mutate it.
type Server struct {
	mcpServer *server.MCPServer
	builder   *graph.Builder
	session   *builtin.Session
	registry  *tools.Registry
	logger    *slog.Logger
	metrics   *tracing.Metrics
	name      string
	version   string

	// The builder belongs to a single session and is not safe for
	// concurrent use; the transport gives no ordering guarantee, so
	// every handler serializes on mu.
	mu sync.Mutex
}

// New creates an MCP server with a fresh session workflow.
func New(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		cfg.Name = "flowwright"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mcp")

	builder := graph.NewBuilder()
	session, err := builtin.NewSession(builtin.SessionConfig{
		Builder:      builder,
		WorkflowName: cfg.WorkflowName,
		Catalog:      cfg.Catalog,
		Allowlist:    cfg.Allowlist,
		Validator:    cfg.Validator,
		Client:       cfg.Client,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	registry := tools.NewRegistry()
	if err := builtin.Register(registry, session); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	s := &Server{
		mcpServer: server.NewMCPServer(cfg.Name, cfg.Version),
		builder:   builder,
		session:   session,
		registry:  registry,
		logger:    logger,
		metrics:   cfg.Metrics,
		name:      cfg.Name,
		version:   cfg.Version,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	return s, nil
}

// registerTools bridges the session's tool registry into the MCP server
// and adds the session-lifecycle tools the embedded loop does not need:
// the CLI names the workflow up front and discards the builder after
// each build, while an editor session lives until the client disconnects.
func (s *Server) registerTools() error {
	for _, desc := range s.registry.GetToolDescriptors() {
		schema, err := inputSchema(desc.Schema)
		if err != nil {
			return fmt.Errorf("tool %s: %w", desc.Name, err)
		}

		s.mcpServer.AddTool(mcp.Tool{
			Name:        desc.Name,
			Description: desc.Description,
			InputSchema: schema,
		}, s.registryHandler(desc.Name))
	}

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "set_workflow_name",
		Description: "Rename the workflow under construction.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "New workflow name",
				},
			},
			Required: []string{"name"},
		},
	}, s.handleSetWorkflowName)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "reset_workflow",
		Description: "Discard every node and connection and start over with an empty workflow. The workflow name is kept.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleReset)

	return nil
}

// inputSchema converts a registry tool schema into the wire schema. The
// two types share the same JSON shape, so the conversion is a round-trip.
func inputSchema(sc *tools.Schema) (mcp.ToolInputSchema, error) {
	schema := mcp.ToolInputSchema{Type: "object"}
	if sc == nil || sc.Inputs == nil {
		return schema, nil
	}

	raw, err := json.Marshal(sc.Inputs)
	if err != nil {
		return schema, err
	}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return schema, err
	}
	if schema.Type == "" {
		schema.Type = "object"
	}
	return schema, nil
}

// registryHandler adapts one registry tool into an MCP tool handler.
// Tool failures become protocol-level error results, never Go errors:
// the client model needs text it can react to.
func (s *Server) registryHandler(name string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		args := request.GetArguments()
		if args == nil {
			args = map[string]interface{}{}
		}

		outputs, err := s.registry.Execute(ctx, name, args)
		if err != nil {
			outputs = tools.Fail(err.Error())
		}

		ok := tools.IsSuccess(outputs)
		s.metrics.RecordToolCall(ctx, name, ok)
		s.logger.Debug("tool call", "tool", name, "success", ok)

		if !ok {
			return mcp.NewToolResultError(tools.ErrorMessage(outputs)), nil
		}

		raw, err := json.MarshalIndent(outputs, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("tool result could not be serialized: %v", err)), nil
		}
		return mcp.NewToolResultText(string(raw)), nil
	}
}

func (s *Server) handleSetWorkflowName(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("missing or invalid 'name' argument"), nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return mcp.NewToolResultError("workflow name cannot be empty"), nil
	}

	s.session.SetWorkflowName(name)
	s.metrics.RecordToolCall(ctx, "set_workflow_name", true)
	s.logger.Info("workflow renamed", "name", name)
	return mcp.NewToolResultText(fmt.Sprintf("workflow renamed to %q", name)), nil
}

func (s *Server) handleReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.builder.Reset()
	s.metrics.RecordToolCall(ctx, "reset_workflow", true)
	s.logger.Info("workflow reset")
	return mcp.NewToolResultText("workflow cleared: every node and connection was removed"), nil
}

// Run serves the MCP protocol on stdin/stdout until the client
// disconnects or the process receives a termination signal.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server listening on stdio",
		"name", s.name,
		"version", s.version,
		"tools", len(s.registry.GetToolDescriptors())+2)

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
