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

// Package mcp implements the mcp command, which serves the workflow
// construction tools over the Model Context Protocol so a connected
// assistant can build n8n workflows interactively.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowwright/flowwright/internal/catalog"
	"github.com/flowwright/flowwright/internal/commands/shared"
	"github.com/flowwright/flowwright/internal/config"
	"github.com/flowwright/flowwright/internal/log"
	"github.com/flowwright/flowwright/internal/mcp"
	"github.com/flowwright/flowwright/internal/tracing"
	"github.com/flowwright/flowwright/pkg/n8n"
)

var (
	mcpWorkflowName string
	mcpCatalogFile  string
	mcpMetricsAddr  string
)

// NewCommand creates the mcp command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the workflow tools over the Model Context Protocol",
		Long: `Mcp starts a Model Context Protocol server on stdin/stdout, handing the
workflow construction tools to a connected AI assistant. The assistant
plays the model's role: it drives the same closed tool surface the build
command gives the configured provider, against a session workflow held
in memory until the connection closes.

The server exposes these tools:
  - add_node, connect_nodes, remove_node, update_node_parameters
  - get_current_workflow, list_node_types
  - validate_workflow_with_n8n, create_workflow_in_n8n
  - set_workflow_name, reset_workflow

Configuration example for an assistant's MCP settings:
  {
    "mcpServers": {
      "flowwright": {
        "command": "flowwright",
        "args": ["mcp"]
      }
    }
  }

stdout carries the protocol, so all logs go to stderr. The two n8n tools
need n8n.base_url and n8n.api_key in the config; without them they report
that the API is not configured instead of failing the session.`,
		Example: `  # Serve on stdio (the normal assistant integration)
  flowwright mcp

  # Extend the node catalog and pick up edits without restarting
  flowwright mcp --catalog ./team-nodes.yaml

  # Expose Prometheus metrics while serving
  flowwright mcp --metrics-addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	cmd.Flags().StringVar(&mcpWorkflowName, "name", "", "Initial name for the session workflow")
	cmd.Flags().StringVar(&mcpCatalogFile, "catalog", "", "Merge a node catalog override file and reload it on change")
	cmd.Flags().StringVar(&mcpMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, warnings, err := config.LoadWithSecrets(shared.GetConfigPath())
	if err != nil {
		return shared.NewProviderError("failed to load config", err)
	}

	logger := log.New(serveLogConfig(cfg))
	for _, w := range warnings {
		logger.Warn(w)
	}

	versionStr, _, _ := shared.GetVersion()

	tp, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		Endpoint:       cfg.Tracing.Endpoint,
		Protocol:       cfg.Tracing.Protocol,
		Insecure:       cfg.Tracing.Insecure,
		SampleRate:     cfg.Tracing.SampleRate,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: versionStr,
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

	cat, catErr := catalog.New()
	if catErr != nil {
		logger.Warn("node catalog unavailable", "error", catErr)
		cat = nil
	}
	if mcpCatalogFile != "" {
		if cat == nil {
			return shared.NewGenerationError("cannot apply a catalog override without the embedded catalog", catErr)
		}
		if err := cat.MergeFile(mcpCatalogFile); err != nil {
			return shared.NewMissingInputError(fmt.Sprintf("failed to load catalog override %s", mcpCatalogFile), err)
		}
		watcher, err := catalog.NewWatcher(catalog.WatcherConfig{
			Catalog: cat,
			Path:    mcpCatalogFile,
			Logger:  logger,
		})
		if err != nil {
			logger.Warn("catalog hot reload unavailable", "error", err)
		} else {
			defer watcher.Close()
			logger.Info("watching catalog override", "path", mcpCatalogFile)
		}
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

	srv, err := mcp.New(mcp.Config{
		Name:         "flowwright",
		Version:      versionStr,
		WorkflowName: mcpWorkflowName,
		Catalog:      cat,
		Allowlist:    catalog.NewAllowlist(cfg.Generation.AllowedNodeTypes),
		Client:       client,
		Logger:       logger,
		Metrics:      tp.Metrics(),
	})
	if err != nil {
		return shared.NewGenerationError("failed to create MCP server", err)
	}

	if mcpMetricsAddr != "" {
		metricsSrv := newMetricsServer(mcpMetricsAddr, tp.Handler())
		go func() {
			logger.Info("metrics server listening", "addr", mcpMetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown failed", "error", err)
			}
		}()
	}

	if err := srv.Run(ctx); err != nil {
		return shared.NewGenerationError("mcp server failed", err)
	}
	return nil
}

// serveLogConfig derives the server logger. Output always goes to stderr:
// stdout carries the MCP protocol and must stay clean.
func serveLogConfig(cfg *config.Config) *log.Config {
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

// newMetricsServer builds the optional Prometheus endpoint. Only /metrics
// is routed; anything else 404s.
func newMetricsServer(addr string, handler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
