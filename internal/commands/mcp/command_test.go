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

package mcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/flowwright/flowwright/internal/config"
	"github.com/flowwright/flowwright/internal/log"
	"github.com/flowwright/flowwright/internal/tracing"
)

func TestNewCommandRejectsArgs(t *testing.T) {
	cmd := NewCommand()
	cmd.SetArgs([]string{"unexpected"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for positional argument")
	}
}

func TestNewCommandFlags(t *testing.T) {
	cmd := NewCommand()
	for _, name := range []string{"name", "catalog", "metrics-addr"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("flag --%s not registered", name)
		}
	}
}

func TestServeLogConfigUsesStderr(t *testing.T) {
	cfg := config.Default()
	logCfg := serveLogConfig(cfg)

	if logCfg.Output != os.Stderr {
		t.Error("server log output must be stderr; stdout carries the protocol")
	}
	if logCfg.Level != cfg.Log.Level {
		t.Errorf("log level = %q, want %q", logCfg.Level, cfg.Log.Level)
	}
	if logCfg.Format != log.Format(cfg.Log.Format) {
		t.Errorf("log format = %q, want %q", logCfg.Format, cfg.Log.Format)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ctx := context.Background()

	tp, err := tracing.New(ctx, tracing.Config{ServiceName: "flowwright-test"})
	if err != nil {
		t.Fatalf("tracing.New error = %v", err)
	}
	defer tp.Shutdown(ctx)

	// Counters only appear in the exposition after their first increment.
	tp.Metrics().RecordToolCall(ctx, "add_node", true)

	srv := newMetricsServer(":0", tp.Handler())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want %d", rec.Code, http.StatusOK)
	}
	if body := rec.Body.String(); !strings.Contains(body, "flowwright_tool_calls") {
		t.Errorf("exposition missing tool call counter:\n%s", body)
	}
}

func TestMetricsEndpointOnlyMetricsPath(t *testing.T) {
	ctx := context.Background()

	tp, err := tracing.New(ctx, tracing.Config{ServiceName: "flowwright-test"})
	if err != nil {
		t.Fatalf("tracing.New error = %v", err)
	}
	defer tp.Shutdown(ctx)

	srv := newMetricsServer(":0", tp.Handler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("GET / = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
