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

// Package tracing wires OpenTelemetry observability for workflow
// generation: spans for build sessions, model turns and tool calls, and
// Prometheus metrics for session outcomes, token spend and validation
// failures.
//
// Span export is opt-in. When enabled, spans are shipped over OTLP
// (gRPC or HTTP) or printed to the console; the exporter is selected by
// Config.Protocol. Metrics are always collected and served from the
// provider's own Prometheus registry via Handler, so a process can
// expose /metrics without exporting a single span.
//
// Typical wiring:
//
//	provider, err := tracing.New(ctx, tracing.Config{
//	    Enabled:     true,
//	    Endpoint:    "localhost:4317",
//	    ServiceName: "flowwright",
//	})
//	if err != nil {
//	    return err
//	}
//	defer provider.Shutdown(ctx)
//
//	agent.New(p, reg, builder, agent.WithTracer(provider.Tracer("agent")))
package tracing
