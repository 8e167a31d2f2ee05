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

package tracing

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/flowwright/flowwright/pkg/errors"
	"github.com/flowwright/flowwright/pkg/llm"
)

func TestNew_Disabled(t *testing.T) {
	p, err := New(context.Background(), Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	tracer := p.Tracer("test")
	require.NotNil(t, tracer)

	// No exporter configured: spans are no-ops.
	_, span := tracer.Start(context.Background(), "noop")
	span.End()
	assert.False(t, span.SpanContext().IsValid())

	assert.NotNil(t, p.Metrics())
	assert.NotNil(t, p.Handler())
	assert.NoError(t, p.ForceFlush(context.Background()))
}

func TestNew_StdoutProtocol(t *testing.T) {
	var buf bytes.Buffer

	p, err := New(context.Background(), Config{
		Enabled:       true,
		Protocol:      ProtocolStdout,
		SampleRate:    1,
		ServiceName:   "flowwright-test",
		ConsoleWriter: &buf,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	_, span := p.Tracer("test").Start(context.Background(), "build-once")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, p.ForceFlush(context.Background()))
	assert.Contains(t, buf.String(), "build-once")
	assert.Contains(t, buf.String(), "flowwright-test")
}

func TestNew_GRPCProtocol(t *testing.T) {
	// Construction must succeed without a collector listening; the
	// gRPC connection is lazy.
	p, err := New(context.Background(), Config{
		Enabled:    true,
		Endpoint:   "localhost:4317",
		Insecure:   true,
		SampleRate: 1,
	})
	require.NoError(t, err)
	require.NotNil(t, p.Tracer("test"))
	_ = p.Shutdown(context.Background())
}

func TestNew_DefaultProtocolIsGRPC(t *testing.T) {
	p, err := New(context.Background(), Config{
		Enabled:  true,
		Insecure: true,
	})
	require.NoError(t, err)
	_ = p.Shutdown(context.Background())
}

func TestNew_UnknownProtocol(t *testing.T) {
	_, err := New(context.Background(), Config{
		Enabled:  true,
		Protocol: "carrier-pigeon",
	})
	require.Error(t, err)

	var cfgErr *pkgerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "tracing.protocol", cfgErr.Key)
	assert.Contains(t, cfgErr.Error(), "carrier-pigeon")
}

func TestNew_SamplingDropsSpans(t *testing.T) {
	var buf bytes.Buffer

	p, err := New(context.Background(), Config{
		Enabled:       true,
		Protocol:      ProtocolStdout,
		SampleRate:    0,
		ConsoleWriter: &buf,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	_, span := p.Tracer("test").Start(context.Background(), "dropped")
	span.End()

	require.NoError(t, p.ForceFlush(context.Background()))
	assert.NotContains(t, buf.String(), "dropped")
}

func TestNewSampler(t *testing.T) {
	assert.Contains(t, newSampler(1).Description(), "AlwaysOn")
	assert.Contains(t, newSampler(2.5).Description(), "AlwaysOn")
	assert.Contains(t, newSampler(0).Description(), "AlwaysOff")
	assert.Contains(t, newSampler(-1).Description(), "AlwaysOff")
	assert.Contains(t, newSampler(0.25).Description(), "TraceIDRatioBased")
}

func TestProvider_MetricsServed(t *testing.T) {
	p, err := New(context.Background(), Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	ctx := context.Background()
	m := p.Metrics()
	m.RecordSession(ctx, true, 4, 1, llm.TokenUsage{InputTokens: 900, OutputTokens: 120, TotalTokens: 1020}, 2*time.Second)
	m.RecordToolCall(ctx, "add_node", true)
	m.RecordToolCall(ctx, "connect_nodes", false)
	m.RecordValidationFailures(ctx, "local", 2)

	srv := httptest.NewServer(p.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "flowwright_sessions_total")
	assert.Contains(t, text, "flowwright_turns_total")
	assert.Contains(t, text, "flowwright_tool_calls_total")
	assert.Contains(t, text, "flowwright_tokens_total")
	assert.Contains(t, text, "flowwright_validation_failures_total")
	assert.Contains(t, text, "flowwright_session_duration_seconds")
	assert.Contains(t, text, `outcome="success"`)
}

func TestProvider_IsolatedRegistries(t *testing.T) {
	// Two providers in one process must not collide on metric
	// registration.
	first, err := New(context.Background(), Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Shutdown(context.Background()) })

	second, err := New(context.Background(), Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Shutdown(context.Background()) })

	first.Metrics().RecordToolCall(context.Background(), "add_node", true)

	srv := httptest.NewServer(second.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "add_node")
}
