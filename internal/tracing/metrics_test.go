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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/flowwright/flowwright/pkg/llm"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name == name {
				return m
			}
		}
	}
	t.Fatalf("metric %q not found", name)
	return metricdata.Metrics{}
}

func attrString(t *testing.T, set attribute.Set, key string) string {
	t.Helper()

	v, ok := set.Value(attribute.Key(key))
	require.True(t, ok, "attribute %q not found", key)
	return v.AsString()
}

func TestMetrics_RecordSession(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	usage := llm.TokenUsage{InputTokens: 900, OutputTokens: 120, TotalTokens: 1020}
	m.RecordSession(ctx, true, 4, 1, usage, 2*time.Second)

	rm := collect(t, reader)

	sessions, ok := findMetric(t, rm, "flowwright_sessions_total").Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sessions.DataPoints, 1)
	assert.Equal(t, int64(1), sessions.DataPoints[0].Value)
	assert.Equal(t, "success", attrString(t, sessions.DataPoints[0].Attributes, "outcome"))

	turns, ok := findMetric(t, rm, "flowwright_turns_total").Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, turns.DataPoints, 1)
	assert.Equal(t, int64(4), turns.DataPoints[0].Value)

	retries, ok := findMetric(t, rm, "flowwright_retries_total").Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, retries.DataPoints, 1)
	assert.Equal(t, int64(1), retries.DataPoints[0].Value)

	tokens, ok := findMetric(t, rm, "flowwright_tokens_total").Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, tokens.DataPoints, 2)
	byDirection := map[string]int64{}
	for _, dp := range tokens.DataPoints {
		byDirection[attrString(t, dp.Attributes, "direction")] = dp.Value
	}
	assert.Equal(t, int64(900), byDirection["input"])
	assert.Equal(t, int64(120), byDirection["output"])

	duration, ok := findMetric(t, rm, "flowwright_session_duration_seconds").Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, duration.DataPoints, 1)
	assert.Equal(t, uint64(1), duration.DataPoints[0].Count)
	assert.InDelta(t, 2.0, duration.DataPoints[0].Sum, 0.001)
}

func TestMetrics_RecordSession_Failure(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordSession(context.Background(), false, 20, 3, llm.TokenUsage{}, 30*time.Second)

	rm := collect(t, reader)
	sessions, ok := findMetric(t, rm, "flowwright_sessions_total").Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sessions.DataPoints, 1)
	assert.Equal(t, "failure", attrString(t, sessions.DataPoints[0].Attributes, "outcome"))
}

func TestMetrics_RecordToolCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordToolCall(ctx, "add_node", true)
	m.RecordToolCall(ctx, "add_node", true)
	m.RecordToolCall(ctx, "connect_nodes", false)

	rm := collect(t, reader)
	calls, ok := findMetric(t, rm, "flowwright_tool_calls_total").Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, calls.DataPoints, 2)

	var total int64
	for _, dp := range calls.DataPoints {
		total += dp.Value
		if attrString(t, dp.Attributes, "tool") == "add_node" {
			assert.Equal(t, int64(2), dp.Value)
			assert.Equal(t, "success", attrString(t, dp.Attributes, "outcome"))
		} else {
			assert.Equal(t, "connect_nodes", attrString(t, dp.Attributes, "tool"))
			assert.Equal(t, "failure", attrString(t, dp.Attributes, "outcome"))
		}
	}
	assert.Equal(t, int64(3), total)
}

func TestMetrics_RecordValidationFailures(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordValidationFailures(ctx, "local", 3)
	m.RecordValidationFailures(ctx, "remote", 1)
	m.RecordValidationFailures(ctx, "local", 0) // ignored

	rm := collect(t, reader)
	failures, ok := findMetric(t, rm, "flowwright_validation_failures_total").Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, failures.DataPoints, 2)

	bySource := map[string]int64{}
	for _, dp := range failures.DataPoints {
		bySource[attrString(t, dp.Attributes, "source")] = dp.Value
	}
	assert.Equal(t, int64(3), bySource["local"])
	assert.Equal(t, int64(1), bySource["remote"])
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics

	// Must not panic.
	m.RecordSession(context.Background(), true, 1, 0, llm.TokenUsage{}, time.Second)
	m.RecordToolCall(context.Background(), "add_node", true)
	m.RecordValidationFailures(context.Background(), "local", 2)
}
