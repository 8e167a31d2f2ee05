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
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/flowwright/flowwright/pkg/llm"
)

// Metrics records Prometheus counters and histograms for workflow
// generation. A nil *Metrics is a no-op recorder, so call sites need no
// enabled checks.
type Metrics struct {
	sessionsTotal      metric.Int64Counter
	turnsTotal         metric.Int64Counter
	retriesTotal       metric.Int64Counter
	toolCallsTotal     metric.Int64Counter
	validationFailures metric.Int64Counter
	tokensTotal        metric.Int64Counter
	sessionDuration    metric.Float64Histogram
}

// NewMetrics registers the generation instruments on the given meter
// provider.
func NewMetrics(meterProvider metric.MeterProvider) (*Metrics, error) {
	meter := meterProvider.Meter("flowwright")

	m := &Metrics{}

	var err error

	m.sessionsTotal, err = meter.Int64Counter(
		"flowwright_sessions_total",
		metric.WithDescription("Total number of generation sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	m.turnsTotal, err = meter.Int64Counter(
		"flowwright_turns_total",
		metric.WithDescription("Total number of model turns consumed"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		return nil, err
	}

	m.retriesTotal, err = meter.Int64Counter(
		"flowwright_retries_total",
		metric.WithDescription("Total number of validation repair attempts"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, err
	}

	m.toolCallsTotal, err = meter.Int64Counter(
		"flowwright_tool_calls_total",
		metric.WithDescription("Total number of tool calls executed"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	m.validationFailures, err = meter.Int64Counter(
		"flowwright_validation_failures_total",
		metric.WithDescription("Total number of validation errors reported"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	m.tokensTotal, err = meter.Int64Counter(
		"flowwright_tokens_total",
		metric.WithDescription("Total number of tokens processed"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, err
	}

	m.sessionDuration, err = meter.Float64Histogram(
		"flowwright_session_duration_seconds",
		metric.WithDescription("Generation session duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordSession records the outcome of a completed generation session.
func (m *Metrics) RecordSession(ctx context.Context, success bool, turns, retries int, usage llm.TokenUsage, duration time.Duration) {
	if m == nil {
		return
	}

	outcome := []attribute.KeyValue{
		attribute.String("outcome", outcomeLabel(success)),
	}

	m.sessionsTotal.Add(ctx, 1, metric.WithAttributes(outcome...))
	m.turnsTotal.Add(ctx, int64(turns))
	m.retriesTotal.Add(ctx, int64(retries))
	m.tokensTotal.Add(ctx, int64(usage.InputTokens),
		metric.WithAttributes(attribute.String("direction", "input")))
	m.tokensTotal.Add(ctx, int64(usage.OutputTokens),
		metric.WithAttributes(attribute.String("direction", "output")))
	m.sessionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(outcome...))
}

// RecordToolCall records a single tool execution.
func (m *Metrics) RecordToolCall(ctx context.Context, tool string, success bool) {
	if m == nil {
		return
	}

	m.toolCallsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("outcome", outcomeLabel(success)),
	))
}

// RecordValidationFailures records validation errors from one check.
// The source is "local" for the offline validator and "remote" for the
// n8n API.
func (m *Metrics) RecordValidationFailures(ctx context.Context, source string, count int) {
	if m == nil || count <= 0 {
		return
	}

	m.validationFailures.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("source", source),
	))
}

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
