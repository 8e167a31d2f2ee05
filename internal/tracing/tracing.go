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
	"errors"
	"fmt"
	"io"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/flowwright/flowwright/internal/tracing/export"
	pkgerrors "github.com/flowwright/flowwright/pkg/errors"
)

// Supported values for Config.Protocol.
const (
	ProtocolGRPC   = "grpc"
	ProtocolHTTP   = "http"
	ProtocolStdout = "stdout"
)

// Config controls span export and service identity.
type Config struct {
	// Enabled activates span export. When false the provider still
	// collects metrics but Tracer returns a no-op tracer.
	Enabled bool

	// Endpoint is the OTLP receiver address (host:port). Empty falls
	// back to the exporter's default (localhost:4317 for gRPC,
	// localhost:4318 for HTTP).
	Endpoint string

	// Protocol selects the exporter: ProtocolGRPC, ProtocolHTTP or
	// ProtocolStdout. Default: ProtocolGRPC.
	Protocol string

	// Insecure disables TLS on OTLP connections.
	Insecure bool

	// SampleRate is the head sampling ratio in [0, 1]. Values outside
	// the range are clamped. Default: 1.0 when zero-valued via
	// config defaults; a literal 0 samples nothing.
	SampleRate float64

	// ServiceName identifies this process in traces. Default: flowwright.
	ServiceName string

	// ServiceVersion is the build version stamped on the resource.
	// Default: dev.
	ServiceVersion string

	// ConsoleWriter receives spans when Protocol is ProtocolStdout.
	// Default: os.Stderr, so trace output never mixes with command
	// output on stdout.
	ConsoleWriter io.Writer
}

// Provider owns the tracer provider, the meter provider and the
// Prometheus registry they report into. Each Provider has its own
// registry, so several can coexist in one process without duplicate
// collector registrations.
type Provider struct {
	tp       *sdktrace.TracerProvider
	mp       *sdkmetric.MeterProvider
	registry *promclient.Registry
	metrics  *Metrics
}

// New builds a Provider from cfg. Metrics collection is always set up;
// span export only when cfg.Enabled. When spans are enabled the tracer
// provider is also installed as the process-global one so libraries
// that call otel.Tracer participate in the same traces.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "flowwright"
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "dev"
	}

	// Empty schema URL: merging two resources with different schema
	// URLs is an error, and resource.Default carries its own.
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	registry := promclient.NewRegistry()
	reader, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)

	metrics, err := NewMetrics(mp)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	p := &Provider{
		mp:       mp,
		registry: registry,
		metrics:  metrics,
	}

	if !cfg.Enabled {
		return p, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	p.tp = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg.SampleRate)),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(p.tp)

	return p, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	protocol := cfg.Protocol
	if protocol == "" {
		protocol = ProtocolGRPC
	}

	switch protocol {
	case ProtocolGRPC:
		return export.NewOTLPExporter(ctx, export.OTLPConfig{
			Endpoint: cfg.Endpoint,
			Insecure: cfg.Insecure,
		})
	case ProtocolHTTP:
		return export.NewOTLPHTTPExporter(ctx, export.OTLPHTTPConfig{
			Endpoint: cfg.Endpoint,
			Insecure: cfg.Insecure,
		})
	case ProtocolStdout:
		return export.NewConsoleExporter(export.ConsoleConfig{
			Writer: cfg.ConsoleWriter,
		})
	default:
		return nil, &pkgerrors.ConfigError{
			Key:    "tracing.protocol",
			Reason: fmt.Sprintf("unknown protocol %q (want grpc, http or stdout)", protocol),
		}
	}
}

func newSampler(rate float64) sdktrace.Sampler {
	if rate >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	if rate <= 0 {
		return sdktrace.ParentBased(sdktrace.NeverSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

// Tracer returns a tracer for the given instrumentation scope. When
// span export is disabled the tracer is a no-op.
func (p *Provider) Tracer(name string) trace.Tracer {
	if p.tp == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return p.tp.Tracer(name)
}

// Metrics returns the session metrics recorder.
func (p *Provider) Metrics() *Metrics {
	return p.metrics
}

// Handler serves the provider's Prometheus registry in text exposition
// format, suitable for mounting at /metrics.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// ForceFlush exports all pending spans and metrics synchronously.
func (p *Provider) ForceFlush(ctx context.Context) error {
	var errs []error
	if p.tp != nil {
		errs = append(errs, p.tp.ForceFlush(ctx))
	}
	errs = append(errs, p.mp.ForceFlush(ctx))
	return errors.Join(errs...)
}

// Shutdown flushes pending telemetry and releases exporter resources.
// The provider is unusable afterwards.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tp != nil {
		errs = append(errs, p.tp.Shutdown(ctx))
	}
	errs = append(errs, p.mp.Shutdown(ctx))
	return errors.Join(errs...)
}
