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

package export

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewConsoleExporter_WritesSpans(t *testing.T) {
	var buf bytes.Buffer

	exporter, err := NewConsoleExporter(ConsoleConfig{Writer: &buf})
	require.NoError(t, err)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	tracer := tp.Tracer("test")

	_, span := tracer.Start(context.Background(), "build-session")
	span.End()

	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "build-session")
}

func TestNewConsoleExporter_PrettyPrint(t *testing.T) {
	var buf bytes.Buffer

	exporter, err := NewConsoleExporter(ConsoleConfig{Writer: &buf, PrettyPrint: true})
	require.NoError(t, err)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	_, span := tp.Tracer("test").Start(context.Background(), "pretty")
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))

	// Indented output spans multiple lines per span.
	assert.Greater(t, strings.Count(buf.String(), "\n"), 1)
}

func TestNewConsoleExporter_DefaultWriter(t *testing.T) {
	exporter, err := NewConsoleExporter(ConsoleConfig{})
	require.NoError(t, err)
	require.NotNil(t, exporter)
}

func TestNewOTLPExporter(t *testing.T) {
	tests := []struct {
		name string
		cfg  OTLPConfig
	}{
		{
			name: "insecure with endpoint",
			cfg:  OTLPConfig{Endpoint: "localhost:4317", Insecure: true},
		},
		{
			name: "default TLS",
			cfg:  OTLPConfig{Endpoint: "collector.example.com:4317"},
		},
		{
			name: "headers",
			cfg: OTLPConfig{
				Endpoint: "localhost:4317",
				Insecure: true,
				Headers:  map[string]string{"x-api-key": "secret"},
			},
		},
		{
			name: "default endpoint",
			cfg:  OTLPConfig{Insecure: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// The gRPC connection is lazy, so construction succeeds
			// without a listening collector.
			exporter, err := NewOTLPExporter(context.Background(), tt.cfg)
			require.NoError(t, err)
			require.NotNil(t, exporter)
			_ = exporter.Shutdown(context.Background())
		})
	}
}

func TestNewOTLPHTTPExporter(t *testing.T) {
	tests := []struct {
		name string
		cfg  OTLPHTTPConfig
	}{
		{
			name: "insecure with endpoint",
			cfg:  OTLPHTTPConfig{Endpoint: "localhost:4318", Insecure: true},
		},
		{
			name: "default TLS with path",
			cfg:  OTLPHTTPConfig{Endpoint: "api.example.com", URLPath: "/otlp/v1/traces"},
		},
		{
			name: "headers",
			cfg: OTLPHTTPConfig{
				Endpoint: "localhost:4318",
				Insecure: true,
				Headers:  map[string]string{"authorization": "Bearer tok"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter, err := NewOTLPHTTPExporter(context.Background(), tt.cfg)
			require.NoError(t, err)
			require.NotNil(t, exporter)
			_ = exporter.Shutdown(context.Background())
		})
	}
}
