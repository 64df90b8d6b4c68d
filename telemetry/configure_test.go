/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfigureNoBackend(t *testing.T) {
	reset()
	t.Cleanup(reset)

	p, err := Configure(context.Background(), Settings{ServiceName: "test"})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if got := p.Backend(); got != BackendNone {
		t.Errorf("backend: got = %v, wanted = %v", got, BackendNone)
	}
	if p.Vendor() {
		t.Error("vendor: got = true, wanted = false")
	}
	if p.Tracer() == nil {
		t.Error("tracer: got = nil, wanted = non-nil")
	}

	// Flush and shutdown are no-ops without an export pipeline.
	if err := p.ForceFlush(context.Background()); err != nil {
		t.Errorf("ForceFlush: %v", err)
	}
}

func TestConfigureIdempotent(t *testing.T) {
	reset()
	t.Cleanup(reset)

	first, err := Configure(context.Background(), Settings{ServiceName: "test", Debug: true})
	if err != nil {
		t.Fatalf("first Configure: %v", err)
	}
	if got := first.Backend(); got != BackendStdout {
		t.Errorf("backend: got = %v, wanted = %v", got, BackendStdout)
	}

	// A second call must not build a second export pipeline, even when the
	// settings differ.
	second, err := Configure(context.Background(), Settings{ServiceName: "other"})
	if err != nil {
		t.Fatalf("second Configure: %v", err)
	}
	if first != second {
		t.Errorf("second Configure: got = %p, wanted = %p (same pipeline)", second, first)
	}
}

func TestConfigureExplicitProvider(t *testing.T) {
	reset()
	t.Cleanup(reset)

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	p, err := Configure(context.Background(), Settings{}, WithTracerProvider(tp))
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}

	// Spans from the returned tracer land in the injected provider.
	_, span := p.Tracer().Start(context.Background(), "probe")
	span.End()
	if got := len(exporter.GetSpans()); got != 1 {
		t.Errorf("exported spans: got = %d, wanted = 1", got)
	}
}

func TestConfigureLogfireMissingToken(t *testing.T) {
	reset()
	t.Cleanup(reset)

	if _, err := ConfigureLogfire(context.Background(), Settings{}); !errors.Is(err, ErrMissingToken) {
		t.Errorf("ConfigureLogfire without token: got = %v, wanted = %v", err, ErrMissingToken)
	}
}

func TestConfigureLogfireBackend(t *testing.T) {
	reset()
	t.Cleanup(reset)

	p, err := ConfigureLogfire(context.Background(), Settings{
		LogfireToken: "pylf_v1_us_test",
		ServiceName:  "test",
	})
	if err != nil {
		t.Fatalf("ConfigureLogfire: %v", err)
	}
	if !p.Vendor() {
		t.Error("vendor: got = false, wanted = true")
	}
	if got := p.Backend(); got != BackendLogfire {
		t.Errorf("backend: got = %v, wanted = %v", got, BackendLogfire)
	}
}

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[string]string
	}{
		{"empty", "", nil},
		{"single", "x-honeycomb-team=KEY", map[string]string{"x-honeycomb-team": "KEY"}},
		{"multiple", "a=b,c=d", map[string]string{"a": "b", "c": "d"}},
		{"whitespace", " a=b , c=d ", map[string]string{"a": "b", "c": "d"}},
		{"value with equals", "a=b,c=d=e", map[string]string{"a": "b", "c": "d=e"}},
		{"malformed pair skipped", "a=b,nope,c=d", map[string]string{"a": "b", "c": "d"}},
		{"all malformed", "nope", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseHeaders(context.Background(), tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parseHeaders(%q) (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestLoadSettings(t *testing.T) {
	t.Setenv("LOGFIRE_TOKEN", "tok")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "https://api.honeycomb.io")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "x-honeycomb-team=KEY")
	t.Setenv("CLAUDE_TELEMETRY_DEBUG", "true")

	s, err := LoadSettings(context.Background())
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}

	want := Settings{
		LogfireToken: "tok",
		OTLPEndpoint: "https://api.honeycomb.io",
		OTLPHeaders:  "x-honeycomb-team=KEY",
		Debug:        true,
		ServiceName:  "claude-agents",
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("settings (-want +got):\n%s", diff)
	}
}
