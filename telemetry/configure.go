/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// tracerName is the instrumentation scope for all claudetel spans.
	tracerName = "chainguard.ai.claudetel"

	// logfireEndpoint is the Logfire OTLP trace ingestion URL.
	logfireEndpoint = "https://logfire-api.pydantic.dev/v1/traces"
)

// ErrMissingToken is returned when the Logfire backend is requested without
// a token. A silently disabled backend is worse than a startup failure.
var ErrMissingToken = errors.New("logfire token is not set")

// Backend identifies which span export pipeline was configured.
type Backend string

const (
	BackendLogfire Backend = "logfire"
	BackendOTLP    Backend = "otlp"
	BackendStdout  Backend = "stdout"
	BackendNone    Backend = "none"
)

// Pipeline is a configured tracer/export pipeline.
type Pipeline struct {
	provider oteltrace.TracerProvider
	sdk      *sdktrace.TracerProvider // nil for injected or no-op providers
	backend  Backend
}

// Tracer returns the tracer all instrumentation should use.
func (p *Pipeline) Tracer() oteltrace.Tracer {
	return p.provider.Tracer(tracerName, oteltrace.WithInstrumentationVersion("1.0.0"))
}

// Vendor reports whether the Logfire backend is active, meaning session
// spans should carry the vendor attribute shape.
func (p *Pipeline) Vendor() bool {
	return p.backend == BackendLogfire
}

// Backend returns the configured backend kind.
func (p *Pipeline) Backend() Backend {
	return p.backend
}

// ForceFlush synchronously drains queued spans. A no-op for injected or
// disabled pipelines.
func (p *Pipeline) ForceFlush(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	return p.sdk.ForceFlush(ctx)
}

// Shutdown flushes and tears down the export pipeline.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	return p.sdk.Shutdown(ctx)
}

// Option configures Configure.
type Option func(*options)

type options struct {
	provider oteltrace.TracerProvider
}

// WithTracerProvider supplies an already-configured provider. It is used
// as-is: no exporter is built and nothing is registered globally. This is
// the test-injection path.
func WithTracerProvider(tp oteltrace.TracerProvider) Option {
	return func(o *options) {
		o.provider = tp
	}
}

// Process-wide configuration guard. Configure must be safe to call more
// than once without registering duplicate exporters.
var (
	mu         sync.Mutex
	configured *Pipeline
)

// Configure builds the span export pipeline from settings.
//
// Selection order: an explicit provider wins; then a Logfire token; then a
// generic OTLP endpoint; then stdout when debug is set; else a no-op
// pipeline so the system stays usable with no backend at all. Repeated
// calls return the pipeline built by the first one.
func Configure(ctx context.Context, s Settings, opts ...Option) (*Pipeline, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.provider != nil {
		return &Pipeline{provider: o.provider, backend: BackendNone}, nil
	}

	mu.Lock()
	defer mu.Unlock()
	if configured != nil {
		return configured, nil
	}

	log := clog.FromContext(ctx)

	var (
		p   *Pipeline
		err error
	)
	switch {
	case s.LogfireToken != "":
		p, err = configureLogfire(ctx, s)
	case s.OTLPEndpoint != "":
		p, err = configureOTLP(ctx, s)
	case s.Debug:
		p, err = configureStdout(s)
	default:
		log.Warn("No telemetry backend configured, spans will not be exported")
		p = &Pipeline{provider: noop.NewTracerProvider(), backend: BackendNone}
	}
	if err != nil {
		return nil, err
	}

	if p.sdk != nil {
		otel.SetTracerProvider(p.sdk)
	}
	log.With("backend", p.backend).Info("Telemetry configured")

	configured = p
	return p, nil
}

// ConfigureLogfire builds a Logfire-backed pipeline, failing when the token
// is absent. Use this when the vendor backend was explicitly requested and
// falling back silently would be wrong.
func ConfigureLogfire(ctx context.Context, s Settings) (*Pipeline, error) {
	if s.LogfireToken == "" {
		return nil, ErrMissingToken
	}
	return Configure(ctx, s)
}

func configureLogfire(ctx context.Context, s Settings) (*Pipeline, error) {
	if s.LogfireToken == "" {
		return nil, ErrMissingToken
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(logfireEndpoint),
		otlptracehttp.WithHeaders(map[string]string{
			"Authorization": s.LogfireToken,
		}))
	if err != nil {
		return nil, fmt.Errorf("initializing Logfire exporter: %w", err)
	}

	sdk := newProvider(exporter, s)
	return &Pipeline{provider: sdk, sdk: sdk, backend: BackendLogfire}, nil
}

func configureOTLP(ctx context.Context, s Settings) (*Pipeline, error) {
	endpoint := strings.TrimSpace(s.OTLPEndpoint)

	exporterOpts := []otlptracehttp.Option{}
	if strings.Contains(endpoint, "://") {
		// Endpoint URLs carry explicit transport intent.
		if strings.HasPrefix(endpoint, "http://") {
			exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
		}
		exporterOpts = append(exporterOpts, otlptracehttp.WithEndpointURL(strings.TrimSuffix(endpoint, "/")+"/v1/traces"))
	} else {
		exporterOpts = append(exporterOpts, otlptracehttp.WithEndpoint(endpoint))
	}
	if headers := parseHeaders(ctx, s.OTLPHeaders); headers != nil {
		exporterOpts = append(exporterOpts, otlptracehttp.WithHeaders(headers))
	}

	exporter, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("initializing OTLP exporter: %w", err)
	}

	sdk := newProvider(exporter, s)
	return &Pipeline{provider: sdk, sdk: sdk, backend: BackendOTLP}, nil
}

func configureStdout(s Settings) (*Pipeline, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("initializing stdout exporter: %w", err)
	}

	sdk := newProvider(exporter, s)
	return &Pipeline{provider: sdk, sdk: sdk, backend: BackendStdout}, nil
}

func newProvider(exporter sdktrace.SpanExporter, s Settings) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", s.ServiceName),
		)),
	)
}

// reset clears the configuration guard. Test use only.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	if configured != nil && configured.sdk != nil {
		_ = configured.sdk.Shutdown(context.Background())
	}
	configured = nil
}
