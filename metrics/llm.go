/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// AttributeEnricher enriches metric attributes with additional context.
// The enricher receives base attributes (model, tool) and returns an
// enriched set, letting applications attach their own dimensions without
// coupling the telemetry layer to a specific deployment.
type AttributeEnricher func(ctx context.Context, baseAttrs []attribute.KeyValue) []attribute.KeyValue

// LLM provides OpenTelemetry metrics for the instrumented agent session:
// token usage counters and a tool-call counter. Counter creation degrades
// gracefully to no-op instruments so metric setup can never take down the
// session it observes.
type LLM struct {
	meter        metric.Meter
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	toolCalls    metric.Int64Counter
	attrEnricher AttributeEnricher
}

// NewLLM creates an LLM metrics instance on the named meter. The meter name
// should be shared across the process (e.g. "chainguard.ai.claudetel") with
// the model name serving as a dimension on the recorded metrics.
func NewLLM(meterName string) *LLM {
	meter := otel.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))

	inputTokens, err := meter.Int64Counter("llm.tokens.input",
		metric.WithDescription("The number of input tokens consumed"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create input tokens counter, metrics will be disabled", "error", err, "meter", meterName)
		inputTokens = noop.Int64Counter{}
	}

	outputTokens, err := meter.Int64Counter("llm.tokens.output",
		metric.WithDescription("The number of output tokens produced"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create output tokens counter, metrics will be disabled", "error", err, "meter", meterName)
		outputTokens = noop.Int64Counter{}
	}

	toolCalls, err := meter.Int64Counter("llm.tool.calls",
		metric.WithDescription("The number of tool invocations observed"),
		metric.WithUnit("{calls}"))
	if err != nil {
		slog.Warn("Failed to create tool call counter, metrics will be disabled", "error", err, "meter", meterName)
		toolCalls = noop.Int64Counter{}
	}

	return &LLM{
		meter:        meter,
		inputTokens:  inputTokens,
		outputTokens: outputTokens,
		toolCalls:    toolCalls,
	}
}

// SetAttributeEnricher sets the attribute enricher for this metrics instance.
func (m *LLM) SetAttributeEnricher(enricher AttributeEnricher) {
	m.attrEnricher = enricher
}

// RecordTokens records input and output token usage for one turn.
func (m *LLM) RecordTokens(ctx context.Context, model string, inputTokens, outputTokens int64, attrs ...attribute.KeyValue) {
	baseAttrs := []attribute.KeyValue{
		attribute.String("model", model),
	}
	if m.attrEnricher != nil {
		baseAttrs = m.attrEnricher(ctx, baseAttrs)
	}
	baseAttrs = append(baseAttrs, attrs...)

	m.inputTokens.Add(ctx, inputTokens, metric.WithAttributes(baseAttrs...))
	m.outputTokens.Add(ctx, outputTokens, metric.WithAttributes(baseAttrs...))
}

// RecordToolCall records a single tool invocation.
func (m *LLM) RecordToolCall(ctx context.Context, model, toolName string, attrs ...attribute.KeyValue) {
	baseAttrs := []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("tool", toolName),
	}
	if m.attrEnricher != nil {
		baseAttrs = m.attrEnricher(ctx, baseAttrs)
	}
	baseAttrs = append(baseAttrs, attrs...)

	m.toolCalls.Add(ctx, 1, metric.WithAttributes(baseAttrs...))
}
