/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package logfire

import (
	"context"
	"encoding/json"
	"sort"

	"chainguard.dev/claudetel/payload"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Message is one entry in the conversation log.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Record carries everything the Logfire LLM panel needs for one session.
type Record struct {
	Model        string
	Messages     []Message
	Response     string
	ToolsUsed    []string
	InputTokens  int64
	OutputTokens int64
	CostUSD      *float64
}

// requestData mirrors the shape Logfire expects under the request_data
// attribute.
type requestData struct {
	Model    string      `json:"model"`
	Messages []Message   `json:"messages"`
	Tools    []toolEntry `json:"tools,omitempty"`
}

type toolEntry struct {
	Name string `json:"name"`
}

type responseData struct {
	Message Message        `json:"message"`
	Usage   map[string]any `json:"usage,omitempty"`
}

// FormatLLM shapes the session span's attributes for Logfire's LLM UI:
// a JSON request_data blob (model + messages + tool list), a JSON
// response_data blob when a final response exists, and flat llm.* mirrors
// of the same data for viewers that do not parse JSON.
//
// Formatting never fails the caller. Anything that cannot be encoded is
// logged and skipped, keeping whatever attributes were already set.
func FormatLLM(ctx context.Context, span oteltrace.Span, rec Record) {
	log := clog.FromContext(ctx)

	req := requestData{
		Model:    rec.Model,
		Messages: rec.Messages,
		Tools:    dedupeTools(rec.ToolsUsed),
	}
	if b, err := json.Marshal(req); err != nil {
		log.With("error", err).Warn("Failed to format request_data for Logfire")
	} else {
		span.SetAttributes(attribute.String("request_data", string(b)))
	}
	span.SetAttributes(attribute.String("llm.request.model", rec.Model))

	if rec.Response != "" {
		resp := responseData{
			Message: Message{Role: "assistant", Content: rec.Response},
		}
		// The usage object is omitted entirely when no tokens were counted.
		if rec.InputTokens > 0 || rec.OutputTokens > 0 {
			usage := map[string]any{}
			if rec.InputTokens > 0 {
				usage["input_tokens"] = rec.InputTokens
			}
			if rec.OutputTokens > 0 {
				usage["output_tokens"] = rec.OutputTokens
			}
			if rec.InputTokens > 0 && rec.OutputTokens > 0 {
				usage["total_tokens"] = rec.InputTokens + rec.OutputTokens
			}
			resp.Usage = usage
		}
		if b, err := json.Marshal(resp); err != nil {
			log.With("error", err).Warn("Failed to format response_data for Logfire")
		} else {
			span.SetAttributes(attribute.String("response_data", string(b)))
		}
	}

	span.SetAttributes(attribute.String("span.kind", "LLM"))
	span.SetAttributes(attribute.String("logfire.span_type", "llm"))

	if rec.InputTokens > 0 {
		span.SetAttributes(attribute.Int64("llm.usage.input_tokens", rec.InputTokens))
	}
	if rec.OutputTokens > 0 {
		span.SetAttributes(attribute.Int64("llm.usage.output_tokens", rec.OutputTokens))
	}
	if rec.CostUSD != nil {
		span.SetAttributes(attribute.Float64("llm.usage.cost_usd", *rec.CostUSD))
	}

	if len(rec.ToolsUsed) > 0 {
		span.SetAttributes(attribute.Int("llm.tools.count", len(rec.ToolsUsed)))
		span.SetAttributes(attribute.StringSlice("llm.tools.names", rec.ToolsUsed))
	}
}

// StartToolSpan opens a child span for a tool invocation in Logfire shape,
// projecting each input entry to a tool.input.<key> attribute.
func StartToolSpan(ctx context.Context, tracer oteltrace.Tracer, toolName string, toolInput map[string]any) (context.Context, oteltrace.Span) {
	ctx, span := tracer.Start(ctx, "🔧 "+toolName)
	span.SetAttributes(attribute.String("tool.name", toolName))

	for key, val := range toolInput {
		span.SetAttributes(payload.Of(val).Attr("tool.input." + key))
	}

	return ctx, span
}

// dedupeTools returns a sorted, unique tool entry list. Sorting keeps the
// request_data blob stable across sessions that used the same tools.
func dedupeTools(names []string) []toolEntry {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(names))
	uniq := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			uniq = append(uniq, n)
		}
	}
	sort.Strings(uniq)

	out := make([]toolEntry, 0, len(uniq))
	for _, n := range uniq {
		out = append(out, toolEntry{Name: n})
	}
	return out
}
