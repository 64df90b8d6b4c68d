/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package hooks turns agent lifecycle callbacks into OpenTelemetry spans.
//
// A Controller tracks one conversation: the prompt-submit callback opens a
// session span, each tool call runs inside a child span correlated by call
// id, completed assistant messages fold token usage into running totals,
// and CompleteSession closes the span and flushes the export pipeline.
//
// # Usage
//
//	ctrl := hooks.New(pipeline.Tracer(),
//	    hooks.WithLogfire(pipeline.Vendor()),
//	    hooks.WithMetrics(llm),
//	    hooks.WithFlusher(pipeline))
//
//	if err := ctrl.OnUserPromptSubmit(ctx, hooks.PromptSubmitted{
//	    Prompt: prompt,
//	    Model:  model,
//	}); err != nil {
//	    return err
//	}
//	defer ctrl.CompleteSession(ctx)
//
//	key, err := ctrl.OnPreToolUse(ctx, "read_file", input, callID)
//	// ... run the tool ...
//	ctrl.OnPostToolUse(ctx, "read_file", output, key)
//
// Callbacks must be delivered sequentially; the controller holds no locks.
// Create one Controller per conversation.
package hooks
