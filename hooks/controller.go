/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package hooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chainguard.dev/claudetel/logfire"
	"chainguard.dev/claudetel/metrics"
	"chainguard.dev/claudetel/payload"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var (
	// ErrSessionActive is returned when a prompt is submitted while a
	// session is already open.
	ErrSessionActive = errors.New("a telemetry session is already active")

	// ErrNoSession is returned when a hook that requires an open session
	// runs while the controller is idle.
	ErrNoSession = errors.New("no telemetry session is active")
)

const (
	// promptTitleLen bounds the prompt prefix used as the session span name.
	promptTitleLen = 50

	// eventContentCap bounds tool input/output content attached to events.
	eventContentCap = 1000
)

// Flusher drains queued spans to the export pipeline. Satisfied by
// telemetry.Pipeline.
type Flusher interface {
	ForceFlush(ctx context.Context) error
}

// PromptSubmitted is the payload of the prompt-submit hook.
type PromptSubmitted struct {
	Prompt    string
	Model     string
	SessionID string

	// MCPServers lists the names of configured MCP servers, recorded as
	// session metadata. The servers themselves are the runtime's business.
	MCPServers []string
}

// Usage carries the incremental token deltas for one turn.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Controller receives lifecycle callbacks from the agent runtime and drives
// span creation, mutation, and closure for one conversation.
//
// A Controller serves exactly one conversation at a time: hook callbacks
// are delivered sequentially by the runtime's event loop, so the controller
// holds no locks. It is not safe for concurrent use by multiple sessions;
// create one instance per conversation.
type Controller struct {
	tracer  oteltrace.Tracer
	logfire bool
	metrics *metrics.LLM
	flusher Flusher

	session   *session
	lastStamp int64
}

// session is the per-conversation state: one open session span, its metric
// counters, and the correlation table of in-flight tool spans.
type session struct {
	ctx  context.Context
	span oteltrace.Span

	prompt string
	model  string
	id     string
	start  time.Time

	inputTokens  int64
	outputTokens int64
	toolCount    int
	turns        int

	messages  []logfire.Message
	toolsUsed []string
	table     spanTable
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogfire toggles vendor-shaped span attributes for the Logfire LLM UI.
func WithLogfire(enabled bool) Option {
	return func(c *Controller) {
		c.logfire = enabled
	}
}

// WithMetrics attaches token and tool-call counters.
func WithMetrics(m *metrics.LLM) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithFlusher attaches the export pipeline flushed at session completion.
func WithFlusher(f Flusher) Option {
	return func(c *Controller) {
		c.flusher = f
	}
}

// New creates a Controller for a single conversation.
func New(tracer oteltrace.Tracer, opts ...Option) *Controller {
	c := &Controller{tracer: tracer}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Active reports whether a session is currently open.
func (c *Controller) Active() bool {
	return c.session != nil
}

// OnUserPromptSubmit opens the session span for a submitted prompt. It
// returns ErrSessionActive when a session is already open: a stale session
// indicates the caller skipped CompleteSession, and finalizing it here
// would silently paper over the contract breach.
func (c *Controller) OnUserPromptSubmit(ctx context.Context, ev PromptSubmitted) error {
	if c.session != nil {
		return fmt.Errorf("prompt submitted for session %q: %w", ev.SessionID, ErrSessionActive)
	}

	log := clog.FromContext(ctx)

	spanCtx, span := c.tracer.Start(ctx, "🤖 "+payload.Truncate(ev.Prompt, promptTitleLen))
	span.SetAttributes(
		attribute.String("prompt", ev.Prompt),
		attribute.String("model", ev.Model),
		attribute.String("session.id", ev.SessionID),
	)
	if len(ev.MCPServers) > 0 {
		span.SetAttributes(attribute.StringSlice("mcp.servers", ev.MCPServers))
	}
	span.AddEvent("👤 User prompt submitted",
		oteltrace.WithAttributes(attribute.String("prompt", payload.Truncate(ev.Prompt, eventContentCap))))

	c.session = &session{
		ctx:    spanCtx,
		span:   span,
		prompt: ev.Prompt,
		model:  ev.Model,
		id:     ev.SessionID,
		start:  time.Now(),
		messages: []logfire.Message{
			{Role: "user", Content: ev.Prompt},
		},
	}

	log.Infof("🤖 %s", ev.Prompt)
	log.Info("  👤 User prompt submitted")
	return nil
}

// OnPreToolUse opens a child span for a tool about to run and returns the
// correlation key the runtime should echo back on completion. When the
// runtime supplies no call id, the key is synthesized from the tool name
// and a monotonic timestamp; that form is unique for sequential calls but
// cannot pair correctly when the same tool runs concurrently.
func (c *Controller) OnPreToolUse(ctx context.Context, toolName string, toolInput map[string]any, toolCallID string) (string, error) {
	if c.session == nil {
		return "", fmt.Errorf("pre-tool-use for %q: %w", toolName, ErrNoSession)
	}

	log := clog.FromContext(ctx)
	sess := c.session

	var span oteltrace.Span
	if c.logfire {
		_, span = logfire.StartToolSpan(sess.ctx, c.tracer, toolName, toolInput)
	} else {
		_, span = c.tracer.Start(sess.ctx, "tool."+toolName)
		span.SetAttributes(attribute.String("tool.name", toolName))
		for key, val := range toolInput {
			span.SetAttributes(payload.Of(val).Attr("tool.input." + key))
		}
	}
	span.AddEvent("Tool input",
		oteltrace.WithAttributes(attribute.String("input", payload.EncodeJSON(toolInput, eventContentCap))))

	key := toolCallID
	if key == "" {
		key = fmt.Sprintf("%s_%d", toolName, c.nextStamp())
	}
	sess.table.insert(key, span)

	sess.toolCount++
	sess.toolsUsed = append(sess.toolsUsed, toolName)
	if c.metrics != nil {
		c.metrics.RecordToolCall(ctx, sess.model, toolName)
	}

	sess.span.AddEvent("Tool call started: "+toolName,
		oteltrace.WithAttributes(attribute.String("tool", toolName)))
	log.Infof("  🔧 Calling tool: %s", toolName)

	return key, nil
}

// OnPostToolUse closes the span opened for the matching pre-tool-use.
// Resolution tries the exact call id first, then falls back to the most
// recent open span for the tool name. A completion that matches nothing is
// logged and dropped: a missing span must never fail the tool call it was
// observing, so no error is returned from this path.
func (c *Controller) OnPostToolUse(ctx context.Context, toolName string, toolOutput any, toolCallID string) {
	log := clog.FromContext(ctx)

	if c.session == nil {
		log.With("tool", toolName).Error("Tool completion arrived with no active session")
		return
	}
	sess := c.session

	key, span, ok := sess.table.lookup(toolCallID, toolName)
	if !ok {
		log.With("tool", toolName).With("tool_id", toolCallID).
			Error("No open span found for tool completion")
		return
	}

	output := payload.EncodeJSON(toolOutput, eventContentCap)
	span.SetAttributes(attribute.String("tool.output", output))

	if msg, failed := errorMessage(toolOutput); failed {
		span.SetAttributes(
			attribute.Bool("tool.error", true),
			attribute.String("tool.error.message", payload.Truncate(msg, payload.MaxAttrLen)),
		)
		span.SetStatus(codes.Error, payload.Truncate(msg, payload.MaxAttrLen))
		log.With("tool", toolName).With("error", msg).Error("Tool reported an error")
	}

	span.AddEvent("Tool response",
		oteltrace.WithAttributes(attribute.String("response", output)))

	// End is terminal; the entry leaves the table in the same step so a
	// span can never be ended twice through this path.
	span.End()
	sess.table.remove(key)

	sess.span.AddEvent("Tool completed: " + toolName)
	log.Infof("  ✅ Tool completed: %s", toolName)
}

// OnMessageComplete folds a finished assistant message into the session:
// token deltas accumulate into the running totals and message content joins
// the conversation log. It is a no-op, not an error, when no session is
// open; completions can arrive after finalization under cancellation races.
func (c *Controller) OnMessageComplete(ctx context.Context, usage *Usage, content string) {
	if c.session == nil {
		return
	}
	sess := c.session

	if usage != nil {
		sess.inputTokens += usage.InputTokens
		sess.outputTokens += usage.OutputTokens
		sess.turns++

		sess.span.SetAttributes(
			attribute.Int64("input_tokens", sess.inputTokens),
			attribute.Int64("output_tokens", sess.outputTokens),
			attribute.Int64("total_tokens", sess.inputTokens+sess.outputTokens),
			attribute.Int("turns", sess.turns),
		)
		// The event carries this turn's deltas, not the running totals.
		sess.span.AddEvent("Turn completed", oteltrace.WithAttributes(
			attribute.Int64("input_tokens", usage.InputTokens),
			attribute.Int64("output_tokens", usage.OutputTokens),
		))

		if c.metrics != nil {
			c.metrics.RecordTokens(ctx, sess.model, usage.InputTokens, usage.OutputTokens)
		}
	}

	if content != "" {
		sess.messages = append(sess.messages, logfire.Message{Role: "assistant", Content: content})
	}
}

// OnPreCompact notes an upcoming context compaction on the session span.
// No state changes.
func (c *Controller) OnPreCompact(ctx context.Context, trigger string, customInstructions string) {
	if c.session == nil {
		return
	}

	c.session.span.AddEvent("Context compaction", oteltrace.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.Bool("custom_instructions", customInstructions != ""),
	))
	clog.FromContext(ctx).With("trigger", trigger).Info("Context compaction requested")
}

// CompleteSession finalizes and exports the open session: final aggregate
// attributes, vendor projection when Logfire is active, a completion event,
// span end, and a best-effort flush. The controller returns to idle even if
// flushing fails; a stuck controller that can never open another session
// would be worse than a lost batch.
func (c *Controller) CompleteSession(ctx context.Context) error {
	if c.session == nil {
		return fmt.Errorf("completing session: %w", ErrNoSession)
	}

	log := clog.FromContext(ctx)
	sess := c.session
	defer func() {
		c.session = nil
	}()

	if leaked := sess.table.len(); leaked > 0 {
		// Their post-tool-use events never arrived; the spans are left
		// unterminated for the exporter rather than guessed closed here.
		log.With("count", leaked).With("keys", sess.table.keys()).
			Warn("Tool spans still open at session completion")
	}

	sess.span.SetAttributes(
		attribute.String("model", sess.model),
		attribute.Int("tools_used", sess.toolCount),
		attribute.StringSlice("tools.names", dedupe(sess.toolsUsed)),
	)

	if c.logfire {
		var response string
		if n := len(sess.messages); n > 0 && sess.messages[n-1].Role == "assistant" {
			response = sess.messages[n-1].Content
		}
		logfire.FormatLLM(ctx, sess.span, logfire.Record{
			Model:        sess.model,
			Messages:     sess.messages,
			Response:     response,
			ToolsUsed:    sess.toolsUsed,
			InputTokens:  sess.inputTokens,
			OutputTokens: sess.outputTokens,
		})
	}

	sess.span.AddEvent("🎉 Agent completed")
	sess.span.End()

	if c.flusher != nil {
		if err := c.flusher.ForceFlush(ctx); err != nil {
			log.With("error", err).Warn("Failed to flush telemetry pipeline")
		}
	}

	duration := time.Since(sess.start)
	log.Info("  🎉 Agent completed")
	log.Infof("Session completed - Tokens: %d in, %d out, Tools called: %d, Duration: %.1fs",
		sess.inputTokens, sess.outputTokens, sess.toolCount, duration.Seconds())

	return nil
}

// nextStamp returns a strictly increasing nanosecond timestamp for
// synthesized correlation keys. Bumping past the previous value keeps keys
// unique even when the clock is too coarse to tick between calls.
func (c *Controller) nextStamp() int64 {
	now := time.Now().UnixNano()
	if now <= c.lastStamp {
		now = c.lastStamp + 1
	}
	c.lastStamp = now
	return now
}

// errorMessage reports whether a tool output structurally indicates
// failure: a map carrying an "error" entry or an isError flag.
func errorMessage(output any) (string, bool) {
	m, ok := output.(map[string]any)
	if !ok {
		return "", false
	}
	if v, ok := m["error"]; ok && v != nil {
		return fmt.Sprintf("%v", v), true
	}
	if v, ok := m["isError"].(bool); ok && v {
		return "tool reported isError", true
	}
	return "", false
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
