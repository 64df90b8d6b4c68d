/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package runner

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"chainguard.dev/claudetel/hooks"
	"chainguard.dev/claudetel/mcpconfig"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/chainguard-dev/clog"
)

// Hooks is the lifecycle callback contract the runner drives. It is
// satisfied by hooks.Controller.
//
// Only OnPreToolUse's result is consumed: the correlation key it returns is
// echoed back to OnPostToolUse so completions pair with their starts.
type Hooks interface {
	OnUserPromptSubmit(ctx context.Context, ev hooks.PromptSubmitted) error
	OnPreToolUse(ctx context.Context, toolName string, toolInput map[string]any, toolCallID string) (string, error)
	OnPostToolUse(ctx context.Context, toolName string, toolOutput any, toolCallID string)
	OnMessageComplete(ctx context.Context, usage *hooks.Usage, content string)
	OnPreCompact(ctx context.Context, trigger string, customInstructions string)
	CompleteSession(ctx context.Context) error
}

// Tool couples a tool definition sent to the model with the handler that
// executes its calls.
type Tool struct {
	Definition anthropic.ToolParam
	Run        func(ctx context.Context, input map[string]any) (map[string]any, error)
}

// Runner drives one Claude conversation and fires telemetry hooks at each
// lifecycle point.
type Runner struct {
	client      anthropic.Client
	hooks       Hooks
	modelName   string
	system      string
	maxTokens   int64
	mcpServers  map[string]mcpconfig.Server
	retryConfig RetryConfig
}

// New creates a Runner with the given Anthropic client and hook receiver.
func New(client anthropic.Client, h Hooks, opts ...Option) (*Runner, error) {
	if h == nil {
		return nil, errors.New("hooks cannot be nil")
	}

	r := &Runner{
		client:      client,
		hooks:       h,
		modelName:   "claude-sonnet-4-20250514",
		maxTokens:   8192,
		retryConfig: DefaultRetryConfig(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return r, nil
}

// Run submits the prompt and drives the conversation until Claude produces
// a final text response, executing registered tool calls along the way.
// The telemetry session is always completed, even when the run fails or
// the context is canceled mid-conversation.
func (r *Runner) Run(ctx context.Context, prompt string, tools map[string]Tool) (string, error) {
	log := clog.FromContext(ctx)

	if err := r.hooks.OnUserPromptSubmit(ctx, hooks.PromptSubmitted{
		Prompt:     prompt,
		Model:      r.modelName,
		SessionID:  newSessionID(),
		MCPServers: serverNames(r.mcpServers),
	}); err != nil {
		return "", err
	}
	defer func() {
		// Completion must survive caller cancellation so the session span
		// and its flush still happen on interrupt.
		if err := r.hooks.CompleteSession(context.WithoutCancel(ctx)); err != nil {
			log.With("error", err).Warn("Failed to complete telemetry session")
		}
	}()

	toolDefs := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		def := tool.Definition
		toolDefs = append(toolDefs, anthropic.ToolUnionParam{OfTool: &def})
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(r.modelName),
		MaxTokens: r.maxTokens,
		Tools:     toolDefs,
		Messages: []anthropic.MessageParam{{
			Role: anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{
				anthropic.NewTextBlock(prompt),
			},
		}},
	}
	if r.system != "" {
		params.System = []anthropic.TextBlockParam{{Text: r.system}}
	}

	for {
		message, err := RetryWithBackoff(ctx, r.retryConfig, "stream_message", isRetryableError, func() (anthropic.Message, error) {
			stream := r.client.Messages.NewStreaming(ctx, params)
			var msg anthropic.Message
			for stream.Next() {
				event := stream.Current()
				if err := msg.Accumulate(event); err != nil {
					return msg, fmt.Errorf("failed to accumulate event: %w", err)
				}
			}
			if err := stream.Err(); err != nil {
				return msg, err
			}
			return msg, nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to stream Claude response: %w", err)
		}

		var toolUseBlocks []anthropic.ToolUseBlock
		var textContent string
		for _, content := range message.Content {
			switch content.Type {
			case "text":
				textContent = content.Text
			case "tool_use":
				toolUseBlocks = append(toolUseBlocks, anthropic.ToolUseBlock{
					ID:    content.ID,
					Name:  content.Name,
					Input: content.Input,
				})
			}
		}

		var usage *hooks.Usage
		if message.Usage.InputTokens > 0 || message.Usage.OutputTokens > 0 {
			usage = &hooks.Usage{
				InputTokens:  message.Usage.InputTokens,
				OutputTokens: message.Usage.OutputTokens,
			}
		}
		r.hooks.OnMessageComplete(ctx, usage, textContent)

		if len(toolUseBlocks) == 0 {
			if textContent == "" {
				return "", errors.New("no content in Claude's response")
			}
			return textContent, nil
		}

		params.Messages = append(params.Messages, message.ToParam())

		var toolResults []anthropic.ContentBlockParamUnion
		for _, toolUse := range toolUseBlocks {
			result, err := r.executeToolCall(ctx, toolUse, tools)
			if err != nil {
				return "", err
			}
			toolResults = append(toolResults, result)
		}
		params.Messages = append(params.Messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRoleUser,
			Content: toolResults,
		})
	}
}

// executeToolCall runs one tool call between its pre and post hooks and
// packages the outcome as a tool_result block for the conversation.
func (r *Runner) executeToolCall(ctx context.Context, toolUse anthropic.ToolUseBlock, tools map[string]Tool) (anthropic.ContentBlockParamUnion, error) {
	log := clog.FromContext(ctx)
	log.With("tool", toolUse.Name).With("id", toolUse.ID).Info("Executing tool call")

	var input map[string]any
	if len(toolUse.Input) > 0 {
		if err := json.Unmarshal(toolUse.Input, &input); err != nil {
			log.With("tool", toolUse.Name).With("error", err).Warn("Failed to decode tool input")
		}
	}

	key, err := r.hooks.OnPreToolUse(ctx, toolUse.Name, input, toolUse.ID)
	if err != nil {
		return anthropic.ContentBlockParamUnion{}, err
	}

	var result map[string]any
	if tool, ok := tools[toolUse.Name]; ok {
		out, err := tool.Run(ctx, input)
		if err != nil {
			result = map[string]any{"error": err.Error()}
		} else {
			result = out
		}
	} else {
		log.With("tool", toolUse.Name).Error("Unknown tool requested")
		result = map[string]any{"error": fmt.Sprintf("unknown tool: %q", toolUse.Name)}
	}

	r.hooks.OnPostToolUse(ctx, toolUse.Name, result, key)

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return anthropic.ContentBlockParamUnion{}, fmt.Errorf("failed to marshal tool result: %w", err)
	}

	return anthropic.ContentBlockParamUnion{
		OfToolResult: &anthropic.ToolResultBlockParam{
			ToolUseID: toolUse.ID,
			Content: []anthropic.ToolResultBlockParamContentUnion{{
				OfText: &anthropic.TextBlockParam{Text: string(resultBytes)},
			}},
		},
	}, nil
}

// serverNames returns the sorted MCP server names for span metadata.
func serverNames(servers map[string]mcpconfig.Server) []string {
	if len(servers) == 0 {
		return nil
	}
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// newSessionID generates a unique session identifier.
func newSessionID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("20060102-150405.000000")
	}
	return fmt.Sprintf("%s-%s", time.Now().Format("20060102-150405"), hex.EncodeToString(b))
}
