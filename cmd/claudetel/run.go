/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"chainguard.dev/claudetel/hooks"
	"chainguard.dev/claudetel/mcpconfig"
	"chainguard.dev/claudetel/metrics"
	"chainguard.dev/claudetel/runner"
	"chainguard.dev/claudetel/telemetry"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/chainguard-dev/clog"
)

const defaultModel = "claude-sonnet-4-20250514"

// session bundles everything a single agent run needs: the telemetry
// pipeline, the tool registry, and the configured runner options.
type session struct {
	pipeline *telemetry.Pipeline
	llm      *metrics.LLM
	client   anthropic.Client
	tools    map[string]runner.Tool
	opts     []runner.Option
}

func newSession(ctx context.Context, flags rootFlags) (*session, error) {
	settings, err := telemetry.LoadSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	pipeline, err := telemetry.Configure(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("configuring telemetry: %w", err)
	}

	tools, err := selectTools(flags.tools)
	if err != nil {
		return nil, err
	}

	opts := []runner.Option{runner.WithModel(flags.model)}
	if flags.system != "" {
		opts = append(opts, runner.WithSystem(flags.system))
	}
	if !flags.noMCP {
		if servers := mcpconfig.Load(ctx, ""); len(servers) > 0 {
			opts = append(opts, runner.WithMCPServers(servers))
		}
	}

	return &session{
		pipeline: pipeline,
		llm:      metrics.NewLLM("chainguard.ai.claudetel"),
		client:   anthropic.NewClient(),
		tools:    tools,
		opts:     opts,
	}, nil
}

// controller builds a fresh hook controller. One controller tracks one
// conversation, so interactive mode calls this once per prompt.
func (s *session) controller() *hooks.Controller {
	return hooks.New(s.pipeline.Tracer(),
		hooks.WithLogfire(s.pipeline.Vendor()),
		hooks.WithMetrics(s.llm),
		hooks.WithFlusher(s.pipeline))
}

func (s *session) shutdown(ctx context.Context) {
	if err := s.pipeline.Shutdown(ctx); err != nil {
		clog.FromContext(ctx).Warnf("telemetry shutdown: %v", err)
	}
}

func runPrompt(ctx context.Context, flags rootFlags, prompt string) error {
	sess, err := newSession(ctx, flags)
	if err != nil {
		return err
	}
	defer sess.shutdown(context.WithoutCancel(ctx))

	r, err := runner.New(sess.client, sess.controller(), sess.opts...)
	if err != nil {
		return err
	}
	response, err := r.Run(ctx, prompt, sess.tools)
	if err != nil {
		return err
	}
	fmt.Println(response)
	return nil
}

func runInteractive(ctx context.Context, flags rootFlags) error {
	sess, err := newSession(ctx, flags)
	if err != nil {
		return err
	}
	defer sess.shutdown(context.WithoutCancel(ctx))

	printBanner(flags, sess)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			// EOF or interrupt; either way we are done.
			fmt.Println()
			return scanner.Err()
		}
		prompt := strings.TrimSpace(scanner.Text())
		switch prompt {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		r, err := runner.New(sess.client, sess.controller(), sess.opts...)
		if err != nil {
			return err
		}
		response, err := r.Run(ctx, prompt, sess.tools)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		fmt.Println(response)
	}
}

func printBanner(flags rootFlags, sess *session) {
	names := make([]string, 0, len(sess.tools))
	for name := range sess.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("🤖 claudetel interactive mode")
	fmt.Println("Type your prompts below. Use 'exit' or Ctrl+D to quit.")
	fmt.Println()
	fmt.Printf("  Model:     %s\n", flags.model)
	fmt.Printf("  Tools:     %s\n", strings.Join(names, ", "))
	fmt.Printf("  MCP:       %s\n", enabledWord(!flags.noMCP))
	fmt.Printf("  Telemetry: %s\n", sess.pipeline.Backend())
	fmt.Println()
}

func enabledWord(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
