/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package runner

import (
	"fmt"
	"strings"

	"chainguard.dev/claudetel/mcpconfig"
)

// Option is a functional option for configuring the Runner.
type Option func(*Runner) error

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(r *Runner) error {
		if !strings.HasPrefix(model, "claude-") {
			return fmt.Errorf("model %q does not appear to be a Claude model (expected claude-* format)", model)
		}
		r.modelName = model
		return nil
	}
}

// WithSystem sets the system prompt.
func WithSystem(system string) Option {
	return func(r *Runner) error {
		r.system = system
		return nil
	}
}

// WithMaxTokens sets the maximum tokens for responses.
func WithMaxTokens(tokens int64) Option {
	return func(r *Runner) error {
		if tokens <= 0 {
			return fmt.Errorf("max tokens must be positive, got %d", tokens)
		}
		r.maxTokens = tokens
		return nil
	}
}

// WithMCPServers records the MCP server descriptors the session runs with.
// Connection management belongs to the agent runtime; the runner only
// carries these for observability.
func WithMCPServers(servers map[string]mcpconfig.Server) Option {
	return func(r *Runner) error {
		r.mcpServers = servers
		return nil
	}
}

// WithRetryConfig sets the retry configuration for transient API errors.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(r *Runner) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		r.retryConfig = cfg
		return nil
	}
}
