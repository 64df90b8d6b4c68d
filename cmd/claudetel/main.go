/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// claudetel runs a Claude agent with OpenTelemetry instrumentation.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	model        string
	system       string
	tools        []string
	noMCP        bool
	interactive  bool
	debug        bool
	logfireToken string
	otelEndpoint string
	otelHeaders  string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			// Interrupted sessions still flush telemetry on the way out,
			// so treat them as a clean exit.
			fmt.Fprintln(os.Stderr, "Interrupted by user")
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "claudetel [prompt]",
		Short: "🤖 Claude agent with OpenTelemetry instrumentation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			applyEnvOverrides(flags)

			ctx := cmd.Context()
			if flags.debug {
				log := clog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
					Level: slog.LevelDebug,
				}))
				ctx = clog.WithLogger(ctx, log)
			}

			if flags.interactive || len(args) == 0 {
				return runInteractive(ctx, flags)
			}
			return runPrompt(ctx, flags, args[0])
		},
	}

	cmd.Flags().StringVarP(&flags.model, "model", "m", defaultModel, "Claude model to use")
	cmd.Flags().StringVarP(&flags.system, "system", "s", "", "System prompt for Claude")
	cmd.Flags().StringArrayVarP(&flags.tools, "tool", "t", nil, "Tools to allow (can specify multiple times)")
	cmd.Flags().BoolVar(&flags.noMCP, "no-mcp", false, "Disable MCP server loading from .mcp.json")
	cmd.Flags().BoolVarP(&flags.interactive, "interactive", "i", false, "Force interactive mode even with a prompt")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "Enable debug output to console")
	cmd.Flags().StringVar(&flags.logfireToken, "logfire-token", "", "Logfire API token (or set LOGFIRE_TOKEN)")
	cmd.Flags().StringVar(&flags.otelEndpoint, "otel-endpoint", "", "OTLP endpoint URL (or set OTEL_EXPORTER_OTLP_ENDPOINT)")
	cmd.Flags().StringVar(&flags.otelHeaders, "otel-headers", "", "OTLP headers, key1=value1,key2=value2")

	cmd.AddCommand(versionCommand(), configCommand())
	return cmd
}

// applyEnvOverrides pushes flag values into the environment so that
// telemetry.LoadSettings sees a single source of truth.
func applyEnvOverrides(flags rootFlags) {
	if flags.logfireToken != "" {
		os.Setenv("LOGFIRE_TOKEN", flags.logfireToken)
	}
	if flags.otelEndpoint != "" {
		os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", flags.otelEndpoint)
	}
	if flags.otelHeaders != "" {
		os.Setenv("OTEL_EXPORTER_OTLP_HEADERS", flags.otelHeaders)
	}
	if flags.debug {
		os.Setenv("CLAUDE_TELEMETRY_DEBUG", "1")
	}
}
