/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			version := "devel"
			if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
				version = info.Main.Version
			}
			fmt.Fprintf(cmd.OutOrStdout(), "claudetel version %s\n", version)
		},
	}
}

func configCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration and environment",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "SETTING\tVALUE\tSOURCE")

			if token := os.Getenv("LOGFIRE_TOKEN"); token != "" {
				fmt.Fprintf(w, "Logfire Token\t%s\tEnvironment\n", maskToken(token))
			}
			if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
				fmt.Fprintf(w, "OTEL Endpoint\t%s\tEnvironment\n", endpoint)
			}
			if os.Getenv("OTEL_EXPORTER_OTLP_HEADERS") != "" {
				fmt.Fprintln(w, "OTEL Headers\t***configured***\tEnvironment")
			}

			mcpPath, _ := filepath.Abs(".mcp.json")
			if _, err := os.Stat(mcpPath); err == nil {
				fmt.Fprintf(w, "MCP Config\t%s\tFile\n", mcpPath)
			} else {
				fmt.Fprintln(w, "MCP Config\tNot found\tN/A")
			}
		},
	}
}

// maskToken hides all but the last four characters of a secret.
func maskToken(token string) string {
	if len(token) <= 4 {
		return "********...****"
	}
	return "********..." + token[len(token)-4:]
}
