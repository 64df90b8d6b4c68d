/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package telemetry

import (
	"context"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
)

// Settings holds the environment-sourced telemetry configuration.
type Settings struct {
	// LogfireToken selects the Logfire backend when non-empty.
	LogfireToken string `env:"LOGFIRE_TOKEN"`

	// OTLPEndpoint selects the generic OTLP backend when non-empty and no
	// Logfire token is present.
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// OTLPHeaders carries exporter headers as comma-separated key=value pairs.
	OTLPHeaders string `env:"OTEL_EXPORTER_OTLP_HEADERS"`

	// Debug routes spans to stdout when no backend is configured.
	Debug bool `env:"CLAUDE_TELEMETRY_DEBUG"`

	// ServiceName identifies this process in exported traces.
	ServiceName string `env:"CLAUDE_TELEMETRY_SERVICE, default=claude-agents"`
}

// LoadSettings reads Settings from the process environment.
func LoadSettings(ctx context.Context) (Settings, error) {
	var s Settings
	if err := envconfig.Process(ctx, &s); err != nil {
		return s, fmt.Errorf("processing telemetry environment: %w", err)
	}
	return s, nil
}

// parseHeaders parses a comma-separated key=value list into a header map.
// Pairs without an "=" are skipped with a warning; values may themselves
// contain "=" (only the first one splits).
func parseHeaders(ctx context.Context, raw string) map[string]string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	headers := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, found := strings.Cut(pair, "=")
		if !found {
			clog.FromContext(ctx).With("pair", pair).Warn("Skipping malformed OTLP header pair")
			continue
		}
		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	if len(headers) == 0 {
		return nil
	}
	return headers
}
