/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package telemetry configures the span export pipeline from the process
// environment.
//
// Backend selection is by precedence: a LOGFIRE_TOKEN selects Logfire, an
// OTEL_EXPORTER_OTLP_ENDPOINT selects a generic OTLP collector, debug mode
// prints spans to stdout, and with nothing configured spans are dropped by
// a no-op provider so instrumented code needs no backend to run.
package telemetry
