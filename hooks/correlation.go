/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package hooks

import (
	"strings"

	oteltrace "go.opentelemetry.io/otel/trace"
)

// spanTable maps tool-call correlation keys to their open spans, preserving
// insertion order so the most-recent-by-name fallback is deterministic.
type spanTable struct {
	entries []spanEntry
}

type spanEntry struct {
	key  string
	span oteltrace.Span
}

func (t *spanTable) insert(key string, span oteltrace.Span) {
	t.entries = append(t.entries, spanEntry{key: key, span: span})
}

// lookup resolves an open span by exact key first, then falls back to the
// most recently inserted entry whose key is prefixed by the tool name. The
// fallback is a compatibility shim for runtimes that do not round-trip a
// call id; it cannot distinguish concurrent calls to the same tool.
func (t *spanTable) lookup(key, toolName string) (string, oteltrace.Span, bool) {
	if key != "" {
		for _, e := range t.entries {
			if e.key == key {
				return e.key, e.span, true
			}
		}
	}

	prefix := toolName + "_"
	for i := len(t.entries) - 1; i >= 0; i-- {
		if strings.HasPrefix(t.entries[i].key, prefix) {
			return t.entries[i].key, t.entries[i].span, true
		}
	}

	return "", nil, false
}

func (t *spanTable) remove(key string) {
	for i, e := range t.entries {
		if e.key == key {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

func (t *spanTable) len() int {
	return len(t.entries)
}

// keys returns the correlation keys still open, oldest first.
func (t *spanTable) keys() []string {
	out := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.key)
	}
	return out
}
