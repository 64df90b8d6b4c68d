/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package hooks

import (
	"context"
	"fmt"
	"testing"
)

func TestInterleavedPairsWithUniqueIDs(t *testing.T) {
	c, exporter := newTestController(t)
	ctx := context.Background()

	if err := c.OnUserPromptSubmit(ctx, PromptSubmitted{Prompt: "p", Model: "m"}); err != nil {
		t.Fatalf("OnUserPromptSubmit: %v", err)
	}

	// Open several calls, including two to the same tool, then complete
	// them out of order. Stable ids must pair each completion with its own
	// start regardless of ordering.
	ids := []struct{ tool, id string }{
		{"Read", "id-1"},
		{"Bash", "id-2"},
		{"Read", "id-3"},
		{"Write", "id-4"},
	}
	for _, call := range ids {
		key, err := c.OnPreToolUse(ctx, call.tool, map[string]any{"call": call.id}, call.id)
		if err != nil {
			t.Fatalf("OnPreToolUse(%s): %v", call.id, err)
		}
		if key != call.id {
			t.Errorf("returned key: got = %q, wanted = %q", key, call.id)
		}
	}

	for _, id := range []string{"id-3", "id-1", "id-4", "id-2"} {
		var tool string
		for _, call := range ids {
			if call.id == id {
				tool = call.tool
			}
		}
		c.OnPostToolUse(ctx, tool, map[string]any{"done": id}, id)
	}

	if got := c.session.table.len(); got != 0 {
		t.Fatalf("correlation table after all pairs: got = %d entries, wanted = 0", got)
	}

	// Each exported tool span carries the input of the call it was opened
	// for and the output of the completion that closed it.
	spans := exporter.GetSpans()
	if len(spans) != 4 {
		t.Fatalf("exported tool spans: got = %d, wanted = 4", len(spans))
	}
	for _, s := range spans {
		attrs := attrMap(s)
		in := attrs["tool.input.call"].AsString()
		want := fmt.Sprintf(`{"done":%q}`, in)
		if got := attrs["tool.output"].AsString(); got != want {
			t.Errorf("span %q output: got = %q, wanted = %q", s.Name, got, want)
		}
	}
}

func TestSameNameFallbackResolvesMostRecent(t *testing.T) {
	c, exporter := newTestController(t)
	ctx := context.Background()

	if err := c.OnUserPromptSubmit(ctx, PromptSubmitted{Prompt: "p", Model: "m"}); err != nil {
		t.Fatalf("OnUserPromptSubmit: %v", err)
	}

	// Two same-named calls in flight with no call ids. The name-prefix
	// fallback cannot tell them apart and resolves to the most recent
	// entry. This pins the documented limitation, it is not a pairing
	// guarantee.
	firstKey, err := c.OnPreToolUse(ctx, "Grep", map[string]any{"pattern": "first"}, "")
	if err != nil {
		t.Fatalf("first OnPreToolUse: %v", err)
	}
	secondKey, err := c.OnPreToolUse(ctx, "Grep", map[string]any{"pattern": "second"}, "")
	if err != nil {
		t.Fatalf("second OnPreToolUse: %v", err)
	}
	if firstKey == secondKey {
		t.Fatalf("synthesized keys collide: %q", firstKey)
	}

	c.OnPostToolUse(ctx, "Grep", map[string]any{"matched": true}, "")

	if got := c.session.table.len(); got != 1 {
		t.Fatalf("correlation table: got = %d entries, wanted = 1", got)
	}

	// The span that closed is the second one opened.
	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("exported tool spans: got = %d, wanted = 1", len(spans))
	}
	if got := attrMap(spans[0])["tool.input.pattern"].AsString(); got != "second" {
		t.Errorf("closed span input: got = %q, wanted = %q (most recent entry)", got, "second")
	}

	// The survivor is the first call's entry.
	if keys := c.session.table.keys(); len(keys) != 1 || keys[0] != firstKey {
		t.Errorf("surviving keys: got = %v, wanted = [%s]", keys, firstKey)
	}
}

func TestSynthesizedKeysUniqueUnderSequentialCalls(t *testing.T) {
	c, _ := newTestController(t)
	ctx := context.Background()

	if err := c.OnUserPromptSubmit(ctx, PromptSubmitted{Prompt: "p", Model: "m"}); err != nil {
		t.Fatalf("OnUserPromptSubmit: %v", err)
	}

	seen := map[string]bool{}
	for range 100 {
		key, err := c.OnPreToolUse(ctx, "Read", nil, "")
		if err != nil {
			t.Fatalf("OnPreToolUse: %v", err)
		}
		if seen[key] {
			t.Fatalf("synthesized key reused: %q", key)
		}
		seen[key] = true
	}
}

func TestSuppliedIDPreferredOverNameFallback(t *testing.T) {
	c, exporter := newTestController(t)
	ctx := context.Background()

	if err := c.OnUserPromptSubmit(ctx, PromptSubmitted{Prompt: "p", Model: "m"}); err != nil {
		t.Fatalf("OnUserPromptSubmit: %v", err)
	}

	// Older call has an id; newer one does not. A completion carrying the
	// id must close the older call even though the fallback would have
	// picked the newer one.
	if _, err := c.OnPreToolUse(ctx, "Read", map[string]any{"n": 1.0}, "stable-id"); err != nil {
		t.Fatalf("OnPreToolUse: %v", err)
	}
	if _, err := c.OnPreToolUse(ctx, "Read", map[string]any{"n": 2.0}, ""); err != nil {
		t.Fatalf("OnPreToolUse: %v", err)
	}

	c.OnPostToolUse(ctx, "Read", "done", "stable-id")

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("exported tool spans: got = %d, wanted = 1", len(spans))
	}
	if got := attrMap(spans[0])["tool.input.n"].AsFloat64(); got != 1 {
		t.Errorf("closed span input: got = n=%v, wanted = n=1 (exact id match)", got)
	}
}
