/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package payload

import (
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestOfClassification(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Kind
	}{
		{"string", "hello", String},
		{"bool", true, Bool},
		{"float64", 3.14, Number},
		{"int", 42, Number},
		{"int64", int64(42), Number},
		{"map", map[string]any{"a": 1}, Structured},
		{"slice", []any{"a", "b"}, Structured},
		{"nil", nil, Structured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Of(tt.in).Kind; got != tt.want {
				t.Errorf("Of(%v).Kind: got = %v, wanted = %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAttrTypes(t *testing.T) {
	if kv := Of("path").Attr("tool.input.file"); kv.Value.Type() != attribute.STRING {
		t.Errorf("string attr type: got = %v, wanted = STRING", kv.Value.Type())
	} else if kv.Value.AsString() != "path" {
		t.Errorf("string attr value: got = %q, wanted = %q", kv.Value.AsString(), "path")
	}

	if kv := Of(7.5).Attr("k"); kv.Value.Type() != attribute.FLOAT64 {
		t.Errorf("number attr type: got = %v, wanted = FLOAT64", kv.Value.Type())
	}

	if kv := Of(true).Attr("k"); kv.Value.Type() != attribute.BOOL {
		t.Errorf("bool attr type: got = %v, wanted = BOOL", kv.Value.Type())
	}

	kv := Of(map[string]any{"nested": []any{1.0, 2.0}}).Attr("k")
	if kv.Value.Type() != attribute.STRING {
		t.Errorf("structured attr type: got = %v, wanted = STRING", kv.Value.Type())
	}
	if got := kv.Value.AsString(); got != `{"nested":[1,2]}` {
		t.Errorf("structured attr value: got = %q, wanted = %q", got, `{"nested":[1,2]}`)
	}
}

func TestAttrUnmarshalableFallsBack(t *testing.T) {
	// Channels cannot be JSON encoded; the fmt fallback must kick in.
	kv := Of(map[string]any{"ch": make(chan int)}).Attr("k")
	if kv.Value.Type() != attribute.STRING {
		t.Fatalf("fallback attr type: got = %v, wanted = STRING", kv.Value.Type())
	}
	if kv.Value.AsString() == "" {
		t.Error("fallback attr value: got = empty, wanted = non-empty")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate under cap: got = %q, wanted = %q", got, "short")
	}

	long := strings.Repeat("x", 20)
	got := Truncate(long, 10)
	if want := strings.Repeat("x", 10) + "..."; got != want {
		t.Errorf("Truncate over cap: got = %q, wanted = %q", got, want)
	}

	// Rune-safe: multibyte text must not be split mid-rune.
	if got := Truncate("日本語テキスト", 3); got != "日本語..." {
		t.Errorf("Truncate multibyte: got = %q, wanted = %q", got, "日本語...")
	}
}

func TestEncodeJSON(t *testing.T) {
	got := EncodeJSON(map[string]any{"a": "b"}, 1000)
	if got != `{"a":"b"}` {
		t.Errorf("EncodeJSON: got = %q, wanted = %q", got, `{"a":"b"}`)
	}

	// Truncation marker on long payloads.
	got = EncodeJSON(map[string]any{"a": strings.Repeat("z", 50)}, 10)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("EncodeJSON long: got = %q, wanted ... suffix", got)
	}

	// Unmarshalable values still render.
	if got := EncodeJSON(make(chan int), 100); got == "" {
		t.Error("EncodeJSON chan: got = empty, wanted = non-empty")
	}
}
