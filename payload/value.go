/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package payload

import (
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// Kind classifies a tool payload value for attribute projection.
type Kind int

const (
	// String is a plain string value.
	String Kind = iota
	// Number is any integer or floating point value.
	Number
	// Bool is a boolean value.
	Bool
	// Structured is anything else: maps, slices, structs, nil.
	Structured
)

// MaxAttrLen is the rune cap applied to string attribute values.
const MaxAttrLen = 200

// Value is a tagged view over a dynamically shaped tool payload entry.
// Tool inputs and outputs arrive as map[string]any decoded from JSON, so
// the interesting cases are string, float64, bool, and nested structures.
type Value struct {
	Kind Kind

	str  string
	num  float64
	b    bool
	ifce any
}

// Of classifies v into a tagged Value.
func Of(v any) Value {
	switch t := v.(type) {
	case string:
		return Value{Kind: String, str: t}
	case bool:
		return Value{Kind: Bool, b: t}
	case float64:
		return Value{Kind: Number, num: t}
	case float32:
		return Value{Kind: Number, num: float64(t)}
	case int:
		return Value{Kind: Number, num: float64(t)}
	case int32:
		return Value{Kind: Number, num: float64(t)}
	case int64:
		return Value{Kind: Number, num: float64(t)}
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return Value{Kind: Number, num: f}
		}
		return Value{Kind: String, str: t.String()}
	default:
		return Value{Kind: Structured, ifce: v}
	}
}

// Attr projects the value to a span attribute under the given key.
// Strings are truncated to MaxAttrLen; structured values are JSON encoded,
// falling back to fmt formatting when the value cannot be marshaled.
func (v Value) Attr(key string) attribute.KeyValue {
	switch v.Kind {
	case String:
		return attribute.String(key, Truncate(v.str, MaxAttrLen))
	case Number:
		return attribute.Float64(key, v.num)
	case Bool:
		return attribute.Bool(key, v.b)
	default:
		b, err := json.Marshal(v.ifce)
		if err != nil {
			return attribute.String(key, Truncate(fmt.Sprintf("%v", v.ifce), MaxAttrLen))
		}
		return attribute.String(key, Truncate(string(b), MaxAttrLen))
	}
}

// Truncate caps s at max runes, appending "..." when anything was cut.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// EncodeJSON marshals v and caps the result at max runes. A value that
// cannot be marshaled is rendered with fmt so callers always get something
// to attach.
func EncodeJSON(v any, max int) string {
	b, err := json.Marshal(v)
	if err != nil {
		return Truncate(fmt.Sprintf("%v", v), max)
	}
	return Truncate(string(b), max)
}
