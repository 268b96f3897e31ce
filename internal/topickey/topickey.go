// Package topickey derives deterministic topic keys from structured
// subscription requests. Two structurally-equal requests always produce
// byte-identical keys, regardless of field order, which is what lets
// subscribe and unsubscribe agree on a topic name and lets independent
// subscriptions collapse onto one reference-counted topic.
package topickey

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Canonical serializes v into a compact, order-stable JSON string.
// Object members are sorted by key, array order is preserved, JSON null
// becomes the empty string, and all other scalars pass through unchanged.
// Numbers are kept verbatim so "1" and 1 stay distinct.
func Canonical(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}
	return CanonicalJSON(raw)
}

// CanonicalJSON canonicalizes an already-serialized JSON value.
func CanonicalJSON(raw []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}

	out, err := json.Marshal(normalize(v))
	if err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}
	return string(out), nil
}

// normalize walks the decoded value, replacing nulls and recursing into
// containers. encoding/json emits map keys in sorted order, which gives the
// stable member ordering for objects.
func normalize(v any) any {
	switch val := v.(type) {
	case nil:
		return ""
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, inner := range val {
			m[k] = normalize(inner)
		}
		return m
	case []any:
		s := make([]any, len(val))
		for i, inner := range val {
			s[i] = normalize(inner)
		}
		return s
	default:
		return val
	}
}
