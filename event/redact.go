package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// sensitiveKeys are matched case-insensitively as substrings of object keys.
var sensitiveKeys = []string{
	"secret",
	"api_key",
	"key_hash",
	"password",
	"token",
	"loyalty_number",
	"program_number",
}

// Normalize converts an arbitrary payload into a JSON tree made of
// map[string]any, []any, string, json.Number, bool and nil.
func Normalize(data any) (any, error) {
	if data == nil {
		return map[string]any{}, nil
	}

	var raw []byte
	switch v := data.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("event: encode payload: %w", err)
		}
		raw = b
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("event: decode payload: %w", err)
	}
	return tree, nil
}

// Redact returns a copy of a JSON tree with every sensitive object key
// removed at any depth. Keys are dropped, not masked. The input is not
// modified.
func Redact(v any) any {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, child := range node {
			if IsSensitiveKey(k) {
				continue
			}
			out[k] = Redact(child)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, child := range node {
			out[i] = Redact(child)
		}
		return out
	default:
		return node
	}
}

// RedactPayload normalizes and redacts a payload in one step.
func RedactPayload(data any) (any, error) {
	tree, err := Normalize(data)
	if err != nil {
		return nil, err
	}
	return Redact(tree), nil
}

// IsSensitiveKey reports whether an object key must be stripped.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
