package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decode parses JSON text into generic values, keeping numbers as json.Number
// so that integers survive unchanged and re-serialization is exact.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after top-level value")
	}
	return v, nil
}

// ToValue converts any JSON-marshalable Go value (typically a struct) into
// the generic shape Marshal works on.
func ToValue(v any) (any, error) {
	switch v.(type) {
	case nil, bool, string, json.Number, []any, map[string]any:
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("to value: %w", err)
	}
	out, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("to value: %w", err)
	}
	return out, nil
}

// Clone deep-copies a generic value. Non-generic leaves are shared.
func Clone(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = Clone(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	default:
		return v
	}
}

// Equal reports whether a and b serialize to the same canonical bytes.
func Equal(a, b any) bool {
	ab, err := Marshal(a)
	if err != nil {
		return false
	}
	bb, err := Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
