package sessionparser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var errTrailingData = errors.New("trailing data after JSON value")

// decodeJSON strictly decodes a single JSON value. Numbers are kept as
// json.Number so integers survive re-rendering unchanged.
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errTrailingData
	}
	return v, nil
}

// MaybeJSON re-interprets a string that carries JSON text (double-encoded
// arguments and outputs) as the structure it encodes. Maps, slices, nil,
// non-string scalars, blank strings and strings that are not valid JSON are
// returned unchanged.
func MaybeJSON(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	text := strings.TrimSpace(s)
	if text == "" {
		return v
	}
	decoded, err := decodeJSON([]byte(text))
	if err != nil {
		return v
	}
	return decoded
}

// FormatJSON renders v as two-space indented JSON. Object keys come out
// sorted, so the rendering is stable; nil renders as "null". Values that
// cannot be marshalled fall back to their %v form.
func FormatJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// coerceText turns a field into text: strings pass through verbatim, nil
// stays nil, anything else is rendered as compact JSON.
func coerceText(v any) *string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return &t
	case json.Number:
		s := t.String()
		return &s
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		s := fmt.Sprintf("%v", v)
		return &s
	}
	s := strings.TrimSuffix(buf.String(), "\n")
	return &s
}

// stringField returns m[key] when it is a non-null string.
func stringField(m map[string]any, key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}

// optString returns m[key] as a pointer when it is a string, nil otherwise.
func optString(m map[string]any, key string) *string {
	if s, ok := stringField(m, key); ok {
		return &s
	}
	return nil
}

// asObject returns v as a JSON object, or an empty one.
func asObject(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// orEmptyObject mirrors the payload default: a missing or null payload
// renders as an empty object, anything else renders as-is.
func orEmptyObject(v any) any {
	if v == nil {
		return map[string]any{}
	}
	return v
}

// scalarText renders a scalar for summaries and timestamps.
func scalarText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	}
	return *coerceText(v)
}

func ptr[T any](v T) *T { return &v }
