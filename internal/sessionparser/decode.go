package sessionparser

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

var errNotObject = errors.New("line is not a JSON object")

// trimLine removes a leading UTF-8 BOM and surrounding whitespace.
func trimLine(line []byte) []byte {
	line = bytes.TrimPrefix(line, []byte{0xEF, 0xBB, 0xBF})
	return bytes.TrimSpace(line)
}

// decodeRecord decodes one trimmed, non-empty line into a record. Anything
// other than a single JSON object is an error.
func decodeRecord(line []byte) (map[string]any, error) {
	v, err := decodeJSON(line)
	if err != nil {
		return nil, err
	}
	rec, ok := v.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	return rec, nil
}

// recordTimestamp returns the record's timestamp as text, "unknown" when
// it is absent or null.
func recordTimestamp(rec map[string]any) string {
	v, ok := rec["timestamp"]
	if !ok || v == nil {
		return "unknown"
	}
	return scalarText(v)
}

// scalarField returns m[key] as text when it is a string, number or
// boolean. Kinds, sub-kinds and call ids are keyed by this text.
func scalarField(m map[string]any, key string) (string, bool) {
	switch v := m[key].(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		return strconv.FormatBool(v), true
	}
	return "", false
}

// subtypeOrUnknown is the sub-kind as used in composite type tags.
func subtypeOrUnknown(subtype string) string {
	if subtype == "" {
		return "unknown"
	}
	return subtype
}
