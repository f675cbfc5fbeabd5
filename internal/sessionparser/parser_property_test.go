package sessionparser

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// lineTemplates are the building blocks of generated logs. %ID% is replaced
// by a call id drawn from a small pool so calls and outputs collide.
var lineTemplates = []string{
	`{"type":"session_meta","payload":{"id":"s"}}`,
	`{"type":"event_msg","payload":{"type":"user_message","message":"hi"}}`,
	`{"type":"response_item","payload":{"type":"function_call","call_id":"%ID%","name":"run","arguments":"{}"}}`,
	`{"type":"response_item","payload":{"type":"function_call_output","call_id":"%ID%","output":"ok"}}`,
	`{"type":"response_item","payload":{"type":"reasoning","encrypted_content":"x"}}`,
	`{not json`,
	``,
	`{"type":"something_new","payload":[1]}`,
}

const (
	tmplCall      = 2
	tmplOutput    = 3
	tmplReasoning = 4
	tmplMalformed = 5
	tmplBlank     = 6
)

// TestMessageCountInvariant_PropertyBased checks that every non-dropped
// record that decodes either becomes a message or merges into a call:
//
//	messages + merged pairs == decoded lines - dropped lines
func TestMessageCountInvariant_PropertyBased(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("messages plus merged outputs equals kept records", prop.ForAll(
		func(picks []int) bool {
			var lines []string
			kept, merged := 0, 0
			pending := map[string]bool{}

			for i, pick := range picks {
				id := "c" + strconv.Itoa(i%3)
				lines = append(lines, strings.ReplaceAll(lineTemplates[pick], "%ID%", id))

				switch pick {
				case tmplReasoning, tmplMalformed, tmplBlank:
					continue
				case tmplCall:
					pending[id] = true
				case tmplOutput:
					if pending[id] {
						delete(pending, id)
						merged++
					}
				}
				kept++
			}

			res, err := New().ParseReader(strings.NewReader(strings.Join(lines, "\n")))
			if err != nil {
				t.Logf("ParseReader: %v", err)
				return false
			}
			return len(res.Messages)+merged == kept &&
				res.Stats.Merged == merged &&
				res.Stats.Messages+res.Stats.Merged == res.Stats.Decoded-res.Stats.Dropped
		},
		gen.SliceOf(gen.IntRange(0, len(lineTemplates)-1)),
	))

	properties.TestingRun(t)
}

// TestFormatJSONRoundTrip_PropertyBased checks that re-parsing the
// rendering of a payload yields a value deep-equal to the payload.
func TestFormatJSONRoundTrip_PropertyBased(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("string payloads survive FormatJSON", prop.ForAll(
		func(m map[string]string) bool {
			payload := make(map[string]any, len(m))
			for k, v := range m {
				payload[k] = v
			}
			decoded, err := decodeJSON([]byte(FormatJSON(payload)))
			if err != nil {
				return false
			}
			return reflect.DeepEqual(decoded, payload)
		},
		gen.MapOf(gen.AlphaString(), gen.AlphaString()),
	))

	properties.Property("numeric payloads survive FormatJSON", prop.ForAll(
		func(m map[string]int64) bool {
			payload := make(map[string]any, len(m))
			for k, v := range m {
				payload[k] = json.Number(strconv.FormatInt(v, 10))
			}
			decoded, err := decodeJSON([]byte(FormatJSON(payload)))
			if err != nil {
				return false
			}
			return reflect.DeepEqual(decoded, payload)
		},
		gen.MapOf(gen.AlphaString(), gen.Int64()),
	))

	properties.TestingRun(t)
}
