package sessionparser

import "strings"

func (p *Parser) handleResponse(b *builder, base Message, payload map[string]any) bool {
	subtype, _ := scalarField(payload, "type")
	if p.policy.dropResponse(subtype) {
		p.log.Debug().Str("subtype", subtype).Msg("dropping response item")
		return false
	}

	msg := base
	switch subtype {
	case subMessage:
		msg.Type = TypeMessage
		msg.Role = optString(payload, "role")
		if chunks := textChunks(payload["content"]); len(chunks) > 0 {
			msg.Content = ptr(strings.Join(chunks, "\n\n"))
		}
		b.add(msg)

	case subFunctionCall:
		callID, hasID := scalarField(payload, "call_id")
		msg.Type = TypeFunctionCall
		msg.Role = ptr("assistant")
		msg.Name = optString(payload, "name")
		if hasID {
			msg.CallID = ptr(callID)
		}
		msg.Arguments = MaybeJSON(payload["arguments"])
		b.addCall(msg, callID)

	case subFunctionCallOutput:
		callID, hasID := scalarField(payload, "call_id")
		output := MaybeJSON(payload["output"])
		if b.resolveCall(callID, output) {
			return true
		}
		msg.Type = TypeFunctionCall
		msg.Role = ptr("assistant")
		if hasID {
			msg.CallID = ptr(callID)
		}
		msg.Output = output
		b.add(msg)

	default:
		msg.Type = "response:" + subtypeOrUnknown(subtype)
		msg.Role = optString(payload, "role")
		msg.Content = ptr(FormatJSON(payload))
		msg.Metadata = payload
		b.add(msg)
	}
	return true
}

// textChunks collects the non-empty text of input_text and output_text
// content items, in order.
func textChunks(content any) []string {
	items, ok := content.([]any)
	if !ok {
		return nil
	}
	var texts []string
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		switch t, _ := stringField(obj, "type"); t {
		case "input_text", "output_text":
		default:
			continue
		}
		if text := coerceText(obj["text"]); text != nil && *text != "" {
			texts = append(texts, *text)
		}
	}
	return texts
}
