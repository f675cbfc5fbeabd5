package sessionparser

import "strings"

// tokenFields lists the token usage sub-fields rendered in a token_count
// summary, in output order.
var tokenFields = []struct {
	key   string
	label string
}{
	{"input_tokens", "in"},
	{"cached_input_tokens", "cached"},
	{"output_tokens", "out"},
	{"reasoning_output_tokens", "reasoning"},
	{"total_tokens", "total"},
}

func (p *Parser) handleEvent(b *builder, base Message, payload map[string]any) bool {
	subtype, _ := scalarField(payload, "type")
	if p.policy.dropEvent(subtype) {
		p.log.Debug().Str("subtype", subtype).Msg("dropping event")
		return false
	}

	msg := base
	msg.Type = "event:" + subtypeOrUnknown(subtype)

	switch subtype {
	case subUserMessage:
		msg.Role = ptr("user")
	case subAgentMessage:
		msg.Role = ptr("assistant")
	case subTokenCount:
		if summary := summarizeTokenCount(payload); summary != "" {
			msg.Content = ptr(summary)
		} else {
			msg.Content = ptr(FormatJSON(payload))
		}
		msg.Metadata = payload
		b.add(msg)
		return true
	}

	if text := coerceText(payload["message"]); text != nil {
		msg.Content = text
	} else {
		msg.Content = ptr(FormatJSON(payload))
		msg.Metadata = payload
	}
	b.add(msg)
	return true
}

// summarizeTokenCount renders a token_count payload as
// "total(in=..,out=..); last(...); context_window=N". It returns "" when
// none of the known fields are present.
func summarizeTokenCount(payload map[string]any) string {
	info := asObject(payload["info"])

	var segments []string
	if s := usageSegment("total", info["total_token_usage"]); s != "" {
		segments = append(segments, s)
	}
	if s := usageSegment("last", info["last_token_usage"]); s != "" {
		segments = append(segments, s)
	}
	if v, ok := info["model_context_window"]; ok && v != nil {
		segments = append(segments, "context_window="+scalarText(v))
	}
	return strings.Join(segments, "; ")
}

func usageSegment(label string, v any) string {
	usage, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	var parts []string
	for _, f := range tokenFields {
		if val, ok := usage[f.key]; ok && val != nil {
			parts = append(parts, f.label+"="+scalarText(val))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return label + "(" + strings.Join(parts, ",") + ")"
}
