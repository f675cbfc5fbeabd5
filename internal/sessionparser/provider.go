// Package sessionparser turns Codex CLI JSONL session logs into an ordered
// sequence of normalized messages. Records are classified by their kind and
// sub-kind, function calls are correlated with their outputs by call id, and
// malformed or unknown input degrades to a generic rendering instead of
// aborting the parse.
package sessionparser

import (
	"fmt"
	"sort"
)

// Message types produced by the parser. Events and unrecognized response
// items use the composite forms "event:<subtype>" and "response:<subtype>".
const (
	TypeSessionMeta  = "session_meta"
	TypeTurnContext  = "turn_context"
	TypeMessage      = "message"
	TypeFunctionCall = "function_call"
)

// Record kinds and sub-kinds recognized by the dispatcher.
const (
	kindSessionMeta  = "session_meta"
	kindTurnContext  = "turn_context"
	kindEventMsg     = "event_msg"
	kindResponseItem = "response_item"

	subUserMessage        = "user_message"
	subAgentMessage       = "agent_message"
	subTokenCount         = "token_count"
	subMessage            = "message"
	subFunctionCall       = "function_call"
	subFunctionCallOutput = "function_call_output"
	subReasoning          = "reasoning"
)

// Message is one semantic event reconstructed from a session log.
// Optional fields are nil when not applicable and marshal as JSON null.
type Message struct {
	Timestamp  string  `json:"timestamp"`
	Type       string  `json:"type"`
	Role       *string `json:"role"`
	Content    *string `json:"content"`
	CallID     *string `json:"call_id"`
	Name       *string `json:"name"`
	Arguments  any     `json:"arguments"`
	Output     any     `json:"output"`
	Metadata   any     `json:"metadata"`
	SourceLine *int    `json:"source_line"`
}

// Stats counts what happened to each physical line of a log.
// For every parse, Messages + Merged == Decoded - Dropped.
type Stats struct {
	Lines     int `json:"lines"`
	Blank     int `json:"blank"`
	Malformed int `json:"malformed"`
	Decoded   int `json:"decoded"`
	Dropped   int `json:"dropped"`
	Merged    int `json:"merged"`
	Messages  int `json:"messages"`
	Pending   int `json:"pending"` // calls never resolved by an output
}

// Result is the outcome of parsing one log.
type Result struct {
	Messages []Message `json:"messages"`
	Stats    Stats     `json:"stats"`
}

// Action says what the dispatcher does with a record kind or sub-kind.
type Action string

const (
	ActionRender Action = "render"
	ActionDrop   Action = "drop"
)

// Policy maps kinds and sub-kinds to actions. Anything not listed is
// rendered. Reasoning response items are dropped regardless of policy.
type Policy struct {
	Kinds            map[string]Action `yaml:"kinds" json:"kinds"`
	EventSubtypes    map[string]Action `yaml:"event_subtypes" json:"event_subtypes"`
	ResponseSubtypes map[string]Action `yaml:"response_subtypes" json:"response_subtypes"`
}

// Policy presets.
const (
	PresetFull    = "full"
	PresetCompact = "compact"
)

// DefaultPolicy renders everything except reasoning traces.
func DefaultPolicy() Policy {
	return Policy{
		Kinds:            map[string]Action{},
		EventSubtypes:    map[string]Action{},
		ResponseSubtypes: map[string]Action{subReasoning: ActionDrop},
	}
}

// CompactPolicy additionally drops turn context blocks and token usage
// events.
func CompactPolicy() Policy {
	p := DefaultPolicy()
	p.Kinds[kindTurnContext] = ActionDrop
	p.EventSubtypes[subTokenCount] = ActionDrop
	return p
}

// PolicyForPreset returns the named preset.
func PolicyForPreset(name string) (Policy, error) {
	switch name {
	case "", PresetFull:
		return DefaultPolicy(), nil
	case PresetCompact:
		return CompactPolicy(), nil
	default:
		return Policy{}, fmt.Errorf("unknown policy preset %q", name)
	}
}

// Merge returns a copy of p with the entries of o applied on top.
func (p Policy) Merge(o Policy) Policy {
	return Policy{
		Kinds:            mergeActions(p.Kinds, o.Kinds),
		EventSubtypes:    mergeActions(p.EventSubtypes, o.EventSubtypes),
		ResponseSubtypes: mergeActions(p.ResponseSubtypes, o.ResponseSubtypes),
	}
}

// Validate reports the first entry whose action is neither drop nor render.
func (p Policy) Validate() error {
	sets := []struct {
		name    string
		actions map[string]Action
	}{
		{"kinds", p.Kinds},
		{"event_subtypes", p.EventSubtypes},
		{"response_subtypes", p.ResponseSubtypes},
	}
	for _, s := range sets {
		keys := make([]string, 0, len(s.actions))
		for k := range s.actions {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			switch s.actions[k] {
			case ActionDrop, ActionRender:
			default:
				return fmt.Errorf("policy %s[%q]: invalid action %q", s.name, k, s.actions[k])
			}
		}
	}
	return nil
}

func (p Policy) dropKind(kind string) bool {
	return p.Kinds[kind] == ActionDrop
}

func (p Policy) dropEvent(subtype string) bool {
	return p.EventSubtypes[subtype] == ActionDrop
}

func (p Policy) dropResponse(subtype string) bool {
	return subtype == subReasoning || p.ResponseSubtypes[subtype] == ActionDrop
}

func mergeActions(base, over map[string]Action) map[string]Action {
	out := make(map[string]Action, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}
