package sessionparser

// builder accumulates messages in input order for a single parse.
type builder struct {
	messages []Message
	calls    *correlator
	stats    Stats
}

func newBuilder() *builder {
	return &builder{calls: newCorrelator()}
}

// add appends msg and returns its index.
func (b *builder) add(msg Message) int {
	b.messages = append(b.messages, msg)
	return len(b.messages) - 1
}

// addCall appends a function call and registers it for correlation.
func (b *builder) addCall(msg Message, callID string) {
	idx := b.add(msg)
	b.calls.register(callID, idx)
}

// resolveCall sets the output of the pending call with callID in place.
// It reports false when no pending call matched.
func (b *builder) resolveCall(callID string, output any) bool {
	idx, ok := b.calls.resolve(callID)
	if !ok {
		return false
	}
	b.messages[idx].Output = output
	b.stats.Merged++
	return true
}

func (b *builder) result() *Result {
	b.stats.Messages = len(b.messages)
	b.stats.Pending = b.calls.outstanding()
	msgs := b.messages
	if msgs == nil {
		msgs = []Message{}
	}
	return &Result{Messages: msgs, Stats: b.stats}
}
