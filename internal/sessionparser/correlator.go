package sessionparser

// correlator tracks function calls whose output has not arrived yet. It maps
// a call id to the index of the call message in the builder's sequence and
// never owns the message itself.
type correlator struct {
	pending map[string]int
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[string]int)}
}

// register marks the call at idx as pending. A later call reusing the same
// id takes over the entry.
func (c *correlator) register(callID string, idx int) {
	if callID == "" {
		return
	}
	c.pending[callID] = idx
}

// resolve returns the index of the pending call for callID and consumes the
// entry, so a second output for the same id does not match again.
func (c *correlator) resolve(callID string) (int, bool) {
	if callID == "" {
		return 0, false
	}
	idx, ok := c.pending[callID]
	if ok {
		delete(c.pending, callID)
	}
	return idx, ok
}

// outstanding is the number of calls still waiting for output.
func (c *correlator) outstanding() int {
	return len(c.pending)
}
