// Package stream reassembles incremental text deltas into running transcripts.
package stream

// Key identifies one accumulation.
type Key struct {
	Sender    string
	SessionID string
}

// Accumulator holds at most one running text per key. It is owned by a
// single goroutine and does no locking.
type Accumulator struct {
	entries map[Key]string
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{entries: make(map[Key]string)}
}

// Append adds chunk to the text for key and returns the full text so far.
// When done is true the entry is removed after the final text is computed.
func (a *Accumulator) Append(key Key, chunk string, done bool) string {
	full := a.entries[key] + chunk
	if done {
		delete(a.entries, key)
	} else {
		a.entries[key] = full
	}
	return full
}

// Get returns the running text for key.
func (a *Accumulator) Get(key Key) (string, bool) {
	v, ok := a.entries[key]
	return v, ok
}

// Len returns the number of active accumulations.
func (a *Accumulator) Len() int {
	return len(a.entries)
}

// Reset drops every active accumulation.
func (a *Accumulator) Reset() {
	a.entries = make(map[Key]string)
}

// Drain returns every active accumulation and empties the accumulator.
func (a *Accumulator) Drain() map[Key]string {
	out := a.entries
	a.entries = make(map[Key]string)
	return out
}
