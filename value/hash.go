package value

import "strings"

// Hash is the mutable, insertion-ordered string-keyed mapping backing the
// Hash variant. Order is tracked explicitly in keys because Go maps do not
// preserve insertion order, and the Iterator variant needs a stable key
// snapshot.
type Hash struct {
	keys   []string
	values map[string]Value
}

// NewHashValue returns an empty *Hash.
func NewHashValue() *Hash {
	return &Hash{values: make(map[string]Value)}
}

// Get returns the value stored at key and whether the key is present.
func (h *Hash) Get(key string) (Value, bool) {
	v, ok := h.values[key]
	return v, ok
}

// Set stores v at key, appending key to the insertion order the first time
// it is written.
func (h *Hash) Set(key string, v Value) {
	if h.values == nil {
		h.values = make(map[string]Value)
	}
	if _, exists := h.values[key]; !exists {
		h.keys = append(h.keys, key)
	}
	h.values[key] = v
}

// Delete removes key, reporting whether it was present.
func (h *Hash) Delete(key string) bool {
	if _, ok := h.values[key]; !ok {
		return false
	}
	delete(h.values, key)
	for i, k := range h.keys {
		if k == key {
			h.keys = append(h.keys[:i], h.keys[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of entries.
func (h *Hash) Len() int { return len(h.keys) }

// Keys returns a snapshot copy of the current insertion order. Callers that
// need a stable iteration target (the Iterator variant) must take this
// snapshot once, at construction time.
func (h *Hash) Keys() []string {
	out := make([]string, len(h.keys))
	copy(out, h.keys)
	return out
}

// Each calls fn for every entry in insertion order.
func (h *Hash) Each(fn func(key string, v Value)) {
	for _, k := range h.keys {
		fn(k, h.values[k])
	}
}

// String renders the hash as a brace-delimited list of key:value pairs in
// insertion order.
func (h *Hash) String() string {
	parts := make([]string, 0, len(h.keys))
	for _, k := range h.keys {
		parts = append(parts, k+": "+h.values[k].String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
