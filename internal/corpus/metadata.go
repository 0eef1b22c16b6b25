package corpus

// Field is a single metadata key-value pair.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Metadata is an insertion-ordered string-to-string mapping.
// Iteration order is the order in which keys were first set, which keeps
// serialized documents and test fixtures deterministic.
//
// Metadata values follow the same immutability contract as Document:
// With returns a copy, nothing mutates in place.
type Metadata []Field

// NewMetadata builds metadata from alternating key, value arguments.
// An odd trailing key is ignored.
func NewMetadata(pairs ...string) Metadata {
	m := make(Metadata, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		m = m.With(pairs[i], pairs[i+1])
	}
	return m
}

// Get returns the value for key, or "" when absent.
func (m Metadata) Get(key string) string {
	for _, f := range m {
		if f.Key == key {
			return f.Value
		}
	}
	return ""
}

// Has reports whether key is present.
func (m Metadata) Has(key string) bool {
	for _, f := range m {
		if f.Key == key {
			return true
		}
	}
	return false
}

// With returns a copy of m with key set to value. An existing key keeps its
// position; a new key is appended.
func (m Metadata) With(key, value string) Metadata {
	out := make(Metadata, len(m), len(m)+1)
	copy(out, m)
	for i, f := range out {
		if f.Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, Field{Key: key, Value: value})
}

// Keys returns the keys in insertion order.
func (m Metadata) Keys() []string {
	keys := make([]string, len(m))
	for i, f := range m {
		keys[i] = f.Key
	}
	return keys
}
