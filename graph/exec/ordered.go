package exec

import (
	"bytes"
	"encoding/json"
)

// OrderedMap is a JSON object that keeps insertion order, so responses follow
// the order of the selection set
type OrderedMap struct {
	keys   []string
	values map[string]any
}

// NewOrderedMap creates an empty map with room for n keys
func NewOrderedMap(n int) *OrderedMap {
	return &OrderedMap{
		keys:   make([]string, 0, n),
		values: make(map[string]any, n),
	}
}

// Set adds or replaces key; a replaced key keeps its position
func (m *OrderedMap) Set(key string, value any) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value of key
func (m *OrderedMap) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns keys in insertion order
func (m *OrderedMap) Keys() []string {
	return m.keys
}

// Len returns the number of keys
func (m *OrderedMap) Len() int {
	return len(m.keys)
}

// MarshalJSON encodes the map as an object in insertion order
func (m *OrderedMap) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		value, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
