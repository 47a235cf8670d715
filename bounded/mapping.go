package bounded

import "github.com/wippyai/wasm-runtime/errors"

// Mapping is a fixed-capacity key->value container with unique keys.
// Implemented as a slice of entries rather than Go's builtin map so that
// both the capacity bound and the iteration-order determinism
// ("deterministic for a given insertion history") are explicit rather
// than relying on map's intentionally randomized iteration.
type Mapping[K comparable, V any] struct {
	keys   []K
	values []V
	cap    int
}

// NewMapping creates a Mapping with capacity n.
func NewMapping[K comparable, V any](n int) *Mapping[K, V] {
	return &Mapping[K, V]{cap: n, keys: make([]K, 0, n), values: make([]V, 0, n)}
}

// Len returns the number of entries.
func (m *Mapping[K, V]) Len() int { return len(m.keys) }

// Cap returns the fixed capacity.
func (m *Mapping[K, V]) Cap() int { return m.cap }

func (m *Mapping[K, V]) indexOf(key K) int {
	for i, k := range m.keys {
		if k == key {
			return i
		}
	}
	return -1
}

// Insert adds or updates key->value. Fails with CapacityExceeded only when
// the map is full and key is absent; updating an existing key never
// fails.
func (m *Mapping[K, V]) Insert(key K, value V) error {
	if i := m.indexOf(key); i >= 0 {
		m.values[i] = value
		return nil
	}
	if len(m.keys) >= m.cap {
		return errors.CapacityExceeded(errors.PhaseRuntime, nil, m.cap)
	}
	m.keys = append(m.keys, key)
	m.values = append(m.values, value)
	return nil
}

// Get retrieves the value for key.
func (m *Mapping[K, V]) Get(key K) (V, bool) {
	var zero V
	if i := m.indexOf(key); i >= 0 {
		return m.values[i], true
	}
	return zero, false
}

// ContainsKey reports whether key is present.
func (m *Mapping[K, V]) ContainsKey(key K) bool {
	return m.indexOf(key) >= 0
}

// Remove deletes key, returning (value, true) if it was present.
func (m *Mapping[K, V]) Remove(key K) (V, bool) {
	var zero V
	i := m.indexOf(key)
	if i < 0 {
		return zero, false
	}
	v := m.values[i]
	m.keys = append(m.keys[:i], m.keys[i+1:]...)
	m.values = append(m.values[:i], m.values[i+1:]...)
	return v, true
}

// Iter calls fn for each key/value pair, stopping early if fn returns
// false. Order matches insertion history minus removals: unspecified in
// absolute terms but deterministic for a given history.
func (m *Mapping[K, V]) Iter(fn func(K, V) bool) {
	for i, k := range m.keys {
		if !fn(k, m.values[i]) {
			return
		}
	}
}
