package sync

import "sync"

// Map is a generic map guarded by an RWMutex.
type Map[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		m: make(map[K]V),
	}
}

func (m *Map[K, V]) Load(key K) (value V, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok = m.m[key]
	return
}

// LoadOrStore returns the existing value for key if present, otherwise it
// stores value. loaded reports which happened.
func (m *Map[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if actual, loaded = m.m[key]; loaded {
		return actual, true
	}
	m.m[key] = value
	return value, false
}

// CompareAndDelete deletes key only while it still maps to old. V must hold
// comparable values, typically pointers.
func (m *Map[K, V]) CompareAndDelete(key K, old V) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.m[key]
	if !ok || any(current) != any(old) {
		return false
	}
	delete(m.m, key)
	return true
}

// Range calls f for every entry under the read lock until f returns false.
// f must not write to the map.
func (m *Map[K, V]) Range(f func(key K, value V) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, v := range m.m {
		if !f(k, v) {
			return
		}
	}
}

func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}

// Values returns a snapshot of the stored values in no particular order.
func (m *Map[K, V]) Values() []V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]V, 0, len(m.m))
	for _, v := range m.m {
		out = append(out, v)
	}
	return out
}
