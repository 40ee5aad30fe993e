package value

// Map is an insertion-ordered string keyed map of values.
type Map struct {
	keys []string
	vals []Value
	idx  map[string]int
}

func NewMap() *Map { return &Map{idx: map[string]int{}} }

// Set inserts or replaces key. Replacing keeps the original position.
func (m *Map) Set(key string, v Value) {
	if m.idx == nil {
		m.idx = make(map[string]int, len(m.keys))
		for i, k := range m.keys {
			m.idx[k] = i
		}
	}
	if i, ok := m.idx[key]; ok {
		m.vals[i] = v
		return
	}
	m.idx[key] = len(m.keys)
	m.keys = append(m.keys, key)
	m.vals = append(m.vals, v)
}

func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return Null, false
	}
	i, ok := m.idx[key]
	if !ok {
		return Null, false
	}
	return m.vals[i], true
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Range calls fn for each entry in insertion order until fn returns false.
func (m *Map) Range(fn func(key string, v Value) bool) {
	if m == nil {
		return
	}
	for i, k := range m.keys {
		if !fn(k, m.vals[i]) {
			return
		}
	}
}

func (m *Map) Equal(o *Map) bool {
	if m.Len() != o.Len() {
		return false
	}
	for i := 0; i < m.Len(); i++ {
		if m.keys[i] != o.keys[i] || !m.vals[i].Equal(o.vals[i]) {
			return false
		}
	}
	return true
}
