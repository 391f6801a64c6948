package matrix

// Selection is an insertion-ordered set of cell keys.
type Selection struct {
	keys  []CellKey
	index map[CellKey]struct{}
}

// NewSelection returns a selection seeded with keys.
func NewSelection(keys ...CellKey) *Selection {
	s := &Selection{index: make(map[CellKey]struct{})}
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

// Add appends k unless it is already present. It reports whether k was added.
func (s *Selection) Add(k CellKey) bool {
	if s.index == nil {
		s.index = make(map[CellKey]struct{})
	}
	if _, ok := s.index[k]; ok {
		return false
	}
	s.index[k] = struct{}{}
	s.keys = append(s.keys, k)
	return true
}

// Remove drops k and reports whether it was present. Order of the remaining
// keys is preserved.
func (s *Selection) Remove(k CellKey) bool {
	if _, ok := s.index[k]; !ok {
		return false
	}
	delete(s.index, k)
	for i, existing := range s.keys {
		if existing == k {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
	return true
}

// Has reports membership.
func (s *Selection) Has(k CellKey) bool {
	_, ok := s.index[k]
	return ok
}

// Len returns the number of keys.
func (s *Selection) Len() int {
	return len(s.keys)
}

// Keys returns a copy of the keys in insertion order.
func (s *Selection) Keys() []CellKey {
	out := make([]CellKey, len(s.keys))
	copy(out, s.keys)
	return out
}

// Reset empties the selection and seeds it with keys.
func (s *Selection) Reset(keys ...CellKey) {
	s.keys = s.keys[:0]
	s.index = make(map[CellKey]struct{}, len(keys))
	for _, k := range keys {
		s.Add(k)
	}
}
