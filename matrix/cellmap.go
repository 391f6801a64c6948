package matrix

import (
	"sort"

	"tessera/domain"
)

// CellMap is the sparse assignment of cells to task ids. An absent key is an
// unassigned cell. Values may reference task ids the registry does not know.
type CellMap map[CellKey]string

// FromEntries builds a CellMap from persisted entries, skipping any that fall
// outside the grid. Later entries for the same cell win.
func FromEntries(entries []domain.Entry) CellMap {
	m := make(CellMap, len(entries))
	for _, e := range entries {
		k := Key(e.DayIndex, e.Hour)
		if !k.Valid() || e.TaskID == "" {
			continue
		}
		m[k] = e.TaskID
	}
	return m
}

// Has reports whether k is assigned.
func (m CellMap) Has(k CellKey) bool {
	_, ok := m[k]
	return ok
}

// Clone returns an independent copy.
func (m CellMap) Clone() CellMap {
	out := make(CellMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Keys returns the assigned keys in day then hour order.
func (m CellMap) Keys() []CellKey {
	keys := make([]CellKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

// Entries converts the map to persisted entries for year, in key order.
func (m CellMap) Entries(year int) []domain.Entry {
	out := make([]domain.Entry, 0, len(m))
	for _, k := range m.Keys() {
		out = append(out, domain.Entry{TaskID: m[k], DayIndex: k.Day, Hour: k.Hour, Year: year})
	}
	return out
}

func sortKeys(keys []CellKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Day != keys[j].Day {
			return keys[i].Day < keys[j].Day
		}
		return keys[i].Hour < keys[j].Hour
	})
}
