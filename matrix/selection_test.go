package matrix

import "testing"

func TestSelectionKeepsInsertionOrder(t *testing.T) {
	s := NewSelection(Key(0, 3), Key(0, 1), Key(0, 3))
	if s.Len() != 2 {
		t.Fatalf("expected duplicates to be ignored, got %d keys", s.Len())
	}
	if !s.Add(Key(1, 0)) || s.Add(Key(0, 1)) {
		t.Fatal("add should report only new keys")
	}
	if !s.Remove(Key(0, 1)) || s.Remove(Key(0, 1)) {
		t.Fatal("remove should report only present keys")
	}
	got := s.Keys()
	want := []CellKey{Key(0, 3), Key(1, 0)}
	if len(got) != len(want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("keys = %v, want %v", got, want)
		}
	}

	got[0] = Key(9, 9)
	if s.Keys()[0] != Key(0, 3) {
		t.Fatal("Keys must return a copy")
	}

	s.Add(Key(0, 1))
	if keys := s.Keys(); len(keys) != 3 || keys[2] != Key(0, 1) {
		t.Fatalf("re-added key should move to the end, got %v", keys)
	}

	s.Reset(Key(5, 5))
	if s.Len() != 1 || !s.Has(Key(5, 5)) || s.Has(Key(0, 3)) {
		t.Fatalf("unexpected selection after reset: %v", s.Keys())
	}
}

func TestZeroSelectionIsUsable(t *testing.T) {
	var s Selection
	if s.Has(Key(0, 0)) || s.Remove(Key(0, 0)) {
		t.Fatal("empty selection should contain nothing")
	}
	if !s.Add(Key(0, 0)) || s.Len() != 1 {
		t.Fatal("add on zero value")
	}
}
