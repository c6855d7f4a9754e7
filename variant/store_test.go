// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package variant

import "testing"

// Scenario 8 / property P8: inserting the same (ref, alt) at the same
// position twice yields depth 2 and a summed score.
func TestInsertDedupesSameAllele(t *testing.T) {
	s := NewStore()
	s.Insert(0, 100, "A", "G", 18)
	s.Insert(0, 100, "A", "G", 18)

	var got []Position
	s.Walk(func(p Position) { got = append(got, p) })

	if len(got) != 1 {
		t.Fatalf("len(positions) = %d, want 1", len(got))
	}
	if len(got[0].Entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(got[0].Entries))
	}
	e := got[0].Entries[0]
	if e.Depth != 2 {
		t.Fatalf("Depth = %d, want 2", e.Depth)
	}
	if e.SumScore != 36 {
		t.Fatalf("SumScore = %d, want 36", e.SumScore)
	}
	if e.AvgScore() != 18 {
		t.Fatalf("AvgScore() = %v, want 18", e.AvgScore())
	}
}

func TestInsertKeepsDistinctAllelesSeparate(t *testing.T) {
	s := NewStore()
	s.Insert(0, 100, "A", "G", 18)
	s.Insert(0, 100, "A", "T", 20)

	var got []Position
	s.Walk(func(p Position) { got = append(got, p) })

	if len(got) != 1 || len(got[0].Entries) != 2 {
		t.Fatalf("got %+v, want one position with 2 entries", got)
	}
	if got[0].Entries[0].Alt != "G" || got[0].Entries[1].Alt != "T" {
		t.Fatalf("entries not sorted by Alt: %+v", got[0].Entries)
	}
}

func TestWalkVisitsPositionsInOrder(t *testing.T) {
	s := NewStore()
	s.Insert(1, 50, "A", "C", 10)
	s.Insert(0, 200, "A", "C", 10)
	s.Insert(0, 100, "A", "C", 10)

	var order [][2]uint32
	s.Walk(func(p Position) { order = append(order, [2]uint32{p.SeqNr, p.Offset}) })

	want := [][2]uint32{{0, 100}, {0, 200}, {1, 50}}
	if len(order) != len(want) {
		t.Fatalf("len(order) = %d, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order[%d] = %v, want %v", i, order[i], want[i])
		}
	}
}

// Property P9: re-walking an unmodified store yields the identical sequence
// of positions and entries.
func TestWalkIsIdempotent(t *testing.T) {
	s := NewStore()
	s.Insert(0, 100, "A", "G", 18)
	s.Insert(0, 100, "A", "T", 20)
	s.Insert(0, 100, "AA", "A", 12)
	s.Insert(1, 5, "C", "G", 9)

	collect := func() []Position {
		var got []Position
		s.Walk(func(p Position) { got = append(got, p) })
		return got
	}

	first := collect()
	second := collect()
	if len(first) != len(second) {
		t.Fatalf("len mismatch: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].SeqNr != second[i].SeqNr || first[i].Offset != second[i].Offset {
			t.Fatalf("position %d differs between walks: %+v vs %+v", i, first[i], second[i])
		}
		if len(first[i].Entries) != len(second[i].Entries) {
			t.Fatalf("entry count differs at position %d", i)
		}
		for j := range first[i].Entries {
			if *first[i].Entries[j] != *second[i].Entries[j] {
				t.Fatalf("entry %d at position %d differs: %+v vs %+v", j, i, first[i].Entries[j], second[i].Entries[j])
			}
		}
	}
}

func TestDestroyEmptiesStore(t *testing.T) {
	s := NewStore()
	s.Insert(0, 100, "A", "G", 18)
	s.Destroy()

	var got []Position
	s.Walk(func(p Position) { got = append(got, p) })
	if len(got) != 0 {
		t.Fatalf("after Destroy, Walk visited %d positions, want 0", len(got))
	}
}
