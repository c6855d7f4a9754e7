// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package index_test

import (
	"testing"

	"github.com/upmem/genomee/index"
	"github.com/upmem/genomee/request"
)

func TestNbDPU(t *testing.T) {
	idx := index.NewSimIndex(8)
	if idx.NbDPU() != 8 {
		t.Fatalf("NbDPU() = %d, want 8", idx.NbDPU())
	}
}

func TestSeedHitsEmptyForUnknownSeed(t *testing.T) {
	idx := index.NewSimIndex(4)
	if hits := idx.SeedHits([]byte("AAAA")); len(hits) != 0 {
		t.Fatalf("SeedHits(unknown) = %v, want empty", hits)
	}
}

func TestInsertThenSeedHits(t *testing.T) {
	idx := index.NewSimIndex(4)
	seed := []byte("ACGTACGTACGTACGTACGTACGTACGTACGT")
	c1 := request.Candidate{Packed: []byte{1, 2, 3}, Coord: request.Coord{SeqNr: 0, Offset: 100}}
	c2 := request.Candidate{Packed: []byte{4, 5, 6}, Coord: request.Coord{SeqNr: 1, Offset: 200}}

	idx.Insert(seed, c1)
	idx.Insert(seed, c2)

	hits := idx.SeedHits(seed)
	if len(hits) != 2 {
		t.Fatalf("SeedHits() = %v, want 2 entries", hits)
	}
	for _, h := range hits {
		if h.SlotID >= 4 {
			t.Fatalf("SeedHit.SlotID = %d, want < 4", h.SlotID)
		}
	}
}

func TestPartitionBlobCollectsAssignedCandidates(t *testing.T) {
	idx := index.NewSimIndex(1) // single slot: every seed lands on it.
	seedA := []byte("AAAACCCCGGGGTTTTAAAACCCCGGGGTTTT")
	seedB := []byte("TTTTGGGGCCCCAAAATTTTGGGGCCCCAAAA")
	idx.Insert(seedA, request.Candidate{Packed: []byte{9}})
	idx.Insert(seedB, request.Candidate{Packed: []byte{10}})

	blob := idx.PartitionBlob(0)
	if len(blob) != 2 {
		t.Fatalf("len(PartitionBlob(0)) = %d, want 2", len(blob))
	}
}
