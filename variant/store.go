// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package variant implements the variant store and the variant
// emitter/filter: a per-chromosome, deduplicating index of discovered
// substitutions/indels, and the depth/score/coverage filtered VCF writer
// that drains it.
//
// The store replaces the source's per-position singly-linked bucket chain
// with an `llrb.Tree` keyed by (seq_nr, offset) -- the same balanced-tree
// idiom encoding/bampair/shard_info.go uses for its by-position shard index
// -- preserving same-allele dedup across repeated hits at a position.
// Within one position, alleles are deduplicated by a highwayhash digest of
// (ref, alt), mirroring fusion/postprocess.go's
// `hashKey = [highwayhash.Size]uint8` grouping idiom.
package variant

import (
	"sort"
	"sync"

	"github.com/biogo/store/llrb"
	"github.com/minio/highwayhash"
)

// Entry is one deduplicated (ref, alt) variant call at a genome position:
// depth is the number of supporting reads, SumScore their summed alignment
// score.
type Entry struct {
	Ref      string
	Alt      string
	Depth    uint32
	SumScore uint64
}

// AvgScore is sumScore/depth.
func (e *Entry) AvgScore() float64 {
	if e.Depth == 0 {
		return 0
	}
	return float64(e.SumScore) / float64(e.Depth)
}

type bucketKey = [highwayhash.Size]uint8

var zeroHashKey bucketKey

func hashAlleles(ref, alt string) bucketKey {
	buf := make([]byte, 0, 2+len(ref)+len(alt))
	buf = append(buf, byte(len(ref)), byte(len(ref)>>8))
	buf = append(buf, ref...)
	buf = append(buf, alt...)
	return highwayhash.Sum(buf, zeroHashKey[:])
}

// posNode is one llrb.Tree node: a genome position together with its bucket
// of deduplicated alleles. Compare only orders by (seqNr, offset); bucket is
// not part of the key.
type posNode struct {
	seqNr, offset uint32
	bucket        map[bucketKey]*Entry
}

// Compare implements llrb.Comparable.
func (n *posNode) Compare(c llrb.Comparable) int {
	o := c.(*posNode)
	if n.seqNr != o.seqNr {
		return int(n.seqNr) - int(o.seqNr)
	}
	return int(n.offset) - int(o.offset)
}

// Store is the per-chromosome deduplicating variant index. It persists
// across all rounds and passes of a run and is destroyed only once, after
// VCF emission.
type Store struct {
	mu   sync.Mutex
	tree llrb.Tree
}

// NewStore returns an empty variant store.
func NewStore() *Store {
	return &Store{}
}

// Insert records one variant call at (seqNr, offset): an existing entry with
// the same (ref, alt) has its depth incremented and score accumulated;
// otherwise a new entry is added to the position's bucket.
func (s *Store) Insert(seqNr, offset uint32, ref, alt string, score uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := &posNode{seqNr: seqNr, offset: offset}
	var node *posNode
	if existing := s.tree.Get(key); existing != nil {
		node = existing.(*posNode)
	} else {
		node = &posNode{seqNr: seqNr, offset: offset, bucket: make(map[bucketKey]*Entry)}
		s.tree.Insert(node)
	}

	bk := hashAlleles(ref, alt)
	if e, ok := node.bucket[bk]; ok {
		e.Depth++
		e.SumScore += uint64(score)
		return
	}
	node.bucket[bk] = &Entry{Ref: ref, Alt: alt, Depth: 1, SumScore: uint64(score)}
}

// Destroy frees every bucket.
func (s *Store) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree = llrb.Tree{}
}

// Position is one non-empty bucket's worth of entries at a genome position,
// returned by Walk in ascending (seqNr, offset) order. Entries within a
// position are sorted by (Ref, Alt) so repeated walks are deterministic:
// emitting the same variant store twice yields byte-identical VCF bodies.
type Position struct {
	SeqNr   uint32
	Offset  uint32
	Entries []*Entry
}

// Walk visits every non-empty position in the store, in ascending
// (seqNr, offset) order, calling fn once per position.
func (s *Store) Walk(fn func(Position)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tree.Do(func(c llrb.Comparable) bool {
		n := c.(*posNode)
		if len(n.bucket) == 0 {
			return false
		}
		entries := make([]*Entry, 0, len(n.bucket))
		for _, e := range n.bucket {
			entries = append(entries, e)
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].Ref != entries[j].Ref {
				return entries[i].Ref < entries[j].Ref
			}
			return entries[i].Alt < entries[j].Alt
		})
		fn(Position{SeqNr: n.seqNr, Offset: n.offset, Entries: entries})
		return false
	})
}
