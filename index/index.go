// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package index defines the seed index collaborator contract: nb_dpu() and
// seed_hits(read), plus the per-slot packed neighbour+coord blobs the
// dispatcher loads into accelerator scratch. Building and persisting the
// index itself is out of scope; this package only specifies the contract
// the core consumes, and a farmhash-sharded in-memory simulation of it for
// tests and the host-thread backend, grounded on fusion/kmer_index.go's
// sharded kmer->genelist map.
package index

import (
	"sync"

	farm "github.com/dgryski/go-farm"

	"github.com/upmem/genomee/request"
)

// nShard mirrors fusion/kmer_index.go's 256-way physical sharding: the upper
// 8 bits of the seed's farmhash select a shard, so concurrent insertion
// during index construction never contends across shards.
const nShard = 256

// SeedHit is one (slot, partition region) assignment returned by SeedHits:
// the request this seed belongs to should be appended to slot SlotID's
// input area at PartitionOffset, with CandidateCount neighbours.
type SeedHit struct {
	SlotID          uint32
	PartitionOffset uint32
	CandidateCount  uint32
}

// Collaborator is the seed index contract: the dispatcher only ever calls
// SeedHits and PartitionBlob; it never reaches into the index's storage
// directly.
type Collaborator interface {
	// NbDPU returns the number of accelerator slots the index is sharded
	// across.
	NbDPU() int

	// SeedHits returns every (slot, partition, count) assignment for the
	// seed-length prefix of a read's packed symbols.
	SeedHits(seed []byte) []SeedHit

	// PartitionBlob returns every candidate neighbour assigned to slotID,
	// in seed-hit order, for loading into that slot's accelerator scratch.
	PartitionBlob(slotID uint32) []request.Candidate
}

type seedEntry struct {
	hit   SeedHit
	cand  request.Candidate
	valid bool
}

type shard struct {
	mu      sync.RWMutex
	entries map[uint64][]seedEntry
}

// SimIndex is an in-memory simulation of the seed index collaborator,
// sharded the way kmerIndex shards its kmer->genelist map: farmhash(seed)'s
// upper bits choose the shard, the full hash is the map key within it.
type SimIndex struct {
	nbDPU  int
	shards [nShard]shard
}

// NewSimIndex returns an empty simulated index sharded across nbDPU slots.
func NewSimIndex(nbDPU int) *SimIndex {
	idx := &SimIndex{nbDPU: nbDPU}
	for i := range idx.shards {
		idx.shards[i].entries = make(map[uint64][]seedEntry)
	}
	return idx
}

func hashSeed(seed []byte) uint64 {
	return farm.Hash64(seed)
}

func shardFor(h uint64) int {
	return int(h >> 56)
}

// NbDPU implements Collaborator.
func (idx *SimIndex) NbDPU() int { return idx.nbDPU }

// Insert records that seed maps to candidate cand, to be dispatched to the
// accelerator slot chosen by the seed's hash. This is a test/build-time
// helper standing in for the out-of-scope index-construction collaborator,
// not part of the Collaborator contract itself.
func (idx *SimIndex) Insert(seed []byte, cand request.Candidate) {
	h := hashSeed(seed)
	s := &idx.shards[shardFor(h)]
	slotID := uint32(h % uint64(idx.nbDPU))

	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.entries[h]
	offset := uint32(0)
	for _, e := range existing {
		if e.hit.SlotID == slotID {
			offset++
		}
	}
	s.entries[h] = append(existing, seedEntry{
		hit:   SeedHit{SlotID: slotID, PartitionOffset: offset, CandidateCount: 1},
		cand:  cand,
		valid: true,
	})
}

// SeedHits implements Collaborator.
func (idx *SimIndex) SeedHits(seed []byte) []SeedHit {
	h := hashSeed(seed)
	s := &idx.shards[shardFor(h)]

	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.entries[h]
	hits := make([]SeedHit, 0, len(entries))
	for _, e := range entries {
		hits = append(hits, e.hit)
	}
	return hits
}

// PartitionBlob implements Collaborator.
func (idx *SimIndex) PartitionBlob(slotID uint32) []request.Candidate {
	var out []request.Candidate
	for i := range idx.shards {
		s := &idx.shards[i]
		s.mu.RLock()
		for _, entries := range s.entries {
			for _, e := range entries {
				if e.hit.SlotID == slotID {
					out = append(out, e.cand)
				}
			}
		}
		s.mu.RUnlock()
	}
	return out
}
