// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package dispatch implements the dispatcher: it turns a batch of reads
// into per-slot request vectors using the seed index collaborator.
// Per-slot request lists are built behind a seahash-sharded set of locks,
// the same "shard count by hash, lock per shard" idiom
// encoding/bamprovider/concurrentmap.go uses for its mate-lookup map.
package dispatch

import (
	"fmt"
	"sync"

	"blainsmith.com/go/seahash"

	"github.com/upmem/genomee/config"
	"github.com/upmem/genomee/genomeeerr"
	"github.com/upmem/genomee/index"
	"github.com/upmem/genomee/request"
)

// numSlotShards bounds lock contention when many goroutines append to the
// same slot's request vector concurrently, mirroring concurrentMap's
// numConcurrentMapShards.
const numSlotShards = 256

type slotShard struct {
	mu   sync.Mutex
	reqs map[uint32][]request.Request // slotID -> request vector
}

// Dispatcher builds per-slot request vectors from a read batch.
type Dispatcher struct {
	idx      index.Collaborator
	capacity int // max total candidates a single slot's request vector may hold
}

// New returns a Dispatcher backed by idx. capacity bounds the total number of
// candidate neighbours any one slot's request vector may accumulate in a
// single batch -- the slot's input-area size. Exceeding it is a fatal,
// checked condition.
func New(idx index.Collaborator, capacity int) *Dispatcher {
	return &Dispatcher{idx: idx, capacity: capacity}
}

func shardFor(slotID uint32) int {
	h := seahash.Sum64([]byte{byte(slotID), byte(slotID >> 8), byte(slotID >> 16), byte(slotID >> 24)})
	return int(h % numSlotShards)
}

// Dispatch processes one batch of reads, appending a Request to the owning
// slot for every seed hit the index reports. It returns the resulting
// per-slot request vectors, or an error if any slot's accumulated candidate
// count exceeds its input-area capacity. Each call builds a fresh set of
// shards, since a batch's request vectors never carry over to the next:
// reads and candidate partitions live for one pass only.
func (d *Dispatcher) Dispatch(reads []request.Read) (map[uint32][]request.Request, error) {
	seedBytes := config.SeedLength / 4

	var shards [numSlotShards]slotShard
	for i := range shards {
		shards[i].reqs = make(map[uint32][]request.Request)
	}

	for _, r := range reads {
		if len(r.Packed) < seedBytes {
			return nil, fmt.Errorf("dispatch: read %d shorter than one seed (%d packed bytes, need %d)",
				r.ID, len(r.Packed), seedBytes)
		}
		seed := r.Packed[:seedBytes]
		for _, hit := range d.idx.SeedHits(seed) {
			cands := d.idx.PartitionBlob(hit.SlotID)
			lo := int(hit.PartitionOffset)
			hi := lo + int(hit.CandidateCount)
			if hi > len(cands) {
				hi = len(cands)
			}
			var slice []request.Candidate
			if lo < hi {
				slice = cands[lo:hi]
			}

			shard := &shards[shardFor(hit.SlotID)]
			shard.mu.Lock()
			existing := shard.reqs[hit.SlotID]
			total := len(slice)
			for _, req := range existing {
				total += len(req.Candidates)
			}
			if total > d.capacity {
				shard.mu.Unlock()
				return nil, genomeeerr.Capacity("dispatch: slot %d request vector would hold %d candidates, exceeding capacity %d",
					hit.SlotID, total, d.capacity)
			}
			shard.reqs[hit.SlotID] = append(existing, request.Request{
				ReadID:     r.ID,
				ReadSymbol: r.Packed,
				Offset:     hit.PartitionOffset,
				Count:      hit.CandidateCount,
				Candidates: slice,
			})
			shard.mu.Unlock()
		}
	}

	out := make(map[uint32][]request.Request)
	for i := range shards {
		s := &shards[i]
		s.mu.Lock()
		for slotID, reqs := range s.reqs {
			out[slotID] = append(out[slotID], reqs...)
		}
		s.mu.Unlock()
	}
	return out, nil
}
