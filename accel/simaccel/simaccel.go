// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package simaccel implements backend.Backend entirely on host goroutines,
// one per virtual accelerator slot, mirroring the original implementation's
// simu_backend.c code path. Its scratch area is a real anonymous, huge-page
// mapping -- not because a goroutine-based simulation needs a raw memory
// arena, but because claiming one is what reserves and page-faults in the
// memory a real accelerator's scratch RAM would occupy, so the simulation's
// memory footprint is representative of the hardware backend's.
package simaccel

import (
	"context"
	"fmt"
	"sync"

	"github.com/grailbio/base/traverse"
	"golang.org/x/sys/unix"

	"github.com/upmem/genomee/accumulate"
	"github.com/upmem/genomee/align"
	"github.com/upmem/genomee/config"
	"github.com/upmem/genomee/request"
)

const hugePageSize = 2 << 20

// Backend is a simulated accelerator rank with numSlots virtual tasklets
// (config.NumTaskletsPerDPU, typically).
type Backend struct {
	numSlots int
	arena    []byte

	mu      sync.Mutex
	pending map[int]slotJob
	results map[int][]request.Result
}

type slotJob struct {
	header request.RequestHeader
	reqs   []request.Request
}

// New returns a simulated backend with numSlots virtual tasklets.
func New(numSlots int) *Backend {
	return &Backend{
		numSlots: numSlots,
		pending:  make(map[int]slotJob),
		results:  make(map[int][]request.Result),
	}
}

// Init reserves the backend's scratch arena: room for MAX_RESULTS_PER_READ
// result records per slot, matching the real accelerator's fixed
// per-tasklet RESULT_ADDR region, plus one extra huge page.
func (b *Backend) Init(ctx context.Context) error {
	size := b.numSlots*config.MaxResultsPerRead*config.ResultRecordSize + hugePageSize
	arena, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return fmt.Errorf("simaccel: mmap scratch arena: %w", err)
	}
	if err := unix.Madvise(arena, unix.MADV_HUGEPAGE); err != nil {
		return fmt.Errorf("simaccel: madvise: %w", err)
	}
	b.arena = arena
	return nil
}

// Free releases the scratch arena.
func (b *Backend) Free(ctx context.Context) error {
	if b.arena == nil {
		return nil
	}
	err := unix.Munmap(b.arena)
	b.arena = nil
	if err != nil {
		return fmt.Errorf("simaccel: munmap scratch arena: %w", err)
	}
	return nil
}

// LoadScratch records slot's request vector for the next RunPass.
func (b *Backend) LoadScratch(ctx context.Context, slot int, header request.RequestHeader, reqs []request.Request) error {
	if slot < 0 || slot >= b.numSlots {
		return fmt.Errorf("simaccel: slot %d out of range [0,%d)", slot, b.numSlots)
	}
	b.mu.Lock()
	b.pending[slot] = slotJob{header: header, reqs: reqs}
	b.mu.Unlock()
	return nil
}

// RunPass scores every loaded slot's requests concurrently, one goroutine
// per slot, the same traverse.Each fan-out pileup/snp.go uses to shard work
// across host threads.
func (b *Backend) RunPass(ctx context.Context) error {
	b.mu.Lock()
	jobs := make(map[int]slotJob, len(b.pending))
	for slot, j := range b.pending {
		jobs[slot] = j
		delete(b.pending, slot)
	}
	b.mu.Unlock()

	slots := make([]int, 0, len(jobs))
	for slot := range jobs {
		slots = append(slots, slot)
	}

	computed := make([][]request.Result, len(slots))
	if err := traverse.Each(len(slots), func(i int) error {
		computed[i] = runSlot(jobs[slots[i]])
		return nil
	}); err != nil {
		return err
	}

	b.mu.Lock()
	for i, slot := range slots {
		b.results[slot] = computed[i]
	}
	b.mu.Unlock()
	return nil
}

func runSlot(job slotJob) []request.Result {
	acc := accumulate.New()
	for _, req := range job.reqs {
		hits := make([]accumulate.CandidateScore, 0, len(req.Candidates))
		for seedNr, cand := range req.Candidates {
			hits = append(hits, accumulate.CandidateScore{
				Score:  scoreCandidate(req.ReadSymbol, cand.Packed),
				SeedNr: uint32(seedNr),
				SeqNr:  cand.Coord.SeqNr,
			})
		}
		_ = acc.ProcessRequest(req.ReadID, hits)
	}
	acc.Finish()
	return acc.Records()
}

// scoreCandidate runs the NoDP substitution scan, falling back to ODPD when
// the INDEL probe fires. The neighbourhoods are scored at whatever length
// the pass driver has already shrunk them to for the current round; this
// function carries no round/delta state of its own.
func scoreCandidate(readPacked, candPacked []byte) uint32 {
	nbrBytes := len(candPacked)
	if len(readPacked) < nbrBytes {
		nbrBytes = len(readPacked)
	}
	score := align.NoDP(readPacked, candPacked, nbrBytes, 0, config.MaxScore)
	if score < 0 {
		score = align.ODPD(readPacked, candPacked, config.MaxScore, nbrBytes*4)
	}
	return uint32(score)
}

// WaitPass returns slot's computed result stream, consuming it.
func (b *Backend) WaitPass(ctx context.Context, slot int) ([]request.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	res, ok := b.results[slot]
	if !ok {
		return nil, fmt.Errorf("simaccel: no results ready for slot %d", slot)
	}
	delete(b.results, slot)
	return res, nil
}

// arenaSize reports the byte size of the reserved scratch arena, for tests.
func (b *Backend) arenaSize() int { return len(b.arena) }
