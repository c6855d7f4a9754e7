// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package pass implements the pass driver: the dispatch/execute/accumulate
// pipeline that runs one round of alignment over a batch of reads, merges
// per-slot results into a best-hit-per-read table, translates mapped reads
// into variant calls, and reports the reads that stayed unmapped for the
// next round. The driver itself walks the slots sequentially; any fan-out
// across slots happens inside the backend (accel/simaccel uses
// traverse.Each). The original's
// four-semaphore handoff collapses to the three synchronous steps
// (dispatch, backend.RunPass, per-slot WaitPass) a goroutine-free driver
// needs, since Go's scheduler -- not an explicit semaphore chain -- already
// serialises them within one RunRound call.
package pass

import (
	"context"
	"fmt"
	"time"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"

	"github.com/upmem/genomee/align"
	"github.com/upmem/genomee/backend"
	"github.com/upmem/genomee/config"
	"github.com/upmem/genomee/dispatch"
	"github.com/upmem/genomee/genomectx"
	"github.com/upmem/genomee/reads"
	"github.com/upmem/genomee/request"
)

// Read is one input read pair member carried through a round: a numeric id,
// its display name (for unmapped re-emission), and its packed symbols.
type Read struct {
	ID      uint32
	Name    string
	Packed  []byte
	Symbols []byte // ASCII bases as read from the input, including any skipped >>N prefix; only needed if the read stays unmapped.
}

// Timing is one round's per-stage wall-clock report, mirroring
// original_source/host/src/upvc_host.c's dispatch/execute/accumulate
// report.
type Timing struct {
	Round             int
	DispatchMS        int64
	ExecuteMS         int64
	AccumulateMS      int64
	Mapped, Unmapped int
}

// TimingWriter persists one round's Timing.
type TimingWriter interface {
	WriteTiming(ctx context.Context, t Timing) error
}

// FileTimingWriter appends one CSV row per round to "<prefix>_<round>_time.csv".
type FileTimingWriter struct {
	Prefix string
}

// WriteTiming implements TimingWriter.
func (w *FileTimingWriter) WriteTiming(ctx context.Context, t Timing) (err error) {
	path := fmt.Sprintf("%s_%d_time.csv", w.Prefix, t.Round)
	dst, err := file.Create(ctx, path)
	if err != nil {
		return fmt.Errorf("pass: create %s: %w", path, err)
	}
	defer file.CloseAndReport(ctx, dst, &err)

	_, err = fmt.Fprintf(dst.Writer(ctx), "round,dispatch_ms,execute_ms,accumulate_ms,mapped,unmapped\n%d,%d,%d,%d,%d,%d\n",
		t.Round, t.DispatchMS, t.ExecuteMS, t.AccumulateMS, t.Mapped, t.Unmapped)
	return err
}

var bases = [4]byte{'A', 'C', 'T', 'G'}

// Driver runs the three-stage pipeline over one round's worth of reads,
// against NumSlots accelerator slots backed by Backend.
type Driver struct {
	Backend    backend.Backend
	Dispatcher *dispatch.Dispatcher
	Ctx        *genomectx.Context
	NumSlots   int

	// UnmappedWriter, if non-nil, is called at the end of every round with
	// that round's unmapped reads.
	UnmappedWriter reads.Writer
	// Timing, if non-nil, is called at the end of every round.
	Timing TimingWriter
}

// Init reserves the backend's resources, once, before the first round.
func (d *Driver) Init(ctx context.Context) error {
	return d.Backend.Init(ctx)
}

// Close releases the backend's resources, once, after the last round.
func (d *Driver) Close(ctx context.Context) error {
	return d.Backend.Free(ctx)
}

type bestHit struct {
	score  uint32
	read   Read
	cand   request.Candidate
}

// RunRound runs one pass over batch: dispatch, backend execution, accumulate,
// and variant calling, returning the reads that mapped and the reads that
// did not. mate identifies which paired-end file batch belongs to, passed
// through to UnmappedWriter.
func (d *Driver) RunRound(ctx context.Context, round, mate int, batch []Read) (mapped, unmapped []Read, err error) {
	delta := config.Delta(round)

	dispatchStart := time.Now()
	byID := make(map[uint32]Read, len(batch))
	reqReads := make([]request.Read, len(batch))
	for i, r := range batch {
		byID[r.ID] = r
		reqReads[i] = request.Read{ID: r.ID, Packed: r.Packed}
	}

	slotReqs, err := d.Dispatcher.Dispatch(reqReads)
	if err != nil {
		return nil, nil, fmt.Errorf("pass: round %d: %w", round, err)
	}
	shrinkCandidates(slotReqs, delta)
	dispatchMS := time.Since(dispatchStart).Milliseconds()

	executeStart := time.Now()
	for slot, reqs := range slotReqs {
		header := request.NewRequestHeader(len(reqs))
		if err := d.Backend.LoadScratch(ctx, int(slot), header, reqs); err != nil {
			return nil, nil, fmt.Errorf("pass: round %d: load slot %d: %w", round, slot, err)
		}
	}
	if err := d.Backend.RunPass(ctx); err != nil {
		return nil, nil, fmt.Errorf("pass: round %d: %w", round, err)
	}
	executeMS := time.Since(executeStart).Milliseconds()

	accumulateStart := time.Now()
	best := make(map[uint32]bestHit)
	for slot, reqs := range slotReqs {
		results, err := d.Backend.WaitPass(ctx, int(slot))
		if err != nil {
			return nil, nil, fmt.Errorf("pass: round %d: wait slot %d: %w", round, slot, err)
		}
		for _, res := range results {
			if res.IsSentinel() {
				continue
			}
			cand, ok := candidateFor(reqs, res.ReadID, res.SeedNr)
			if !ok {
				continue
			}
			r, ok := byID[res.ReadID]
			if !ok {
				continue
			}
			if cur, exists := best[res.ReadID]; !exists || res.Score < cur.score {
				best[res.ReadID] = bestHit{score: res.Score, read: r, cand: cand}
			}
		}
	}

	for _, r := range batch {
		hit, ok := best[r.ID]
		if !ok {
			unmapped = append(unmapped, r)
			continue
		}
		mapped = append(mapped, r)
		d.callVariant(hit)
	}
	accumulateMS := time.Since(accumulateStart).Milliseconds()

	if d.UnmappedWriter != nil && len(unmapped) > 0 {
		toWrite := make([]reads.Unmapped, len(unmapped))
		for i, r := range unmapped {
			toWrite[i] = reads.Unmapped{Name: r.Name, Symbols: r.Symbols}
		}
		if err := d.UnmappedWriter.WriteUnmapped(ctx, round, mate, toWrite); err != nil {
			return mapped, unmapped, fmt.Errorf("pass: round %d: write unmapped: %w", round, err)
		}
	}

	t := Timing{Round: round, DispatchMS: dispatchMS, ExecuteMS: executeMS, AccumulateMS: accumulateMS,
		Mapped: len(mapped), Unmapped: len(unmapped)}
	if d.Timing != nil {
		if err := d.Timing.WriteTiming(ctx, t); err != nil {
			log.Error.Printf("pass: round %d: write timing: %v", round, err)
		}
	}
	return mapped, unmapped, nil
}

// shrinkCandidates trims every request's candidate neighbourhoods by delta
// packed bytes, the per-round shrinkage: later rounds examine a narrower
// window around the seed, trading exactness for reach into reads whose
// earlier rounds failed to seed at all.
func shrinkCandidates(slotReqs map[uint32][]request.Request, delta int) {
	if delta <= 0 {
		return
	}
	for _, reqs := range slotReqs {
		for i := range reqs {
			cands := reqs[i].Candidates
			for j := range cands {
				if n := len(cands[j].Packed) - delta; n > 0 {
					cands[j].Packed = cands[j].Packed[:n]
				}
			}
		}
	}
}

func candidateFor(reqs []request.Request, readID, seedNr uint32) (request.Candidate, bool) {
	for _, req := range reqs {
		if req.ReadID != readID {
			continue
		}
		if int(seedNr) < len(req.Candidates) {
			return req.Candidates[seedNr], true
		}
		return request.Candidate{}, false
	}
	return request.Candidate{}, false
}

// callVariant translates a mapped read into variant calls that the variant
// store deduplicates: it walks the read against its winning candidate's
// reference bases and records every mismatching position as a substitution.
// INDEL variants would require an ODPD traceback path, but ODPD returns
// only a score, not an alignment; this driver therefore calls substitution
// variants only, the same scope NoDP itself covers.
func (d *Driver) callVariant(hit bestHit) {
	n := len(hit.read.Packed) * 4
	if m := len(hit.cand.Packed) * 4; m < n {
		n = m
	}
	seqNr, offset := hit.cand.Coord.SeqNr, hit.cand.Coord.Offset
	d.Ctx.EnsureCoverage(seqNr, int(offset)+n)
	for i := 0; i < n; i++ {
		d.Ctx.IncrementCoverage(seqNr, offset+uint32(i))
		readBase := align.NtAt(hit.read.Packed, i)
		refBase := align.NtAt(hit.cand.Packed, i)
		if readBase != refBase {
			ref := string(bases[refBase&3])
			alt := string(bases[readBase&3])
			d.Ctx.Store.Insert(seqNr, offset+uint32(i), ref, alt, hit.score)
		}
	}
}
