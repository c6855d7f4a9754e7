// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package dpuaccel

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/upmem/genomee/align"
	"github.com/upmem/genomee/config"
	"github.com/upmem/genomee/dout"
	"github.com/upmem/genomee/request"
	"github.com/upmem/genomee/resultpool"
)

// FakeRank is a software-only DPURank that genuinely performs the
// tasklet-side computation a real rank's firmware would: it decodes the
// request and partition blobs CopyTo wrote, scores every candidate with
// the same kernels the firmware runs, buffers hits through a dout.DOut per
// simulated tasklet, and commits them into a shared resultpool.Pool by
// serializing every worker's DOUT into one sentinel-terminated stream. It
// stands in for hardware firmware, not for the host-thread simulation of
// accel/simaccel.
type FakeRank struct {
	nbSlots int
	program string

	mu       sync.Mutex
	allocated bool
	requestInfo map[int][]byte
	requestData map[int][]byte
	partition   map[int][]byte
	pools       map[int]*resultpool.Pool
	status      Status
}

// NewFakeRank returns a FakeRank with no slots allocated; call Allocate
// before use, the same lifecycle a real DPURank requires.
func NewFakeRank() *FakeRank {
	return &FakeRank{status: StatusIdle}
}

func (f *FakeRank) Allocate(nbSlots int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nbSlots = nbSlots
	f.requestInfo = make(map[int][]byte, nbSlots)
	f.requestData = make(map[int][]byte, nbSlots)
	f.partition = make(map[int][]byte, nbSlots)
	f.pools = make(map[int]*resultpool.Pool, nbSlots)
	f.allocated = true
	f.status = StatusIdle
	return nil
}

func (f *FakeRank) LoadProgram(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.allocated {
		return fmt.Errorf("dpuaccel: FakeRank.LoadProgram called before Allocate")
	}
	f.program = path
	return nil
}

func (f *FakeRank) CopyTo(addr string, slot int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if slot < 0 || slot >= f.nbSlots {
		return fmt.Errorf("dpuaccel: FakeRank.CopyTo slot %d out of range [0,%d)", slot, f.nbSlots)
	}
	buf := append([]byte{}, data...)
	switch addr {
	case RequestInfoAddr:
		f.requestInfo[slot] = buf
	case RequestAddr:
		f.requestData[slot] = buf
	case PartitionAddr:
		f.partition[slot] = buf
	default:
		return fmt.Errorf("dpuaccel: FakeRank.CopyTo unknown address %q", addr)
	}
	return nil
}

func (f *FakeRank) CopyFrom(addr string, slot int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch addr {
	case ResultAddr:
		pool, ok := f.pools[slot]
		if !ok {
			return nil, fmt.Errorf("dpuaccel: FakeRank.CopyFrom RESULT_ADDR: slot %d has no results, BootAsync not run", slot)
		}
		return encodeResultStream(pool), nil
	case TaskletStatsAddr:
		return []byte(fmt.Sprintf("fakerank: program=%s slots=%d", f.program, f.nbSlots)), nil
	default:
		return nil, fmt.Errorf("dpuaccel: FakeRank.CopyFrom unknown address %q", addr)
	}
}

// BootAsync runs every loaded slot's requests to completion synchronously;
// PollStatus reports StatusDone on the very next call, matching a rank fast
// enough that the poll loop never observes StatusRunning.
func (f *FakeRank) BootAsync() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	readSymbolLen := config.ReadLength / 4
	for slot := 0; slot < f.nbSlots; slot++ {
		info, hasInfo := f.requestInfo[slot]
		data := f.requestData[slot]
		if !hasInfo {
			continue
		}
		_, reqs := DecodeRequests(info, data, readSymbolLen)
		candidates := DecodePartition(f.partition[slot])

		pool := resultpool.New()
		if err := f.runSlot(slot, reqs, candidates, pool); err != nil {
			f.status = StatusError
			return err
		}
		f.pools[slot] = pool
	}
	f.status = StatusDone
	return nil
}

// runSlot simulates NumTaskletsPerDPU cooperative workers each draining a
// share of reqs round-robin, one dout.DOut apiece, committed into pool in
// tasklet order.
func (f *FakeRank) runSlot(slot int, reqs []request.Request, candidates []request.Candidate, pool *resultpool.Pool) error {
	workers := make([]*dout.DOut, config.NumTaskletsPerDPU)
	for w := range workers {
		workers[w] = dout.New(w)
	}

	for i, req := range reqs {
		w := workers[i%len(workers)]
		cands := req.Candidates
		if len(cands) == 0 && req.Count > 0 {
			start, end := req.Offset, req.Offset+req.Count
			if end <= uint32(len(candidates)) {
				cands = candidates[start:end]
			}
		}
		for seedNr, cand := range cands {
			score := scoreCandidate(req.ReadSymbol, cand.Packed)
			if err := w.Add(req.ReadID, score, uint32(seedNr), cand.Coord.SeqNr); err != nil {
				return fmt.Errorf("dpuaccel: slot %d: %w", slot, err)
			}
		}
	}

	for _, w := range workers {
		if err := pool.Write(w); err != nil {
			return fmt.Errorf("dpuaccel: slot %d: %w", slot, err)
		}
	}
	return nil
}

// scoreCandidate runs the NoDP substitution scan, falling back to ODPD when
// the INDEL probe fires, the same two-kernel scoring accel/simaccel uses.
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

func encodeResultStream(pool *resultpool.Pool) []byte {
	committed := pool.Committed()
	out := make([]byte, 0, (len(committed)+1)*config.ResultRecordSize)
	for _, r := range committed {
		out = append(out, encodeResult(r)...)
	}
	out = append(out, encodeResult(request.Sentinel)...)
	return out
}

func encodeResult(r request.Result) []byte {
	rec := make([]byte, config.ResultRecordSize)
	binary.LittleEndian.PutUint32(rec[0:4], r.ReadID)
	binary.LittleEndian.PutUint32(rec[4:8], r.Score)
	binary.LittleEndian.PutUint32(rec[8:12], r.SeedNr)
	binary.LittleEndian.PutUint32(rec[12:16], r.SeqNr)
	return rec
}

func (f *FakeRank) PollStatus() (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, nil
}

func (f *FakeRank) Free() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allocated = false
	f.requestInfo = nil
	f.requestData = nil
	f.partition = nil
	f.pools = nil
	f.status = StatusIdle
	return nil
}
