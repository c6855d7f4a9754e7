// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package dout implements the per-worker output buffer: a capped local cache
// of result records that spills to snappy-compressed pages in the worker's
// private spill area once the cache fills, the same "buffer until full,
// then compress the page once" discipline encoding/bampair/disk_mate_shard.go
// uses for its distant-mate shards.
package dout

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/snappy"
	"github.com/upmem/genomee/config"
	"github.com/upmem/genomee/request"
)

// maxPages is the largest number of spill pages a DOut may hold before the
// worker's private spill area (sized MAX_RESULTS_PER_READ) overflows.
var maxPages = config.MaxResultsPerRead / config.MaxLocalResultsPerRead

// DOut is one worker's output buffer. Zero value is not usable; construct
// with New.
type DOut struct {
	workerID  int
	spillBase int
	local     []request.Result
	pages     [][]byte // each a snappy-compressed page of up to N records
}

// New returns a DOut for the given worker id.
func New(workerID int) *DOut {
	return &DOut{
		workerID: workerID,
		local:    make([]request.Result, 0, config.MaxLocalResultsPerRead),
	}
}

// Clear resets the buffer at a read boundary.
func (d *DOut) Clear() {
	d.local = d.local[:0]
	d.pages = d.pages[:0]
}

// SwapPageAddr repoints the buffer at a different base address within the
// worker's private spill area. It only records the address; the spilled
// pages already held are unaffected.
func (d *DOut) SwapPageAddr(base int) {
	d.spillBase = base
}

// SpillBase returns the buffer's current base address.
func (d *DOut) SpillBase() int { return d.spillBase }

// NbCachedOut is nb_cached_out: the number of records currently held in the
// local cache (not yet spilled).
func (d *DOut) NbCachedOut() int { return len(d.local) }

// NbPageOut is nb_page_out: the number of pages written to the spill area.
func (d *DOut) NbPageOut() int { return len(d.pages) }

// NbResults is nb_results: the total number of records ever added, spilled
// or cached. Invariant: NbPageOut()*N + NbCachedOut() == NbResults().
func (d *DOut) NbResults() int {
	return d.NbPageOut()*config.MaxLocalResultsPerRead + d.NbCachedOut()
}

// Add appends one result record, spilling the current cache as a compressed
// page first if it is full. It returns an error -- a fatal engineering
// condition, never expected in normal operation -- if the spill area would
// overflow MAX_RESULTS_PER_READ.
func (d *DOut) Add(num, score, seedNr, seqNr uint32) error {
	if len(d.local) == cap(d.local) {
		if len(d.pages) >= maxPages {
			return fmt.Errorf("dout: worker %d spill area overflow: nb_page_out=%d exceeds MAX_RESULTS_PER_READ/N=%d",
				d.workerID, len(d.pages), maxPages)
		}
		page, err := encodePage(d.local)
		if err != nil {
			return fmt.Errorf("dout: worker %d: %w", d.workerID, err)
		}
		d.pages = append(d.pages, page)
		d.local = d.local[:0]
	}
	d.local = append(d.local, request.Result{ReadID: num, Score: score, SeedNr: seedNr, SeqNr: seqNr})
	return nil
}

// CachedRecords returns the records still held in the local cache (not yet
// spilled). The returned slice aliases the DOut's internal buffer and is
// only valid until the next Add or Clear.
func (d *DOut) CachedRecords() []request.Result {
	return d.local
}

// Page decodes and returns the i'th spilled page's records, for the result
// pool to copy out during the write-back pass.
func (d *DOut) Page(i int) ([]request.Result, error) {
	if i < 0 || i >= len(d.pages) {
		return nil, fmt.Errorf("dout: worker %d: page index %d out of range [0,%d)", d.workerID, i, len(d.pages))
	}
	return decodePage(d.pages[i])
}

func encodePage(records []request.Result) ([]byte, error) {
	raw := make([]byte, len(records)*config.ResultRecordSize)
	for i, r := range records {
		off := i * config.ResultRecordSize
		binary.LittleEndian.PutUint32(raw[off:], r.ReadID)
		binary.LittleEndian.PutUint32(raw[off+4:], r.Score)
		binary.LittleEndian.PutUint32(raw[off+8:], r.SeedNr)
		binary.LittleEndian.PutUint32(raw[off+12:], r.SeqNr)
	}
	return snappy.Encode(nil, raw), nil
}

func decodePage(compressed []byte) ([]request.Result, error) {
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("dout: decoding spill page: %w", err)
	}
	n := len(raw) / config.ResultRecordSize
	out := make([]request.Result, n)
	for i := 0; i < n; i++ {
		off := i * config.ResultRecordSize
		out[i] = request.Result{
			ReadID: binary.LittleEndian.Uint32(raw[off:]),
			Score:  binary.LittleEndian.Uint32(raw[off+4:]),
			SeedNr: binary.LittleEndian.Uint32(raw[off+8:]),
			SeqNr:  binary.LittleEndian.Uint32(raw[off+12:]),
		}
	}
	return out, nil
}
