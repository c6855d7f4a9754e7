// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package resultpool implements the shared, mutex-protected result sink that
// serialises every worker's DOUT buffer on one accelerator into a single
// sentinel-terminated result stream. It follows the same "one mutex, short
// critical section, bursty writers" discipline as diskMateShard's
// add/closeWriter pair in encoding/bampair/disk_mate_shard.go.
package resultpool

import (
	"fmt"
	"sync"

	"github.com/upmem/genomee/config"
	"github.com/upmem/genomee/dout"
	"github.com/upmem/genomee/request"
)

// Pool is the shared sink for one accelerator. The zero value is not usable;
// construct with New.
type Pool struct {
	mu       sync.Mutex
	records  []request.Result
	wridx    int
	capacity int
}

// New allocates a pool with room for config.MaxDPUResults records (including
// the trailing sentinel slot) and resets it: the write cursor is rewound to
// the start of a fresh pass before every pass begins.
func New() *Pool {
	p := &Pool{
		records:  make([]request.Result, config.MaxDPUResults),
		capacity: config.MaxDPUResults,
	}
	p.Reset()
	return p
}

// Reset rewinds the write cursor to the start of a fresh pass and terminates
// the (empty) stream with a sentinel.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wridx = 0
	p.records[0] = request.Sentinel
}

// WrIdx returns the pool's current write cursor, for tests and diagnostics.
func (p *Pool) WrIdx() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wridx
}

// Committed returns the records written so far, excluding the sentinel.
// The returned slice aliases the pool's internal buffer and is only valid
// until the next Write or Reset.
func (p *Pool) Committed() []request.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.records[:p.wridx]
}

// RecordAt returns the record at index i, for checking that the record at
// the write cursor is always the sentinel.
func (p *Pool) RecordAt(i int) request.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.records[i]
}

// Write serialises one worker's DOUT buffer into the pool: first its
// spilled pages in order, then its still-cached records, then an
// unconditional sentinel at the new cursor (without advancing past it, so
// the next writer overwrites and re-terminates). It returns an error -- a
// fatal capacity overrun -- if committing either the pages or the cached
// records would overshoot MAX_DPU_RESULTS-1.
func (p *Pool) Write(d *dout.DOut) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < d.NbPageOut(); i++ {
		recs, err := d.Page(i)
		if err != nil {
			return fmt.Errorf("resultpool: %w", err)
		}
		if err := p.appendLocked(recs); err != nil {
			return err
		}
	}
	if err := p.appendLocked(d.CachedRecords()); err != nil {
		return err
	}
	p.records[p.wridx] = request.Sentinel
	return nil
}

func (p *Pool) appendLocked(recs []request.Result) error {
	if len(recs) == 0 {
		return nil
	}
	if p.wridx+len(recs) > p.capacity-1 {
		return fmt.Errorf("resultpool: write would overshoot MAX_DPU_RESULTS-1 (wridx=%d, n=%d, capacity=%d)",
			p.wridx, len(recs), p.capacity)
	}
	copy(p.records[p.wridx:], recs)
	p.wridx += len(recs)
	return nil
}
