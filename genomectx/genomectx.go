// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package genomectx owns the two pieces of state that must stay global
// across every round and pass of a run: the variant store and the
// per-position coverage array. A single Context is created at startup and
// torn down after VCF emission, playing the same "one piece of ambient
// state threaded through main" role that github.com/grailbio/base/vcontext
// plays in cmd/bio-fusion and markduplicates.
package genomectx

import (
	"sync/atomic"

	"github.com/upmem/genomee/variant"
)

// Context is the process-wide state shared by every worker across every
// round and pass.
type Context struct {
	Store *variant.Store

	mu         nopMutex
	coverage   map[uint32][]uint32
	roundsDone int64
}

// nopMutex documents that coverage increments are deliberately
// unsynchronized: single-writer during a pass, so unsynchronized increments
// are acceptable because per-base contention is negligible. Kept as a named
// type rather than a bare comment so the non-synchronization is visible at
// the field declaration, not just in prose.
type nopMutex struct{}

// New returns a Context with an empty variant store and no coverage data
// yet allocated.
func New() *Context {
	return &Context{
		Store:    variant.NewStore(),
		coverage: make(map[uint32][]uint32),
	}
}

// EnsureCoverage allocates (or extends) the coverage slice for seqNr to at
// least length n, so IncrementCoverage/CoverageAt can address offsets
// 0..n-1. The pass driver calls it for each mapped read, before counting
// coverage along that read's span.
func (c *Context) EnsureCoverage(seqNr uint32, n int) {
	cov := c.coverage[seqNr]
	if len(cov) >= n {
		return
	}
	grown := make([]uint32, n)
	copy(grown, cov)
	c.coverage[seqNr] = grown
}

// IncrementCoverage bumps the read depth at (seqNr, offset) by one. This is
// a plain increment, not an atomic one: every worker touching coverage
// during a pass is assumed single-writer-per-base.
func (c *Context) IncrementCoverage(seqNr, offset uint32) {
	cov := c.coverage[seqNr]
	if int(offset) >= len(cov) {
		return
	}
	cov[offset]++
}

// CoverageAt returns the current read depth at (seqNr, offset), or 0 if
// nothing has been recorded there.
func (c *Context) CoverageAt(seqNr, offset uint32) uint32 {
	cov := c.coverage[seqNr]
	if int(offset) >= len(cov) {
		return 0
	}
	return cov[offset]
}

// At implements variant.CoverageLookup, so a Context can be passed directly
// to variant.Emit.
func (c *Context) At(seqNr, offset uint32) uint32 { return c.CoverageAt(seqNr, offset) }

// Destroy releases the variant store and coverage array. Called once, after
// VCF emission.
func (c *Context) Destroy() {
	c.Store.Destroy()
	c.coverage = nil
}

// RoundsCompleted returns the number of rounds completed so far, read with a
// relaxed atomic load.
func (c *Context) RoundsCompleted() int64 { return atomic.LoadInt64(&c.roundsDone) }

// MarkRoundCompleted increments the completed-round counter by one.
// pass.Driver.RunRound does not call it.
func (c *Context) MarkRoundCompleted() { atomic.AddInt64(&c.roundsDone, 1) }
