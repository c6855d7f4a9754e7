// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package accumulate implements the accumulator: for each request it keeps
// only the candidate hits whose score equals the running minimum seen so
// far for that request, rewinding past any tentative hits once a strictly
// better score appears.
package accumulate

import (
	"fmt"

	"github.com/upmem/genomee/config"
	"github.com/upmem/genomee/request"
)

// CandidateScore is one candidate neighbour's alignment result within a
// request: its score, its index into the request's own Candidates slice
// (so the winning neighbour can be recovered later), and the chromosome it
// came from.
type CandidateScore struct {
	Score  uint32
	SeedNr uint32
	SeqNr  uint32
}

// Accumulator accumulates surviving records across every request processed
// in one worker's pass, ending with a sentinel that terminates the worker's
// output stream.
type Accumulator struct {
	out []request.Result
}

// New returns an empty Accumulator.
func New() *Accumulator {
	return &Accumulator{}
}

// Reset clears the accumulator at the start of a new pass.
func (a *Accumulator) Reset() {
	a.out = a.out[:0]
}

// Records returns the records accumulated so far. The returned slice aliases
// the Accumulator's internal buffer and is only valid until the next
// ProcessRequest, Finish, or Reset.
func (a *Accumulator) Records() []request.Result {
	return a.out
}

// ProcessRequest runs the min-score retention state machine over one
// request's scored candidates, in iteration order, and appends the
// survivors to the accumulator's growing output: min starts at MAX_SCORE
// and writeStart snaps to the output's current length; a strictly better
// score rewinds the output back to writeStart before appending, an equal
// score appends, and a worse score is ignored. It returns an error if the
// output would grow past MAX_DPU_RESULTS-1, a fatal engineering error
// rather than a user error.
func (a *Accumulator) ProcessRequest(readID uint32, hits []CandidateScore) error {
	writeStart := len(a.out)
	min := uint32(config.MaxScore)

	for _, h := range hits {
		switch {
		case h.Score > min:
			continue
		case h.Score == min:
			a.out = append(a.out, request.Result{ReadID: readID, Score: h.Score, SeedNr: h.SeedNr, SeqNr: h.SeqNr})
		default: // h.Score < min
			a.out = a.out[:writeStart]
			min = h.Score
			a.out = append(a.out, request.Result{ReadID: readID, Score: h.Score, SeedNr: h.SeedNr, SeqNr: h.SeqNr})
		}
		if len(a.out) > config.MaxDPUResults-1 {
			return fmt.Errorf("accumulate: output grew to %d records, exceeding MAX_DPU_RESULTS-1 (%d)",
				len(a.out), config.MaxDPUResults-1)
		}
	}
	return nil
}

// Finish appends the worker's terminating sentinel record.
func (a *Accumulator) Finish() {
	a.out = append(a.out, request.Sentinel)
}
