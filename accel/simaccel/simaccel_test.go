// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package simaccel

import (
	"context"
	"testing"

	"github.com/upmem/genomee/request"
)

func TestInitFreeReservesAndReleasesArena(t *testing.T) {
	ctx := context.Background()
	b := New(4)
	if err := b.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if b.arenaSize() == 0 {
		t.Fatalf("arenaSize() = 0 after Init")
	}
	if err := b.Free(ctx); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if b.arenaSize() != 0 {
		t.Fatalf("arenaSize() = %d after Free, want 0", b.arenaSize())
	}
}

func TestLoadScratchRejectsOutOfRangeSlot(t *testing.T) {
	b := New(2)
	err := b.LoadScratch(context.Background(), 5, request.RequestHeader{}, nil)
	if err == nil {
		t.Fatalf("expected an error for an out-of-range slot")
	}
}

func TestRunPassScoresIdenticalSequenceAsZero(t *testing.T) {
	ctx := context.Background()
	b := New(1)

	read := []byte{0x1b} // arbitrary packed 4-symbol sequence
	reqs := []request.Request{{
		ReadID:     7,
		ReadSymbol: read,
		Candidates: []request.Candidate{{Packed: append([]byte{}, read...)}},
	}}
	if err := b.LoadScratch(ctx, 0, request.RequestHeader{NbReads: 1}, reqs); err != nil {
		t.Fatalf("LoadScratch: %v", err)
	}
	if err := b.RunPass(ctx); err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	results, err := b.WaitPass(ctx, 0)
	if err != nil {
		t.Fatalf("WaitPass: %v", err)
	}
	if len(results) < 2 {
		t.Fatalf("len(results) = %d, want at least one record plus the sentinel", len(results))
	}
	last := results[len(results)-1]
	if !last.IsSentinel() {
		t.Fatalf("last result is not a sentinel: %+v", last)
	}
	for _, r := range results[:len(results)-1] {
		if r.Score != 0 {
			t.Fatalf("identical-sequence result score = %d, want 0: %+v", r.Score, r)
		}
	}
}

func TestWaitPassErrorsWithoutAPriorRunPass(t *testing.T) {
	b := New(1)
	if _, err := b.WaitPass(context.Background(), 0); err == nil {
		t.Fatalf("expected an error when WaitPass is called before RunPass")
	}
}
