// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pass_test

import (
	"context"
	"testing"

	"github.com/upmem/genomee/accel/simaccel"
	"github.com/upmem/genomee/config"
	"github.com/upmem/genomee/dispatch"
	"github.com/upmem/genomee/genomectx"
	"github.com/upmem/genomee/index"
	"github.com/upmem/genomee/pass"
	"github.com/upmem/genomee/request"
	"github.com/upmem/genomee/variant"
)

func TestRunRoundMapsAReadAndCallsAVariant(t *testing.T) {
	ctx := context.Background()

	seedBytes := config.SeedLength / 4
	readPacked := make([]byte, seedBytes)
	for i := range readPacked {
		readPacked[i] = 0x1b
	}
	candPacked := append([]byte{}, readPacked...)
	candPacked[0] ^= 0x01 // one differing base at logical position 0

	idx := index.NewSimIndex(1)
	idx.Insert(readPacked, request.Candidate{
		Packed: candPacked,
		Coord:  request.Coord{SeqNr: 3, Offset: 1000},
	})

	driver := &pass.Driver{
		Backend:    simaccel.New(1),
		Dispatcher: dispatch.New(idx, 64),
		Ctx:        genomectx.New(),
		NumSlots:   1,
	}
	if err := driver.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer driver.Close(ctx)

	batch := []pass.Read{{ID: 7, Name: "read0", Packed: readPacked, Symbols: []byte("ACGTACGTACGTACGTACGTACGTACGTACGT")}}
	mapped, unmapped, err := driver.RunRound(ctx, 0, 1, batch)
	if err != nil {
		t.Fatalf("RunRound: %v", err)
	}
	if len(mapped) != 1 {
		t.Fatalf("len(mapped) = %d, want 1", len(mapped))
	}
	if len(unmapped) != 0 {
		t.Fatalf("len(unmapped) = %d, want 0", len(unmapped))
	}

	var positions []variant.Position
	driver.Ctx.Store.Walk(func(p variant.Position) { positions = append(positions, p) })
	if len(positions) != 1 {
		t.Fatalf("len(positions) = %d, want 1 variant position", len(positions))
	}
	if positions[0].SeqNr != 3 || positions[0].Offset != 1000 {
		t.Fatalf("position = %+v, want SeqNr=3 Offset=1000", positions[0])
	}
	if len(positions[0].Entries) != 1 || positions[0].Entries[0].Depth != 1 {
		t.Fatalf("entries = %+v, want one entry with depth 1", positions[0].Entries)
	}
}

func TestRunRoundLeavesUnseededReadsUnmapped(t *testing.T) {
	ctx := context.Background()
	idx := index.NewSimIndex(1)

	driver := &pass.Driver{
		Backend:    simaccel.New(1),
		Dispatcher: dispatch.New(idx, 64),
		Ctx:        genomectx.New(),
		NumSlots:   1,
	}
	if err := driver.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer driver.Close(ctx)

	seedBytes := config.SeedLength / 4
	readPacked := make([]byte, seedBytes)
	batch := []pass.Read{{ID: 1, Name: "lonely", Packed: readPacked, Symbols: []byte("ACGT")}}
	mapped, unmapped, err := driver.RunRound(ctx, 0, 1, batch)
	if err != nil {
		t.Fatalf("RunRound: %v", err)
	}
	if len(mapped) != 0 {
		t.Fatalf("len(mapped) = %d, want 0 (no seed hits registered)", len(mapped))
	}
	if len(unmapped) != 1 {
		t.Fatalf("len(unmapped) = %d, want 1", len(unmapped))
	}
}
