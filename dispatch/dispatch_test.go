// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package dispatch_test

import (
	"strings"
	"testing"

	"github.com/upmem/genomee/config"
	"github.com/upmem/genomee/dispatch"
	"github.com/upmem/genomee/index"
	"github.com/upmem/genomee/request"
)

func seedBytes() []byte {
	return make([]byte, config.SeedLength/4)
}

func TestDispatchRoutesBySeedHit(t *testing.T) {
	idx := index.NewSimIndex(2)
	seed := seedBytes()
	idx.Insert(seed, request.Candidate{Packed: []byte{1}})
	idx.Insert(seed, request.Candidate{Packed: []byte{2}})

	d := dispatch.New(idx, 1<<20)
	reads := []request.Read{{ID: 1, Packed: make([]byte, config.ReadLength/4)}}
	got, err := d.Dispatch(reads)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	total := 0
	for _, reqs := range got {
		for _, r := range reqs {
			if r.ReadID != 1 {
				t.Fatalf("Request.ReadID = %d, want 1", r.ReadID)
			}
			total += len(r.Candidates)
		}
	}
	if total == 0 {
		t.Fatalf("Dispatch produced no requests for a read with seed hits")
	}
}

func TestDispatchRejectsShortRead(t *testing.T) {
	idx := index.NewSimIndex(1)
	d := dispatch.New(idx, 1<<20)
	_, err := d.Dispatch([]request.Read{{ID: 1, Packed: []byte{0}}})
	if err == nil || !strings.Contains(err.Error(), "shorter than one seed") {
		t.Fatalf("Dispatch(short read) = %v, want a 'shorter than one seed' error", err)
	}
}

func TestDispatchFatalOnCapacityOverrun(t *testing.T) {
	idx := index.NewSimIndex(1)
	seed := seedBytes()
	for i := 0; i < 5; i++ {
		idx.Insert(seed, request.Candidate{Packed: []byte{byte(i)}})
	}
	d := dispatch.New(idx, 2) // capacity smaller than the 5 candidates inserted.
	reads := []request.Read{{ID: 1, Packed: make([]byte, config.ReadLength/4)}}
	if _, err := d.Dispatch(reads); err == nil {
		t.Fatalf("expected a capacity-overrun error, got none")
	}
}
