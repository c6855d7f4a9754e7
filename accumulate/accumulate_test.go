// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package accumulate_test

import (
	"math/rand"
	"testing"

	"github.com/upmem/genomee/accumulate"
	"github.com/upmem/genomee/config"
)

func scores(vals ...uint32) []accumulate.CandidateScore {
	out := make([]accumulate.CandidateScore, len(vals))
	for i, v := range vals {
		out[i] = accumulate.CandidateScore{Score: v, SeedNr: uint32(i), SeqNr: uint32(i)}
	}
	return out
}

// Scenario 6: candidates with scores [30,25,25,20,25,20] yield two retained
// records, both with score 20.
func TestAccumulatorScenario6(t *testing.T) {
	a := accumulate.New()
	if err := a.ProcessRequest(1, scores(30, 25, 25, 20, 25, 20)); err != nil {
		t.Fatalf("ProcessRequest: %v", err)
	}
	recs := a.Records()
	if len(recs) != 2 {
		t.Fatalf("len(Records()) = %d, want 2", len(recs))
	}
	for _, r := range recs {
		if r.Score != 20 {
			t.Fatalf("record score = %d, want 20", r.Score)
		}
	}
}

// P6: the retained set always equals the candidates whose score equals the
// minimum score seen for that request.
func TestAccumulatorOptimalityProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for trial := 0; trial < 200; trial++ {
		n := rng.Intn(20) + 1
		vals := make([]uint32, n)
		min := uint32(config.MaxScore)
		for i := range vals {
			vals[i] = uint32(rng.Intn(100))
			if vals[i] < min {
				min = vals[i]
			}
		}
		wantCount := 0
		for _, v := range vals {
			if v == min {
				wantCount++
			}
		}

		a := accumulate.New()
		if err := a.ProcessRequest(1, scores(vals...)); err != nil {
			t.Fatalf("ProcessRequest: %v", err)
		}
		recs := a.Records()
		if len(recs) != wantCount {
			t.Fatalf("vals=%v: len(Records()) = %d, want %d", vals, len(recs), wantCount)
		}
		for _, r := range recs {
			if r.Score != min {
				t.Fatalf("vals=%v: record score %d != true min %d", vals, r.Score, min)
			}
		}
	}
}

func TestMultipleRequestsAccumulateIndependently(t *testing.T) {
	a := accumulate.New()
	if err := a.ProcessRequest(1, scores(10, 10)); err != nil {
		t.Fatalf("ProcessRequest(1): %v", err)
	}
	if err := a.ProcessRequest(2, scores(5, 5, 5)); err != nil {
		t.Fatalf("ProcessRequest(2): %v", err)
	}
	recs := a.Records()
	if len(recs) != 5 {
		t.Fatalf("len(Records()) = %d, want 5 (2 + 3)", len(recs))
	}
	for i := 0; i < 2; i++ {
		if recs[i].ReadID != 1 || recs[i].Score != 10 {
			t.Fatalf("recs[%d] = %+v, want ReadID=1 Score=10", i, recs[i])
		}
	}
	for i := 2; i < 5; i++ {
		if recs[i].ReadID != 2 || recs[i].Score != 5 {
			t.Fatalf("recs[%d] = %+v, want ReadID=2 Score=5", i, recs[i])
		}
	}
}

func TestFinishAppendsSentinel(t *testing.T) {
	a := accumulate.New()
	if err := a.ProcessRequest(1, scores(1)); err != nil {
		t.Fatalf("ProcessRequest: %v", err)
	}
	a.Finish()
	recs := a.Records()
	if !recs[len(recs)-1].IsSentinel() {
		t.Fatalf("last record is not sentinel: %+v", recs[len(recs)-1])
	}
}
