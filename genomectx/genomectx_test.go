// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package genomectx_test

import (
	"testing"

	"github.com/upmem/genomee/genomectx"
	"github.com/upmem/genomee/variant"
)

func TestCoverageIncrementAndLookup(t *testing.T) {
	ctx := genomectx.New()
	ctx.EnsureCoverage(0, 10)
	ctx.IncrementCoverage(0, 5)
	ctx.IncrementCoverage(0, 5)
	ctx.IncrementCoverage(0, 5)

	if got := ctx.CoverageAt(0, 5); got != 3 {
		t.Fatalf("CoverageAt(0,5) = %d, want 3", got)
	}
	if got := ctx.At(0, 5); got != 3 {
		t.Fatalf("At(0,5) = %d, want 3 (variant.CoverageLookup adapter)", got)
	}
	if got := ctx.CoverageAt(0, 6); got != 0 {
		t.Fatalf("CoverageAt(0,6) = %d, want 0", got)
	}
}

func TestCoverageOutOfRangeOffsetIsIgnored(t *testing.T) {
	ctx := genomectx.New()
	ctx.EnsureCoverage(0, 4)
	ctx.IncrementCoverage(0, 100) // beyond the allocated range
	if got := ctx.CoverageAt(0, 100); got != 0 {
		t.Fatalf("CoverageAt out of range = %d, want 0", got)
	}
}

func TestEnsureCoveragePreservesExistingCounts(t *testing.T) {
	ctx := genomectx.New()
	ctx.EnsureCoverage(0, 4)
	ctx.IncrementCoverage(0, 2)
	ctx.EnsureCoverage(0, 20) // grow
	if got := ctx.CoverageAt(0, 2); got != 1 {
		t.Fatalf("CoverageAt(0,2) after growth = %d, want 1", got)
	}
}

func TestRoundsCompletedCounter(t *testing.T) {
	ctx := genomectx.New()
	if got := ctx.RoundsCompleted(); got != 0 {
		t.Fatalf("RoundsCompleted() = %d, want 0", got)
	}
	ctx.MarkRoundCompleted()
	ctx.MarkRoundCompleted()
	if got := ctx.RoundsCompleted(); got != 2 {
		t.Fatalf("RoundsCompleted() = %d, want 2", got)
	}
}

func TestDestroyClearsStoreAndCoverage(t *testing.T) {
	ctx := genomectx.New()
	ctx.EnsureCoverage(0, 4)
	ctx.IncrementCoverage(0, 1)
	ctx.Store.Insert(0, 1, "A", "G", 10)

	ctx.Destroy()

	var positions []variant.Position
	ctx.Store.Walk(func(p variant.Position) { positions = append(positions, p) })
	if len(positions) != 0 {
		t.Fatalf("Store still has %d positions after Destroy", len(positions))
	}
	if got := ctx.CoverageAt(0, 1); got != 0 {
		t.Fatalf("CoverageAt after Destroy = %d, want 0", got)
	}
}
