// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package config holds the build-time constants shared by every component of
// the alignment core: read/seed geometry, kernel costs, and the capacity
// limits that bound the per-worker and per-accelerator data structures.
//
// These mirror the compile-time #defines of the original DPU implementation
// (dpu/inc/*.h, host/inc/*.h in original_source/): they are fixed at build
// time because the accelerator's scratch-RAM layout is sized around them.
package config

// ReadLength (L) and SeedLength (S) are the two geometry constants that
// every packed-sequence computation in this repository is built around. They
// default to the values used for short-read paired-end sequencing (120bp
// reads, 32-symbol seeds); a build targeting a different read length must
// change both together, along with NBRBytes below.
var (
	ReadLength = 120
	SeedLength = 32
)

// NBRBytes returns NBR_BYTES = (L-S)/4, the packed neighbourhood byte length.
func NBRBytes() int {
	return (ReadLength - SeedLength) / 4
}

// Delta returns S*round/4, the per-round neighbourhood shrinkage applied as
// the retry rounds widen the seed offset and narrow the surviving
// neighbourhood.
func Delta(round int) int {
	return SeedLength * round / 4
}

// NumRounds is the number of seed-offset retry rounds the pass driver
// performs before giving up on a read.
const NumRounds = 3

// Alignment costs. These match the original implementation's scoring
// constants for an affine-gap cost model tuned for Illumina-style
// substitution/indel rates.
const (
	CostSub  = 10
	CostGapOpen   = 11
	CostGapExtend = 2
)

// NBDiag is the total diagonal band width used by ODPD; half-width
// `diagonal` is NBDiag/2 + 1.
const NBDiag = 40

// Diagonal is the banded half-width around the main diagonal of the ODPD
// matrix.
func Diagonal() int {
	return NBDiag/2 + 1
}

// PQDInitVal is the large sentinel used to initialize DP cells outside the
// band.
const PQDInitVal = 1 << 20

// MaxScore is used by the accumulator and kernels as "worse than any real
// score".
const MaxScore = 1<<32 - 1

// Per-worker / per-accelerator capacity limits.
const (
	// MaxLocalResultsPerRead (N) bounds DOUT's local cache.
	MaxLocalResultsPerRead = 16

	// MaxResultsPerRead bounds a worker's private spill area.
	MaxResultsPerRead = 1024

	// MaxDPUResults bounds the shared result pool on one accelerator,
	// including the trailing sentinel slot.
	MaxDPUResults = 1 << 16

	// NumTaskletsPerDPU is the number of cooperative workers sharing one
	// accelerator's scratch RAM.
	NumTaskletsPerDPU = 16
)

// RequestMagic is the magic number asserted by the accelerator side of the
// request header: retained verbatim even though nothing here depends on its
// specific value.
const RequestMagic = 0xcdefabcd

// ResultRecordSize is the fixed, 8-byte-aligned size of one result record.
const ResultRecordSize = 16

// SentinelID and SentinelScore mark the end of a result stream: a record
// with both fields equal to 2^32-1.
const (
	SentinelID    = 1<<32 - 1
	SentinelScore = 1<<32 - 1
)
