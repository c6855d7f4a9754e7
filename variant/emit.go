// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package variant

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/klauspost/compress/gzip"
)

// ReferenceLookup supplies the reference data the emitter needs that the
// variant store itself does not hold: contig names for the VCF CHROM column,
// and the raw bases preceding a candidate deletion, for the homopolymer
// suppression rule.
type ReferenceLookup interface {
	// SeqName returns the contig name for seqNr.
	SeqName(seqNr uint32) string
	// PrecedingBases returns the n reference bases immediately before offset
	// (exclusive of offset itself), oldest first.
	PrecedingBases(seqNr, offset uint32, n int) []byte
}

// CoverageLookup supplies the per-position read depth used to compute a
// variant's percentage = depth*100/coverage.
type CoverageLookup interface {
	At(seqNr, offset uint32) uint32
}

// regionSet is a sorted run of interval endpoints for one chromosome:
// [start0, end0, start1, end1, ...], describing the union of the
// half-open ranges [start0,end0), [start1,end1), etc.
type regionSet []uint32

// contains reports whether offset falls in one of r's ranges. r must be
// sorted ascending.
func (r regionSet) contains(offset uint32) bool {
	i := sort.Search(len(r), func(i int) bool { return r[i] > offset })
	return i%2 == 1
}

// EmitOptions controls one Emit call.
type EmitOptions struct {
	// FiltersEnabled runs the depth/score/percentage tables of filter.go;
	// when false only the homopolymer suppression rule applies.
	FiltersEnabled bool

	// Regions, if non-nil, restricts emission to the target ranges named for
	// a given seqNr (vartree.c's IS_IN_TARGET_REGION restriction). A seqNr
	// absent from Regions emits every variant on that chromosome. Each slice
	// must already be sorted ascending, as [start0, end0, start1, end1, ...].
	Regions map[uint32][]uint32
}

// Emit walks store in ascending (seqNr, offset) order and writes one VCF
// body row per surviving variant to path, using github.com/grailbio/base/file
// so the destination may be local or a blob-store URL, and
// github.com/klauspost/compress/gzip when path ends in ".gz" -- the same
// split pileup/snp/output.go makes between bgzf block and plain text
// destinations. Rows follow the 8-column VCF body layout (CHROM, POS, ID,
// REF, ALT, QUAL, FILTER, INFO), with ID/QUAL/FILTER left as "." and
// depth/coverage/score packed into INFO as DEPTH=%d;COV=%d;SCORE=%d, per
// vartree.c's print statement.
//
// Because Store.Walk produces entries in a total, content-derived order
// (position then (ref, alt)) and Emit applies a pure function of each
// Entry's own fields, two Emit calls over an unmodified store produce
// byte-identical output.
func Emit(ctx context.Context, store *Store, ref ReferenceLookup, cov CoverageLookup, path string, opts EmitOptions) (err error) {
	dst, err := file.Create(ctx, path)
	if err != nil {
		return fmt.Errorf("variant: create %s: %w", path, err)
	}
	defer file.CloseAndReport(ctx, dst, &err)

	w := dst.Writer(ctx)
	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(w)
		defer func() {
			if e := gz.Close(); e != nil && err == nil {
				err = e
			}
		}()
		w = gz
	}

	tsvw := tsv.NewWriter(w)
	tsvw.WriteString("#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO")
	if err := tsvw.EndLine(); err != nil {
		return err
	}

	var walkErr error
	store.Walk(func(p Position) {
		if walkErr != nil {
			return
		}
		if ranges, ok := opts.Regions[p.SeqNr]; ok && !regionSet(ranges).contains(p.Offset) {
			return
		}
		coverage := uint32(0)
		if cov != nil {
			coverage = cov.At(p.SeqNr, p.Offset)
		}
		for _, e := range p.Entries {
			percentage := uint32(100)
			if coverage > 0 {
				percentage = e.Depth * 100 / coverage
			}
			preceding := ref.PrecedingBases(p.SeqNr, p.Offset, HomopolymerWindow)
			if !shouldEmit(len(e.Ref), len(e.Alt), e.Depth, e.AvgScore(), percentage, preceding, opts.FiltersEnabled) {
				continue
			}
			tsvw.WriteString(ref.SeqName(p.SeqNr))
			tsvw.WriteUint32(p.Offset + 1)
			tsvw.WriteString(".")
			tsvw.WriteString(e.Ref)
			tsvw.WriteString(e.Alt)
			tsvw.WriteString(".")
			tsvw.WriteString(".")
			tsvw.WriteString(fmt.Sprintf("DEPTH=%d;COV=%d;SCORE=%d", e.Depth, coverage, int(e.AvgScore())))
			if walkErr = tsvw.EndLine(); walkErr != nil {
				return
			}
		}
	})
	if walkErr != nil {
		return walkErr
	}
	return tsvw.Flush()
}
