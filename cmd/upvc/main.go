// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

/*
upvc wires the alignment/variant-calling core together: it reads a pair of
FASTA files, runs the three-round pass driver against a chosen backend, and
emits the resulting variant calls as a VCF body. Building the seed index and
parsing the full FASTQ/FASTA surface are out of scope for this core; this
binary carries just enough FASTA reading to drive the pipeline end to end.
*/
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/upmem/genomee/accel/dpuaccel"
	"github.com/upmem/genomee/accel/simaccel"
	"github.com/upmem/genomee/align"
	"github.com/upmem/genomee/backend"
	"github.com/upmem/genomee/config"
	"github.com/upmem/genomee/dispatch"
	"github.com/upmem/genomee/genomeeerr"
	"github.com/upmem/genomee/genomectx"
	"github.com/upmem/genomee/index"
	"github.com/upmem/genomee/pass"
	"github.com/upmem/genomee/process"
	"github.com/upmem/genomee/reads"
	"github.com/upmem/genomee/variant"
)

var (
	r1Path      = flag.String("r1", "", "Round-0 input FASTA for mate 1")
	r2Path      = flag.String("r2", "", "Round-0 input FASTA for mate 2")
	outPrefix   = flag.String("out", "upvc", "Output path prefix for the VCF, timing CSVs, and unmapped FASTA files")
	backendName = flag.String("backend", "sim", "Execution backend: 'sim' (host-thread simulation) or 'dpu' (accelerator client, run against the software FakeRank)")
	dpuProgram  = flag.String("dpu-program", "", "Accelerator program image path, required when -backend=dpu")
	numSlots    = flag.Int("slots", config.NumTaskletsPerDPU, "Number of accelerator slots/tasklets")
	dispatchCap = flag.Int("dispatch-capacity", 1<<16, "Max candidates a single slot's request vector may accumulate in one batch")
	filters     = flag.Bool("filters", true, "Apply the depth/score/homopolymer variant filters before emitting the VCF")
	regionsFlag = flag.String("regions", "", "Restrict emitted variants to target intervals, as seqNr:start-end pairs separated by commas (e.g. 0:500-1500,2:10-20)")
)

// parseRegions parses -regions into the per-seqNr sorted endpoint lists
// variant.EmitOptions.Regions expects (vartree.c's target-region restriction).
func parseRegions(spec string) (map[uint32][]uint32, error) {
	if spec == "" {
		return nil, nil
	}
	out := make(map[uint32][]uint32)
	for _, part := range strings.Split(spec, ",") {
		seqAndRange := strings.SplitN(part, ":", 2)
		if len(seqAndRange) != 2 {
			return nil, genomeeerr.Usage("-regions: bad entry %q, want seqNr:start-end", part)
		}
		seqNr, err := strconv.ParseUint(seqAndRange[0], 10, 32)
		if err != nil {
			return nil, genomeeerr.Usage("-regions: bad seqNr in %q: %v", part, err)
		}
		bounds := strings.SplitN(seqAndRange[1], "-", 2)
		if len(bounds) != 2 {
			return nil, genomeeerr.Usage("-regions: bad range in %q, want start-end", part)
		}
		start, err := strconv.ParseUint(bounds[0], 10, 32)
		if err != nil {
			return nil, genomeeerr.Usage("-regions: bad start in %q: %v", part, err)
		}
		end, err := strconv.ParseUint(bounds[1], 10, 32)
		if err != nil {
			return nil, genomeeerr.Usage("-regions: bad end in %q: %v", part, err)
		}
		out[uint32(seqNr)] = append(out[uint32(seqNr)], uint32(start), uint32(end))
	}
	return out, nil
}

// noopReference stands in for a real reference-genome loader (out of
// scope here): it has no preceding bases to offer the homopolymer filter,
// and names chromosomes positionally.
type noopReference struct{}

func (noopReference) SeqName(seqNr uint32) string                      { return fmt.Sprintf("chr%d", seqNr) }
func (noopReference) PrecedingBases(seqNr, offset uint32, n int) []byte { return nil }

var letterToSymbol = map[byte]align.Symbol{'A': 0, 'C': 1, 'T': 2, 'G': 3, 'a': 0, 'c': 1, 't': 2, 'g': 3}

// packRead drops offset leading bases (the `>>N` re-seed contract) and
// 2-bit packs the rest.
func packRead(seq []byte, offset int) []byte {
	if offset > len(seq) {
		offset = len(seq)
	}
	seq = seq[offset:]
	syms := make([]align.Symbol, len(seq))
	for i, b := range seq {
		syms[i] = letterToSymbol[b]
	}
	return align.Pack(syms)
}

// readFASTA reads a two-line-per-record FASTA file into pass.Read records,
// honoring reads.ParseOffsetComment on the header line, assigning
// sequential ids starting at nextID.
func readFASTA(ctx context.Context, path string, nextID uint32) ([]pass.Read, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("upvc: open %s: %w", path, err)
	}
	defer f.Close(ctx)

	var out []pass.Read
	sc := bufio.NewScanner(f.Reader(ctx))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var name string
	var roundOffset int
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, ">") {
			if offset, ok := reads.ParseOffsetComment(line); ok {
				roundOffset = offset
				name = strings.TrimPrefix(line[2+len(strconv.Itoa(offset)):], " ")
			} else {
				roundOffset = 0
				name = line[1:]
			}
			continue
		}
		out = append(out, pass.Read{
			ID:      nextID,
			Name:    name,
			Packed:  packRead([]byte(line), roundOffset),
			Symbols: []byte(line),
		})
		nextID++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("upvc: scan %s: %w", path, err)
	}
	return out, nil
}

func newBackend() (backend.Backend, error) {
	switch *backendName {
	case "sim":
		return simaccel.New(*numSlots), nil
	case "dpu":
		if *dpuProgram == "" {
			return nil, genomeeerr.Usage("-dpu-program is required when -backend=dpu")
		}
		return dpuaccel.New(dpuaccel.NewFakeRank(), *numSlots, *dpuProgram), nil
	default:
		return nil, genomeeerr.Usage("unknown -backend %q, want 'sim' or 'dpu'", *backendName)
	}
}

// runMate reads path's reads and drives them through up to config.NumRounds
// rounds of the pass driver. Each later round runs on the previous round's
// unmapped reads as held in memory, with their packed symbols unchanged; the
// wider >>N offset is only written into the unmapped FASTA files, which this
// function does not read back.
func runMate(ctx context.Context, driver *pass.Driver, path string, mate int, nextID *uint32) error {
	batch, err := readFASTA(ctx, path, *nextID)
	if err != nil {
		return err
	}
	*nextID += uint32(len(batch))

	for round := 0; round < config.NumRounds && len(batch) > 0; round++ {
		driver.UnmappedWriter = &reads.FileWriter{
			Prefix: *outPrefix + "_unmapped",
			Offset: config.SeedLength * (round + 1),
		}
		driver.Timing = &pass.FileTimingWriter{Prefix: *outPrefix}

		_, unmapped, err := driver.RunRound(ctx, round, mate, batch)
		if err != nil {
			return err
		}
		batch = unmapped
	}
	return nil
}

func main() {
	flag.Parse()
	cleanup := grail.Init()
	defer cleanup()
	ctx := vcontext.Background()

	if *r1Path == "" || *r2Path == "" {
		process.Fatal(genomeeerr.Usage("-r1 and -r2 are required"))
	}

	b, err := newBackend()
	if err != nil {
		process.Fatal(err)
	}

	idx := index.NewSimIndex(*numSlots)
	gctx := genomectx.New()
	driver := &pass.Driver{
		Backend:    b,
		Dispatcher: dispatch.New(idx, *dispatchCap),
		Ctx:        gctx,
		NumSlots:   *numSlots,
	}

	if err := driver.Init(ctx); err != nil {
		process.Fatal(fmt.Errorf("upvc: init backend: %w", err))
	}
	defer func() {
		if err := driver.Close(ctx); err != nil {
			log.Error.Printf("upvc: free backend: %v", err)
		}
	}()

	var nextID uint32
	if err := runMate(ctx, driver, *r1Path, 1, &nextID); err != nil {
		process.Fatal(fmt.Errorf("upvc: mate 1: %w", err))
	}
	if err := runMate(ctx, driver, *r2Path, 2, &nextID); err != nil {
		process.Fatal(fmt.Errorf("upvc: mate 2: %w", err))
	}

	regions, err := parseRegions(*regionsFlag)
	if err != nil {
		process.Fatal(err)
	}

	vcfPath := *outPrefix + ".vcf"
	opts := variant.EmitOptions{FiltersEnabled: *filters, Regions: regions}
	if err := variant.Emit(ctx, gctx.Store, noopReference{}, gctx, vcfPath, opts); err != nil {
		process.Fatal(fmt.Errorf("upvc: emit %s: %w", vcfPath, err))
	}
	log.Printf("wrote %s", vcfPath)
}
