// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package reads implements the FASTA `>>N` leading-offset comment contract
// and the unmapped-read re-emission the pass driver performs between
// rounds, grounded on original_source/host/src/getread.c's comment parsing
// and the original implementation's save-unmapped-reads-as-next-round's-
// input behavior.
package reads

import (
	"bufio"
	"context"
	"fmt"
	"strconv"

	"github.com/grailbio/base/file"
)

// Unmapped is one read that produced no kept result in a round, written out
// at the end of that round as FASTA input for the next one.
type Unmapped struct {
	Name    string
	Symbols []byte // ASCII 'A','C','G','T' bases, not packed.
}

// ParseOffsetComment extracts the leading-offset N from a FASTA/FASTQ
// comment line of the form ">>N", per getread.c's `if (comment[1] == '>')
// sscanf(&comment[2], "%d", &offset)`: only the digits right after the
// marker are read, and any text following them (such as the read name) is
// ignored. ok is false if comment does not carry the `>>` marker followed by
// a digit, in which case offset is 0 (no bases skipped).
func ParseOffsetComment(comment string) (offset int, ok bool) {
	if len(comment) < 2 || comment[0] != '>' || comment[1] != '>' {
		return 0, false
	}
	digits := comment[2:]
	end := 0
	for end < len(digits) && digits[end] >= '0' && digits[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(digits[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// FormatOffsetComment renders the `>>N` comment line for a read whose first
// n bases should be skipped on the next round, the inverse of
// ParseOffsetComment.
func FormatOffsetComment(name string, n int) string {
	if n <= 0 {
		return ">" + name
	}
	return fmt.Sprintf(">>%d%s", n, name)
}

// Writer is what the pass driver calls at the end of each round to persist
// that round's unmapped reads as the next round's FASTA input
// ("<prefix>_<round>_PE{1,2}.fasta").
type Writer interface {
	WriteUnmapped(ctx context.Context, round int, mate int, reads []Unmapped) error
}

// FileWriter is the default Writer: one FASTA file per (round, mate),
// written through github.com/grailbio/base/file so the destination may be
// local or remote, matching the rest of this repository's output paths.
type FileWriter struct {
	Prefix string
	// Offset is carried forward from the previous round: every base before
	// it has already been consumed by a partial seed match and should be
	// skipped on the next round's dispatch.
	Offset int
}

// WriteUnmapped writes reads to "<prefix>_<round>_PE<mate>.fasta".
func (w *FileWriter) WriteUnmapped(ctx context.Context, round int, mate int, reads []Unmapped) (err error) {
	path := fmt.Sprintf("%s_%d_PE%d.fasta", w.Prefix, round, mate)
	dst, err := file.Create(ctx, path)
	if err != nil {
		return fmt.Errorf("reads: create %s: %w", path, err)
	}
	defer file.CloseAndReport(ctx, dst, &err)

	bw := bufio.NewWriter(dst.Writer(ctx))
	for _, r := range reads {
		if _, err = fmt.Fprintln(bw, FormatOffsetComment(r.Name, w.Offset)); err != nil {
			return err
		}
		if _, err = bw.Write(r.Symbols); err != nil {
			return err
		}
		if err = bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}
