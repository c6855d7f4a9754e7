// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package request defines the wire- and memory-resident data model shared by
// the dispatcher, the DOUT buffer, the result pool, and the accumulator:
// reads, candidate neighbours, per-slot requests, and the fixed-size result
// record.
package request

import "github.com/upmem/genomee/config"

// Coord identifies a position within the reference: a sequence (chromosome)
// number and a 0-based offset within it.
type Coord struct {
	SeqNr  uint32
	Offset uint32
}

// Read is an immutable input record: a numeric id and a packed symbol vector
// of length config.ReadLength. Each mate's reads are dispatched as they
// appear in the input; no reverse-complement Reads are added before
// dispatch.
type Read struct {
	ID     uint32
	Packed []byte
}

// Candidate is a reference neighbourhood considered for one seed hit: a
// packed symbol vector of NBR_BYTES-delta bytes plus its genome coordinate.
type Candidate struct {
	Packed []byte
	Coord  Coord
}

// Request groups every candidate neighbour that shares the seed which
// selected read ReadID. Offset is the request's position within the owning
// slot's input area; Count is len(Candidates), kept as a separate field
// because the accelerator wire format carries it ahead of the neighbour
// bytes rather than inferring it from a slice header.
type Request struct {
	ReadID     uint32
	ReadSymbol []byte
	Offset     uint32
	Count      uint32
	Candidates []Candidate
}

// Result is the fixed 16-byte, 8-byte-aligned record produced by a worker
// for one (read, candidate) comparison. Field order matches the
// accelerator's result-stream wire layout: num, score, seed-nr, seq-nr,
// each a uint32.
type Result struct {
	ReadID uint32
	Score  uint32
	SeedNr uint32
	SeqNr  uint32
}

// Sentinel is the all-ones record marking the end of a result stream.
var Sentinel = Result{
	ReadID: config.SentinelID,
	Score:  config.SentinelScore,
	SeedNr: 0xffffffff,
	SeqNr:  0xffffffff,
}

// IsSentinel reports whether r is the stream terminator: its id and score
// fields are both all-ones. SeedNr/SeqNr are not part of the sentinel test
// -- only num and score are asserted by the accelerator side.
func (r Result) IsSentinel() bool {
	return r.ReadID == config.SentinelID && r.Score == config.SentinelScore
}

// RequestHeader is the fixed header that precedes a slot's request records
// on the accelerator: a read count and a magic constant the accelerator
// firmware asserts before parsing the records that follow.
type RequestHeader struct {
	NbReads uint32
	Magic   uint32
}

// NewRequestHeader builds the header for a slot carrying nbReads requests.
func NewRequestHeader(nbReads int) RequestHeader {
	return RequestHeader{NbReads: uint32(nbReads), Magic: config.RequestMagic}
}
