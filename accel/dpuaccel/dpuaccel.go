// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package dpuaccel implements backend.Backend against a real accelerator
// rank, behind a small DPURank interface so this package compiles and
// unit-tests without hardware present, mirroring the original
// implementation's dpus_mgmt.c code path. The core writes to a fixed set of
// scratch addresses: REQUEST_INFO_ADDR, REQUEST_ADDR, RESULT_ADDR,
// TASKLET_STATS_ADDR, COMPUTE_TIME_ADDR.
package dpuaccel

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/grailbio/base/errors"

	"github.com/upmem/genomee/config"
	"github.com/upmem/genomee/genomeeerr"
	"github.com/upmem/genomee/request"
)

// Scratch addresses. These are opaque offsets into the rank's MRAM/WRAM
// address space; DPURank implementations interpret them, this package only
// ever treats them as map keys.
const (
	RequestInfoAddr = "REQUEST_INFO_ADDR"
	RequestAddr     = "REQUEST_ADDR"
	ResultAddr      = "RESULT_ADDR"
	TaskletStatsAddr = "TASKLET_STATS_ADDR"
	ComputeTimeAddr  = "COMPUTE_TIME_ADDR"

	// PartitionAddr is where the index collaborator's per-slot packed
	// neighbour+coords blob is loaded, ahead of the request records that
	// reference it by offset/count.
	PartitionAddr = "PARTITION_ADDR"
)

// Status is the accelerator's reported run state, polled after BootAsync.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusDone
	StatusError
)

// DPURank is the hardware collaborator contract: allocate / load-program /
// copy-to / copy-from / boot-async / poll-status / free. A fake
// implementation backs the unit tests; a real implementation would wrap
// the vendor's rank-management C library via cgo.
type DPURank interface {
	Allocate(nbSlots int) error
	LoadProgram(path string) error
	CopyTo(addr string, slot int, data []byte) error
	CopyFrom(addr string, slot int) ([]byte, error)
	BootAsync() error
	PollStatus() (Status, error)
	Free() error
}

// Backend adapts a DPURank to backend.Backend.
type Backend struct {
	rank        DPURank
	programPath string
	nbSlots     int
}

// New returns a Backend driving rank, with nbSlots tasklets and the
// accelerator program image at programPath.
func New(rank DPURank, nbSlots int, programPath string) *Backend {
	return &Backend{rank: rank, nbSlots: nbSlots, programPath: programPath}
}

func (b *Backend) Init(ctx context.Context) error {
	if err := b.rank.Allocate(b.nbSlots); err != nil {
		return genomeeerr.Accelerator(err, "dpuaccel: rank allocation failed")
	}
	if err := b.rank.LoadProgram(b.programPath); err != nil {
		return genomeeerr.Accelerator(err, "dpuaccel: program load failed")
	}
	return nil
}

func (b *Backend) Free(ctx context.Context) error {
	if err := b.rank.Free(); err != nil {
		return errors.E(err, "dpuaccel: rank free failed")
	}
	return nil
}

// LoadScratch encodes header and reqs into the REQUEST_INFO_ADDR/
// REQUEST_ADDR wire layout and copies it to slot.
func (b *Backend) LoadScratch(ctx context.Context, slot int, header request.RequestHeader, reqs []request.Request) error {
	info := make([]byte, 8)
	binary.LittleEndian.PutUint32(info[0:4], header.NbReads)
	binary.LittleEndian.PutUint32(info[4:8], header.Magic)
	if err := b.rank.CopyTo(RequestInfoAddr, slot, info); err != nil {
		return genomeeerr.Accelerator(err, "dpuaccel: copy-to REQUEST_INFO_ADDR failed for slot %d", slot)
	}

	buf := make([]byte, 0, len(reqs)*(12+config.NBRBytes()))
	for _, r := range reqs {
		rec := make([]byte, 12)
		binary.LittleEndian.PutUint32(rec[0:4], r.ReadID)
		binary.LittleEndian.PutUint32(rec[4:8], r.Offset)
		binary.LittleEndian.PutUint32(rec[8:12], r.Count)
		buf = append(buf, rec...)
		buf = append(buf, r.ReadSymbol...)
	}
	if err := b.rank.CopyTo(RequestAddr, slot, buf); err != nil {
		return genomeeerr.Accelerator(err, "dpuaccel: copy-to REQUEST_ADDR failed for slot %d", slot)
	}
	return nil
}

// LoadPartition copies slot's candidate-neighbour blob (produced by
// index.Collaborator.PartitionBlob) to PARTITION_ADDR, ahead of the request
// records LoadScratch writes. Each candidate is encoded as
// (seq_nr:u32, offset:u32, len:u32, packed[len]).
func (b *Backend) LoadPartition(ctx context.Context, slot int, candidates []request.Candidate) error {
	buf := make([]byte, 0)
	for _, c := range candidates {
		hdr := make([]byte, 12)
		binary.LittleEndian.PutUint32(hdr[0:4], c.Coord.SeqNr)
		binary.LittleEndian.PutUint32(hdr[4:8], c.Coord.Offset)
		binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(c.Packed)))
		buf = append(buf, hdr...)
		buf = append(buf, c.Packed...)
	}
	if err := b.rank.CopyTo(PartitionAddr, slot, buf); err != nil {
		return genomeeerr.Accelerator(err, "dpuaccel: copy-to PARTITION_ADDR failed for slot %d", slot)
	}
	return nil
}

// DecodePartition is the inverse of LoadPartition's encoding, used by
// DPURank implementations (including FakeRank) to recover the candidate
// blob on the simulated accelerator side.
func DecodePartition(buf []byte) []request.Candidate {
	var out []request.Candidate
	for len(buf) >= 12 {
		seqNr := binary.LittleEndian.Uint32(buf[0:4])
		offset := binary.LittleEndian.Uint32(buf[4:8])
		n := binary.LittleEndian.Uint32(buf[8:12])
		buf = buf[12:]
		if uint32(len(buf)) < n {
			break
		}
		packed := append([]byte{}, buf[:n]...)
		buf = buf[n:]
		out = append(out, request.Candidate{Packed: packed, Coord: request.Coord{SeqNr: seqNr, Offset: offset}})
	}
	return out
}

// DecodeRequests is the inverse of LoadScratch's REQUEST_INFO_ADDR/
// REQUEST_ADDR encoding, used by DPURank implementations to recover the
// request vector on the simulated accelerator side.
func DecodeRequests(info, reqData []byte, readSymbolLen int) (request.RequestHeader, []request.Request) {
	header := request.RequestHeader{
		NbReads: binary.LittleEndian.Uint32(info[0:4]),
		Magic:   binary.LittleEndian.Uint32(info[4:8]),
	}
	var reqs []request.Request
	recSize := 12 + readSymbolLen
	for i := 0; i+recSize <= len(reqData); i += recSize {
		rec := reqData[i : i+recSize]
		reqs = append(reqs, request.Request{
			ReadID:     binary.LittleEndian.Uint32(rec[0:4]),
			Offset:     binary.LittleEndian.Uint32(rec[4:8]),
			Count:      binary.LittleEndian.Uint32(rec[8:12]),
			ReadSymbol: append([]byte{}, rec[12:]...),
		})
	}
	return header, reqs
}

// RunPass boots the rank and blocks until every tasklet reports done or
// error.
func (b *Backend) RunPass(ctx context.Context) error {
	if err := b.rank.BootAsync(); err != nil {
		return genomeeerr.Accelerator(err, "dpuaccel: boot failed")
	}
	for {
		status, err := b.rank.PollStatus()
		if err != nil {
			return genomeeerr.Accelerator(err, "dpuaccel: status poll failed")
		}
		switch status {
		case StatusDone:
			return nil
		case StatusError:
			log, _ := b.rank.CopyFrom(TaskletStatsAddr, 0)
			return genomeeerr.Accelerator(fmt.Errorf("tasklet stats: %x", log), "dpuaccel: accelerator reported an error status")
		case StatusRunning, StatusIdle:
			continue
		}
	}
}

// WaitPass reads slot's RESULT_ADDR region and decodes it into a
// sentinel-terminated result stream.
func (b *Backend) WaitPass(ctx context.Context, slot int) ([]request.Result, error) {
	raw, err := b.rank.CopyFrom(ResultAddr, slot)
	if err != nil {
		return nil, genomeeerr.Accelerator(err, "dpuaccel: copy-from RESULT_ADDR failed for slot %d", slot)
	}
	if len(raw)%config.ResultRecordSize != 0 {
		return nil, genomeeerr.Accelerator(nil, "dpuaccel: result stream for slot %d is not a multiple of %d bytes", slot, config.ResultRecordSize)
	}

	n := len(raw) / config.ResultRecordSize
	out := make([]request.Result, 0, n)
	for i := 0; i < n; i++ {
		rec := raw[i*config.ResultRecordSize:]
		r := request.Result{
			ReadID: binary.LittleEndian.Uint32(rec[0:4]),
			Score:  binary.LittleEndian.Uint32(rec[4:8]),
			SeedNr: binary.LittleEndian.Uint32(rec[8:12]),
			SeqNr:  binary.LittleEndian.Uint32(rec[12:16]),
		}
		out = append(out, r)
		if r.IsSentinel() {
			break
		}
	}
	return out, nil
}
