// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package backend defines the capability set the pass driver needs from an
// acceleration target: init, free, load_scratch, run_pass, wait_pass. Two
// concrete implementations exist, accel/simaccel and accel/dpuaccel,
// mirroring the two code paths (simu_backend.c, dpus_mgmt.c) the original
// implementation carried.
package backend

import (
	"context"

	"github.com/upmem/genomee/request"
)

// Backend is one group of accelerator slots (one simulated or real DPU rank)
// that the pass driver loads requests onto, launches, and drains results
// from, one round at a time.
type Backend interface {
	// Init allocates the backend's scratch resources. Called once before the
	// first round.
	Init(ctx context.Context) error

	// Free releases the backend's scratch resources. Called once after the
	// last round.
	Free(ctx context.Context) error

	// LoadScratch writes one slot's request vector into the backend's
	// request scratch area, ahead of RunPass.
	LoadScratch(ctx context.Context, slot int, header request.RequestHeader, reqs []request.Request) error

	// RunPass launches the backend over every slot that has had
	// LoadScratch called on it since the last RunPass.
	RunPass(ctx context.Context) error

	// WaitPass blocks until slot's run has completed and returns its
	// sentinel-terminated result stream.
	WaitPass(ctx context.Context, slot int) ([]request.Result, error)
}

// Kind names the two Backend implementations.
type Kind int

const (
	// KindSimulated runs every slot on a host goroutine (accel/simaccel).
	KindSimulated Kind = iota
	// KindAccelerator drives a real accelerator rank (accel/dpuaccel).
	KindAccelerator
)

func (k Kind) String() string {
	switch k {
	case KindSimulated:
		return "simulated"
	case KindAccelerator:
		return "accelerator"
	default:
		return "unknown"
	}
}
