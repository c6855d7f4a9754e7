// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package genomeeerr_test

import (
	"errors"
	"testing"

	"github.com/upmem/genomee/genomeeerr"
)

func TestExitCodes(t *testing.T) {
	cases := []struct {
		err  *genomeeerr.Error
		want genomeeerr.Code
	}{
		{genomeeerr.Usage("bad flag"), genomeeerr.CodeUsage},
		{genomeeerr.Capacity("pool full"), genomeeerr.CodeCapacity},
		{genomeeerr.Accelerator(errors.New("dpu fault"), "launch failed"), genomeeerr.CodeAccelerator},
	}
	for _, c := range cases {
		if got := c.err.ExitCode(); got != c.want {
			t.Fatalf("ExitCode() = %d, want %d", got, c.want)
		}
	}
}

func TestAcceleratorUnwrapsUnderlyingError(t *testing.T) {
	underlying := errors.New("scratch memory fault")
	err := genomeeerr.Accelerator(underlying, "run_pass failed")
	if !errors.Is(err, underlying) {
		t.Fatalf("errors.Is(err, underlying) = false, want true")
	}
}
