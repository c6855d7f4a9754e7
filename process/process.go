// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package process maps the genomeeerr fatal-error taxonomy onto process
// exit codes, the same role log.Fatalf plays in mark_duplicates.go's call
// sites, but preserving the distinct usage/capacity/accelerator codes
// instead of collapsing every fatal error to exit 1.
package process

import (
	"errors"
	"os"

	"github.com/grailbio/base/log"

	"github.com/upmem/genomee/genomeeerr"
)

// Fatal logs err and terminates the process. An error that is, or wraps, a
// *genomeeerr.Error exits with that Kind's code; any other error exits 1,
// matching log.Fatalf.
func Fatal(err error) {
	if err == nil {
		return
	}
	var fe *genomeeerr.Error
	if errors.As(err, &fe) {
		log.Error.Printf("%v", err)
		os.Exit(int(fe.ExitCode()))
	}
	log.Fatalf("%v", err)
}
