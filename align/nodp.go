// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package align

import "github.com/upmem/genomee/config"

// mismatchTable[x] is the weighted count of differing 2-bit lanes in a byte
// whose s1^s2 XOR is x: popcount of the four 2-bit lanes of x that are
// nonzero, times config.CostSub.
var mismatchTable [256]int

func init() {
	for x := 0; x < 256; x++ {
		lanes := 0
		for k := 0; k < 4; k++ {
			if (x>>uint(2*k))&3 != 0 {
				lanes++
			}
		}
		mismatchTable[x] = lanes * config.CostSub
	}
}

// readLE32 reads a little-endian uint32 out of a 4-byte window.
func readLE32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// looksLikeFrameShift is the INDEL probe: it tests
// whether the next 32-bit window of s1 equals the next window of s2 shifted
// by k bits (in either direction), for k in {2,4,6,8}, masked to the
// remaining (32-k) bits. A match signals a short frame-shift repeat between
// the two windows.
func looksLikeFrameShift(w1, w2 []byte) bool {
	a := readLE32(w1)
	b := readLE32(w2)
	for _, k := range [...]uint{2, 4, 6, 8} {
		mask := uint32(1)<<(32-k) - 1
		if (a>>k)&mask == b&mask {
			return true
		}
		if (b>>k)&mask == a&mask {
			return true
		}
	}
	return false
}

// NoDP implements the fast substitution-only scan.
//
// It compares nbrLen-delta bytes of the two packed sequences s1 and s2,
// byte-parallel, accumulating a weighted Hamming score. It returns:
//   - a non-negative substitution-only score, if no INDEL signal fires: the
//     full weighted Hamming score if the running score never exceeds
//     maxScore, otherwise the partial score at the byte where it first did
//     (a lower bound >= maxScore+1 on the full score);
//   - -1, if the INDEL probe fires: the caller must fall back to ODPD.
func NoDP(s1, s2 []byte, nbrLen, delta, maxScore int) int {
	n := nbrLen - delta
	score := 0
	for i := 0; i < n; i++ {
		x := int(s1[i]^s2[i]) & 0xff
		t := mismatchTable[x]
		if t > config.CostSub && n-i-1 >= 4 && i+5 <= len(s1) && i+5 <= len(s2) {
			if looksLikeFrameShift(s1[i+1:i+5], s2[i+1:i+5]) {
				return -1
			}
		}
		score += t
		if score > maxScore {
			return score
		}
	}
	return score
}
