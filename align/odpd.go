// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package align

import "github.com/upmem/genomee/config"

// odpdRow holds one row of each of the three Gotoh matrices (match, gap-in-s2,
// gap-in-s1). Only two rows of each matrix are ever live at once; ODPD
// allocates a pair of these, sized M+1, on each call and alternates between
// them row by row.
type odpdRow struct {
	D, P, Q []int
}

func newOdpdRow(m int) odpdRow {
	return odpdRow{
		D: make([]int, m+1),
		P: make([]int, m+1),
		Q: make([]int, m+1),
	}
}

// ODPD implements the banded affine-gap dynamic-programming kernel.
//
// s1 and s2 are packed 2-bit sequences of M symbols each, unpacked on the fly
// via NtAt. It returns the minimum edit cost over all alignments within a
// band of half-width Diagonal() around the main diagonal of the (M+1)x(M+1)
// matrix, or an early-exit value > maxScore if the band's running minimum
// ever exceeds maxScore.
func ODPD(s1, s2 []byte, maxScore, M int) int {
	diagonal := config.Diagonal()
	const inf = config.PQDInitVal

	prev := newOdpdRow(M)
	cur := newOdpdRow(M)

	// Row 0 initialization: D[0][j] = j*SUB for j <= diagonal, P=Q=inf.
	for j := 0; j <= M; j++ {
		prev.D[j] = inf
		prev.P[j] = inf
		prev.Q[j] = inf
	}
	for j := 0; j <= M && j <= diagonal; j++ {
		prev.D[j] = j * config.CostSub
	}

	minScore := rowMin(prev.D, 0, M, diagonal)
	if minScore > maxScore {
		return minScore
	}

	for i := 1; i <= M; i++ {
		loJ := i - diagonal + 1
		if loJ < 0 {
			loJ = 0
		}
		hiJ := i + diagonal - 1
		if hiJ > M {
			hiJ = M
		}

		for j := 0; j <= M; j++ {
			cur.D[j] = inf
			cur.P[j] = inf
			cur.Q[j] = inf
		}
		// Column 0 initialization: D[i][0] = i*SUB.
		if loJ == 0 {
			cur.D[0] = i * config.CostSub
		}

		s1Sym := NtAt(s1, i-1)
		for j := loJ; j <= hiJ; j++ {
			if j == 0 {
				continue
			}
			pOpen := prev.D[j] + config.CostGapOpen
			pExtend := prev.P[j] + config.CostGapExtend
			p := pOpen
			if pExtend < p {
				p = pExtend
			}
			cur.P[j] = p

			qOpen := cur.D[j-1] + config.CostGapOpen
			qExtend := cur.Q[j-1] + config.CostGapExtend
			q := qOpen
			if qExtend < q {
				q = qExtend
			}
			cur.Q[j] = q

			sub := 0
			if s1Sym != NtAt(s2, j-1) {
				sub = config.CostSub
			}
			d := prev.D[j-1] + sub
			if cur.P[j] < d {
				d = cur.P[j]
			}
			if cur.Q[j] < d {
				d = cur.Q[j]
			}
			cur.D[j] = d
		}

		minScore = rowMin(cur.D, loJ, hiJ, diagonal)
		if minScore > maxScore {
			return minScore
		}

		prev, cur = cur, prev
	}

	return rowMin(prev.D, maxInt(0, M-diagonal+1), M, diagonal)
}

func rowMin(d []int, lo, hi, diagonal int) int {
	best := config.PQDInitVal
	if lo < 0 {
		lo = 0
	}
	for j := lo; j <= hi; j++ {
		if d[j] < best {
			best = d[j]
		}
	}
	return best
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
