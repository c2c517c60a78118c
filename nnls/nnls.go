// Copyright 2024 cfit Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package nnls solves non-negative least squares problems with the
// Lawson-Hanson active set method, phrased on the normal equations so many
// right-hand sides can share one Gram matrix. The subproblems solved here are
// tiny (the factorization rank), which keeps the active set loop cheap.
package nnls

import (
	"math"

	"github.com/juju/errors"
)

const (
	tolerance = 1e-10
	maxOuter  = 3
)

// SolveGram solves argmin_{x>=0} 0.5*x'Gx - f'x where G = A'A and f = A'b,
// writing the solution into x. G must be symmetric positive semi-definite.
func SolveGram(g [][]float64, f []float64, x []float32) error {
	n := len(f)
	passive := make([]bool, n)
	sol := make([]float64, n)
	trial := make([]float64, n)
	// scale the zero-gradient tolerance to the problem
	var gMax float64
	for i := 0; i < n; i++ {
		if v := math.Abs(g[i][i]); v > gMax {
			gMax = v
		}
	}
	tol := tolerance * (gMax + 1)

	for outer := 0; outer < maxOuter*n+1; outer++ {
		// gradient of the active constraints: w = f - G*sol
		best, bestIdx := tol, -1
		for i := 0; i < n; i++ {
			if passive[i] {
				continue
			}
			w := f[i]
			for j := 0; j < n; j++ {
				w -= g[i][j] * sol[j]
			}
			if w > best {
				best, bestIdx = w, i
			}
		}
		if bestIdx < 0 {
			break
		}
		passive[bestIdx] = true

		// inner loop: solve on the passive set, back off over negatives
		for {
			if err := solvePassive(g, f, passive, trial); err != nil {
				return errors.Trace(err)
			}
			alpha, blocked := 1.0, false
			for i := 0; i < n; i++ {
				if passive[i] && trial[i] <= 0 {
					blocked = true
					if step := sol[i] / (sol[i] - trial[i]); step < alpha {
						alpha = step
					}
				}
			}
			if !blocked {
				copy(sol, trial)
				break
			}
			for i := 0; i < n; i++ {
				if passive[i] {
					sol[i] += alpha * (trial[i] - sol[i])
					if sol[i] <= tol {
						sol[i] = 0
						passive[i] = false
					}
				}
			}
		}
	}
	for i := 0; i < n; i++ {
		if math.IsNaN(sol[i]) || math.IsInf(sol[i], 0) {
			return errors.Errorf("nnls: non-finite solution at %d", i)
		}
		x[i] = float32(sol[i])
	}
	return nil
}

// Solve returns argmin_{x>=0} ||Ax-b|| for an explicit dense design.
func Solve(a [][]float32, b []float32) ([]float32, error) {
	if len(a) == 0 {
		return nil, errors.New("nnls: empty design")
	}
	n := len(a[0])
	g := make([][]float64, n)
	for i := range g {
		g[i] = make([]float64, n)
	}
	f := make([]float64, n)
	for row := range a {
		for i := 0; i < n; i++ {
			ai := float64(a[row][i])
			f[i] += ai * float64(b[row])
			for j := i; j < n; j++ {
				g[i][j] += ai * float64(a[row][j])
			}
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < i; j++ {
			g[i][j] = g[j][i]
		}
	}
	x := make([]float32, n)
	if err := SolveGram(g, f, x); err != nil {
		return nil, errors.Trace(err)
	}
	return x, nil
}

// solvePassive solves the unconstrained normal equations restricted to the
// passive variables by Gaussian elimination with partial pivoting. Active
// variables are fixed to zero.
func solvePassive(g [][]float64, f []float64, passive []bool, out []float64) error {
	idx := make([]int, 0, len(f))
	for i, p := range passive {
		if p {
			idx = append(idx, i)
		}
	}
	k := len(idx)
	a := make([][]float64, k)
	for i := 0; i < k; i++ {
		a[i] = make([]float64, k+1)
		for j := 0; j < k; j++ {
			a[i][j] = g[idx[i]][idx[j]]
		}
		a[i][k] = f[idx[i]]
	}
	for col := 0; col < k; col++ {
		pivot := col
		for row := col + 1; row < k; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		a[col], a[pivot] = a[pivot], a[col]
		if math.Abs(a[col][col]) < 1e-14 {
			// rank-deficient passive set, pin the variable at zero
			for j := col; j <= k; j++ {
				a[col][j] = 0
			}
			a[col][col] = 1
		}
		for row := col + 1; row < k; row++ {
			factor := a[row][col] / a[col][col]
			for j := col; j <= k; j++ {
				a[row][j] -= factor * a[col][j]
			}
		}
	}
	for i := range out {
		out[i] = 0
	}
	for col := k - 1; col >= 0; col-- {
		v := a[col][k]
		for j := col + 1; j < k; j++ {
			v -= a[col][j] * out[idx[j]]
		}
		out[idx[col]] = v / a[col][col]
	}
	return nil
}
