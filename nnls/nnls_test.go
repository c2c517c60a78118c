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

package nnls

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSolveInterior(t *testing.T) {
	// identity design: solution equals b where b >= 0
	a := [][]float32{{1, 0}, {0, 1}}
	x, err := Solve(a, []float32{2, 3})
	assert.NoError(t, err)
	assert.InDelta(t, 2, x[0], 1e-6)
	assert.InDelta(t, 3, x[1], 1e-6)
}

func TestSolveClamped(t *testing.T) {
	// unconstrained solution is (-1, 3); the constraint clamps x[0] to zero
	a := [][]float32{{1, 0}, {0, 1}}
	x, err := Solve(a, []float32{-1, 3})
	assert.NoError(t, err)
	assert.Equal(t, float32(0), x[0])
	assert.InDelta(t, 3, x[1], 1e-6)
}

func TestSolveOverdetermined(t *testing.T) {
	// least squares fit of y = 2*x through the origin with noiseless data
	a := [][]float32{{1}, {2}, {3}}
	x, err := Solve(a, []float32{2, 4, 6})
	assert.NoError(t, err)
	assert.InDelta(t, 2, x[0], 1e-6)
}

func TestSolveCorrelatedColumns(t *testing.T) {
	// b lies along the first column; the second column is penalized out
	a := [][]float32{{1, 1}, {1, 1}, {1, 0}}
	x, err := Solve(a, []float32{1, 1, 1})
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, x[0], float32(0))
	assert.GreaterOrEqual(t, x[1], float32(0))
	// residual of the NNLS solution must not exceed the best single-column fit
	residual := func(x []float32) float32 {
		var sum float32
		b := []float32{1, 1, 1}
		for i := range a {
			r := b[i] - a[i][0]*x[0] - a[i][1]*x[1]
			sum += r * r
		}
		return sum
	}
	assert.LessOrEqual(t, residual(x), residual([]float32{1, 0})+1e-5)
}

func TestSolveGramSharedGram(t *testing.T) {
	// one Gram matrix, two right-hand sides
	g := [][]float64{{2, 0}, {0, 2}}
	x := make([]float32, 2)
	assert.NoError(t, SolveGram(g, []float64{4, 2}, x))
	assert.InDelta(t, 2, x[0], 1e-6)
	assert.InDelta(t, 1, x[1], 1e-6)
	assert.NoError(t, SolveGram(g, []float64{-2, 6}, x))
	assert.Equal(t, float32(0), x[0])
	assert.InDelta(t, 3, x[1], 1e-6)
}

func TestSolveRankDeficient(t *testing.T) {
	// duplicated column: any split is optimal, solution must stay finite
	a := [][]float32{{1, 1}, {1, 1}}
	x, err := Solve(a, []float32{2, 2})
	assert.NoError(t, err)
	assert.InDelta(t, 2, x[0]+x[1], 1e-5)
}

func TestSolveEmptyDesign(t *testing.T) {
	_, err := Solve(nil, nil)
	assert.Error(t, err)
}
