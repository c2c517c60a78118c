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

package cfit

import (
	"context"
	"testing"

	"github.com/cfit-io/cfit/base"
	"github.com/stretchr/testify/assert"
)

func TestSolveBlockNonNegativity(t *testing.T) {
	ctx := context.Background()
	data, _ := newSynthetic(t, 1, []int{20, 15}, 12, 3, 0.1)
	rng := base.NewRandomGenerator(1)
	params := InitializeRandom(rng, data, 3)
	for _, block := range []Block{BlockH, BlockW, BlockLambda, BlockB} {
		var err error
		params, err = SolveBlock(ctx, block, data, params, &SolveOptions{Jobs: 2})
		assert.NoError(t, err)
	}
	assertNonNegative(t, params)
}

func TestSolveBlockImmutability(t *testing.T) {
	ctx := context.Background()
	data, truth := newSynthetic(t, 2, []int{10}, 8, 2, 0.2)
	before := truth.Clone()
	_, err := SolveBlock(ctx, BlockW, data, truth, nil)
	assert.NoError(t, err)
	assert.Equal(t, before, truth)
}

func TestSolveBlockUnknown(t *testing.T) {
	data, truth := newSynthetic(t, 3, []int{5}, 4, 2, 0)
	_, err := SolveBlock(context.Background(), Block(42), data, truth, nil)
	assert.Error(t, err)
}

func TestSolveLambdaRescaling(t *testing.T) {
	ctx := context.Background()
	data, _ := newSynthetic(t, 4, []int{30, 20}, 10, 2, 0.3)
	rng := base.NewRandomGenerator(4)
	params := InitializeRandom(rng, data, 2)
	next, err := SolveBlock(ctx, BlockLambda, data, params, nil)
	assert.NoError(t, err)
	// sample-count-weighted mean scaling per gene equals one
	for l := 0; l < 10; l++ {
		weighted := 30*float64(next.LambdaList[0][l]) + 20*float64(next.LambdaList[1][l])
		assert.InDelta(t, 1, weighted/50, 1e-4)
	}
}

func TestSolveLambdaSingleDatasetNoRescale(t *testing.T) {
	ctx := context.Background()
	data, truth := newSynthetic(t, 5, []int{25}, 8, 2, 0)
	next, err := SolveBlock(ctx, BlockLambda, data, truth, nil)
	assert.NoError(t, err)
	// with the other blocks at truth and no noise, lambda is recovered
	for l := 0; l < 8; l++ {
		assert.InDelta(t, float64(truth.LambdaList[0][l]), float64(next.LambdaList[0][l]), 1e-3)
	}
}

func TestSolveBRecoversShift(t *testing.T) {
	ctx := context.Background()
	data, truth := newSynthetic(t, 6, []int{40}, 6, 2, 0)
	// shift the data by a known offset per gene
	offset := []float32{1, 0.5, 2, 0, 3, 0.25}
	for _, row := range data[0].Values {
		for l := range row {
			row[l] += offset[l]
		}
	}
	next, err := SolveBlock(ctx, BlockB, data, truth, nil)
	assert.NoError(t, err)
	for l := range offset {
		assert.InDelta(t, float64(offset[l]), float64(next.BList[0][l]), 1e-3)
	}
}

func TestSolveWRecoversFactors(t *testing.T) {
	ctx := context.Background()
	data, truth := newSynthetic(t, 7, []int{50, 40}, 10, 2, 0)
	next, err := SolveBlock(ctx, BlockW, data, truth, &SolveOptions{Jobs: 2})
	assert.NoError(t, err)
	for l := range truth.W {
		for k := range truth.W[l] {
			assert.InDelta(t, float64(truth.W[l][k]), float64(next.W[l][k]), 1e-3)
		}
	}
}

func TestSolveHRecoversLoadings(t *testing.T) {
	ctx := context.Background()
	data, truth := newSynthetic(t, 8, []int{30}, 20, 2, 0)
	params := &Params{W: truth.W, LambdaList: truth.LambdaList, BList: truth.BList}
	next, err := SolveBlock(ctx, BlockH, data, params, nil)
	assert.NoError(t, err)
	for i := range truth.HList[0] {
		for k := range truth.HList[0][i] {
			assert.InDelta(t, float64(truth.HList[0][i][k]), float64(next.HList[0][i][k]), 1e-3)
		}
	}
}

func TestSolveHSubsetKeepsOtherRows(t *testing.T) {
	ctx := context.Background()
	data, truth := newSynthetic(t, 9, []int{10}, 8, 2, 0.5)
	next, err := SolveBlock(ctx, BlockH, data, truth, &SolveOptions{RowsList: [][]int{{0, 2, 4}}})
	assert.NoError(t, err)
	for i := range truth.HList[0] {
		if i == 0 || i == 2 || i == 4 {
			continue
		}
		assert.Equal(t, truth.HList[0][i], next.HList[0][i])
	}
}

func TestPenalizedSolveAnchorsToPrevious(t *testing.T) {
	ctx := context.Background()
	data, _ := newSynthetic(t, 10, []int{20}, 8, 2, 0.2)
	rng := base.NewRandomGenerator(10)
	params := InitializeRandom(rng, data, 2)
	free, err := SolveBlock(ctx, BlockW, data, params, nil)
	assert.NoError(t, err)
	heavy, err := SolveBlock(ctx, BlockW, data, params, &SolveOptions{Mu: 1e6, Prev: params})
	assert.NoError(t, err)
	// a huge penalty pins the update near the anchor, the plain solve moves
	var distFree, distHeavy float64
	for l := range params.W {
		for k := range params.W[l] {
			d := float64(free.W[l][k]) - float64(params.W[l][k])
			distFree += d * d
			d = float64(heavy.W[l][k]) - float64(params.W[l][k])
			distHeavy += d * d
		}
	}
	assert.Less(t, distHeavy, distFree)
	assert.InDelta(t, 0, distHeavy, 1e-3)
}
