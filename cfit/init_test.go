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

func TestKMeansSeparableClusters(t *testing.T) {
	rng := base.NewRandomGenerator(30)
	points := make([][]float32, 0, 60)
	for c := 0; c < 3; c++ {
		center := float32(c) * 20
		for i := 0; i < 20; i++ {
			points = append(points, []float32{
				center + rng.Float32(),
				center + rng.Float32(),
			})
		}
	}
	assignments := kmeans(rng, points, 3)
	assert.Len(t, assignments, 60)
	// points in the same blob land in the same cluster, blobs in different ones
	for c := 0; c < 3; c++ {
		first := assignments[c*20]
		for i := 1; i < 20; i++ {
			assert.Equal(t, first, assignments[c*20+i])
		}
	}
	assert.NotEqual(t, assignments[0], assignments[20])
	assert.NotEqual(t, assignments[20], assignments[40])
	assert.NotEqual(t, assignments[0], assignments[40])
}

func TestKMeansSingleCluster(t *testing.T) {
	rng := base.NewRandomGenerator(31)
	points := rng.UniformMatrix(10, 4, 0, 1)
	assignments := kmeans(rng, points, 1)
	for _, a := range assignments {
		assert.Zero(t, a)
	}
}

func TestInitializeShapes(t *testing.T) {
	ctx := context.Background()
	data, _ := newSynthetic(t, 32, []int{30, 20}, 15, 3, 0.2)
	rng := base.NewRandomGenerator(32)
	params, err := Initialize(ctx, rng, data, 3, nil, 2)
	assert.NoError(t, err)
	assert.Equal(t, 3, params.Rank())
	assert.Len(t, params.W, 15)
	assert.Len(t, params.HList[0], 30)
	assert.Len(t, params.HList[1], 20)
	assertNonNegative(t, params)
	// scalings start at one and shifts at zero
	for j := range params.LambdaList {
		for l := range params.LambdaList[j] {
			assert.Equal(t, float32(1), params.LambdaList[j][l])
			assert.Equal(t, float32(0), params.BList[j][l])
		}
	}
}

func TestInitializeMembershipLoadings(t *testing.T) {
	ctx := context.Background()
	data, _ := newSynthetic(t, 33, []int{25}, 10, 2, 0.2)
	rng := base.NewRandomGenerator(33)
	params, err := Initialize(ctx, rng, data, 2, nil, 1)
	assert.NoError(t, err)
	// each row starts assigned to exactly one factor
	for _, row := range params.HList[0] {
		ones := 0
		for _, v := range row {
			if v == 1 {
				ones++
			} else {
				assert.Zero(t, v)
			}
		}
		assert.Equal(t, 1, ones)
	}
}

func TestInitializeReusesFactors(t *testing.T) {
	ctx := context.Background()
	data, truth := newSynthetic(t, 34, []int{20}, 10, 2, 0.2)
	rng := base.NewRandomGenerator(34)
	params, err := Initialize(ctx, rng, data, 2, truth.W, 1)
	assert.NoError(t, err)
	assert.Equal(t, truth.W, params.W)
}

func TestInitializeRankCapped(t *testing.T) {
	ctx := context.Background()
	data, _ := newSynthetic(t, 35, []int{4}, 6, 2, 0.2)
	rng := base.NewRandomGenerator(35)
	params, err := Initialize(ctx, rng, data, 10, nil, 1)
	assert.NoError(t, err)
	assert.Equal(t, 4, params.Rank())
}

func TestInitializeRandomShapes(t *testing.T) {
	data, _ := newSynthetic(t, 36, []int{12, 8}, 9, 3, 0.2)
	rng := base.NewRandomGenerator(36)
	params := InitializeRandom(rng, data, 3)
	assert.Equal(t, 3, params.Rank())
	assert.Len(t, params.W, 9)
	assert.Len(t, params.HList, 2)
	assert.Len(t, params.HList[0], 12)
	assert.Len(t, params.HList[1], 8)
	assertNonNegative(t, params)
}
