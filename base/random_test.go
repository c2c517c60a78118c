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

package base

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUniformMatrix(t *testing.T) {
	rng := NewRandomGenerator(0)
	m := rng.UniformMatrix(10, 5, 0, 1)
	assert.Len(t, m, 10)
	for _, row := range m {
		assert.Len(t, row, 5)
		for _, v := range row {
			assert.GreaterOrEqual(t, v, float32(0))
			assert.Less(t, v, float32(1))
		}
	}
}

func TestSample(t *testing.T) {
	excludeSet := make([]int, 0)
	rng := NewRandomGenerator(0)
	sampled := rng.Sample(0, 100, 10)
	assert.Len(t, sampled, 10)
	seen := make(map[int]bool)
	for _, v := range sampled {
		assert.False(t, seen[v])
		seen[v] = true
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 100)
	}
	// request more than available
	sampled = rng.Sample(0, 5, 10)
	assert.Len(t, sampled, 5)
	_ = excludeSet
}

func TestSampleDeterminism(t *testing.T) {
	a := NewRandomGenerator(42).Sample(0, 1000, 50)
	b := NewRandomGenerator(42).Sample(0, 1000, 50)
	assert.Equal(t, a, b)
}

func TestWeightedSample(t *testing.T) {
	rng := NewRandomGenerator(0)
	weights := make([]float32, 100)
	for i := range weights {
		weights[i] = 1
	}
	// heavily favor the first ten rows
	for i := 0; i < 10; i++ {
		weights[i] = 1000
	}
	counts := make([]int, 100)
	for trial := 0; trial < 100; trial++ {
		sampled := rng.WeightedSample(100, 20, weights)
		assert.Len(t, sampled, 20)
		seen := make(map[int]bool)
		for _, v := range sampled {
			assert.False(t, seen[v])
			seen[v] = true
			counts[v]++
		}
	}
	// the heavy rows should almost always be drawn
	for i := 0; i < 10; i++ {
		assert.Greater(t, counts[i], 90)
	}
}

func TestWeightedSampleZeroWeights(t *testing.T) {
	rng := NewRandomGenerator(0)
	weights := []float32{0, 1, 0, 1, 0, 1}
	sampled := rng.WeightedSample(6, 3, weights)
	assert.Len(t, sampled, 3)
	for _, v := range sampled {
		assert.Equal(t, float32(1), weights[v])
	}
}
