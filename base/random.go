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
	"math"
	"math/rand"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// RandomGenerator is the random generator for cfit. Every function that
// samples takes one explicitly so that runs are reproducible given a seed.
type RandomGenerator struct {
	*rand.Rand
}

// NewRandomGenerator creates a RandomGenerator.
func NewRandomGenerator(seed int64) RandomGenerator {
	return RandomGenerator{rand.New(rand.NewSource(seed))}
}

// UniformVector makes a vec filled with uniform random floats.
func (rng RandomGenerator) UniformVector(size int, low, high float32) []float32 {
	ret := make([]float32, size)
	scale := high - low
	for i := 0; i < len(ret); i++ {
		ret[i] = rng.Float32()*scale + low
	}
	return ret
}

// UniformMatrix makes a matrix filled with uniform random floats.
func (rng RandomGenerator) UniformMatrix(row, col int, low, high float32) [][]float32 {
	ret := make([][]float32, row)
	for i := range ret {
		ret[i] = rng.UniformVector(col, low, high)
	}
	return ret
}

// Sample n values between low and high, but not in exclude.
func (rng RandomGenerator) Sample(low, high, n int, exclude ...mapset.Set[int]) []int {
	intervalLength := high - low
	excludeSet := mapset.NewSet[int]()
	for _, set := range exclude {
		excludeSet = excludeSet.Union(set)
	}
	sampled := make([]int, 0, n)
	if n >= intervalLength-excludeSet.Cardinality() {
		for i := low; i < high; i++ {
			if !excludeSet.Contains(i) {
				sampled = append(sampled, i)
				excludeSet.Add(i)
			}
		}
	} else {
		for len(sampled) < n {
			v := rng.Intn(intervalLength) + low
			if !excludeSet.Contains(v) {
				sampled = append(sampled, v)
				excludeSet.Add(v)
			}
		}
	}
	return sampled
}

// WeightedSample draws n indices from [0, size) without replacement, with
// probabilities proportional to weights. Zero-weight rows are never drawn
// unless the positive-weight pool runs out. Uses the exponential-key method
// of Efraimidis and Spirakis.
func (rng RandomGenerator) WeightedSample(size, n int, weights []float32) []int {
	if n > size {
		n = size
	}
	type keyed struct {
		index int
		key   float64
	}
	keys := make([]keyed, size)
	for i := 0; i < size; i++ {
		w := float64(weights[i])
		if w <= 0 {
			keys[i] = keyed{index: i, key: math.Inf(1)}
			continue
		}
		keys[i] = keyed{index: i, key: rng.ExpFloat64() / w}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].key < keys[j].key })
	sampled := make([]int, n)
	for i := 0; i < n; i++ {
		sampled[i] = keys[i].index
	}
	return sampled
}
