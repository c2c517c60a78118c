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
	"math"
	"sort"

	"github.com/cfit-io/cfit/base"
	"modernc.org/mathutil"
)

// Subsample draws a row subset of size floor(prop*n), raised to minSamples
// (capped at n) when the proportion yields fewer rows. When weights are given
// the draw is weighted without replacement, otherwise uniform. Indices are
// returned sorted so downstream updates recombine deterministically.
func Subsample(rng base.RandomGenerator, n int, prop float64, minSamples int, weights []float32) []int {
	size := int(math.Floor(prop * float64(n)))
	size = mathutil.Max(size, mathutil.Min(minSamples, n))
	size = mathutil.Min(size, n)
	var sampled []int
	if weights != nil {
		sampled = rng.WeightedSample(n, size, weights)
	} else {
		sampled = rng.Sample(0, n, size)
	}
	sort.Ints(sampled)
	return sampled
}
