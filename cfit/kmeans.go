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
	"github.com/cfit-io/cfit/base"
	"github.com/cfit-io/cfit/common/floats"
)

const kmeansMaxIter = 100

// kmeans clusters rows into k groups with Lloyd's algorithm seeded by
// k-means++. Empty clusters are reseeded with the point farthest from its
// center. Returns per-row cluster assignments.
func kmeans(rng base.RandomGenerator, points [][]float32, k int) []int {
	n := len(points)

	// k-means++ seeding
	centers := make([][]float32, k)
	centers[0] = cloneVector(points[rng.Intn(n)])
	minDist := make([]float32, n)
	for i := range minDist {
		minDist[i] = floats.Euclidean(points[i], centers[0])
	}
	for c := 1; c < k; c++ {
		var total float64
		for _, d := range minDist {
			total += float64(d) * float64(d)
		}
		next := 0
		if total > 0 {
			target := rng.Float64() * total
			var cum float64
			for i, d := range minDist {
				cum += float64(d) * float64(d)
				if cum >= target {
					next = i
					break
				}
			}
		} else {
			next = rng.Intn(n)
		}
		centers[c] = cloneVector(points[next])
		for i := range minDist {
			if d := floats.Euclidean(points[i], centers[c]); d < minDist[i] {
				minDist[i] = d
			}
		}
	}

	assignments := make([]int, n)
	counts := make([]int, k)
	for iter := 0; iter < kmeansMaxIter; iter++ {
		// assignment step
		changed := false
		for i := range points {
			best, bestDist := 0, floats.Euclidean(points[i], centers[0])
			for c := 1; c < k; c++ {
				if d := floats.Euclidean(points[i], centers[c]); d < bestDist {
					best, bestDist = c, d
				}
			}
			if assignments[i] != best {
				changed = true
				assignments[i] = best
			}
		}
		if iter > 0 && !changed {
			break
		}
		// update step
		for c := range centers {
			floats.Zero(centers[c])
			counts[c] = 0
		}
		for i, c := range assignments {
			floats.MulConstAdd(points[i], 1, centers[c])
			counts[c]++
		}
		for c := range centers {
			if counts[c] > 0 {
				floats.MulConst(centers[c], 1/float32(counts[c]))
			}
		}
		for c := range centers {
			if counts[c] > 0 {
				continue
			}
			// reseed from the point farthest from its center
			far, farDist := 0, float32(-1)
			for i := range points {
				if counts[assignments[i]] < 2 {
					continue
				}
				if d := floats.Euclidean(points[i], centers[assignments[i]]); d > farDist {
					far, farDist = i, d
				}
			}
			copy(centers[c], points[far])
			counts[assignments[far]]--
			assignments[far] = c
			counts[c] = 1
		}
	}
	return assignments
}
