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

package floats

import (
	"math"

	"github.com/chewxy/math32"
)

// Zero fills zeros in a vector of 32-bit floats.
func Zero(a []float32) {
	for i := range a {
		a[i] = 0
	}
}

// MatZero fills zeros in a matrix of 32-bit floats.
func MatZero(x [][]float32) {
	for i := range x {
		for j := range x[i] {
			x[i][j] = 0
		}
	}
}

// Dot returns the dot product of two vectors.
func Dot(a, b []float32) (ret float32) {
	for i := range a {
		ret += a[i] * b[i]
	}
	return
}

// Euclidean returns the Euclidean distance between two vectors.
func Euclidean(a, b []float32) (ret float32) {
	for i := range a {
		ret += (a[i] - b[i]) * (a[i] - b[i])
	}
	return math32.Sqrt(ret)
}

// SubTo subtracts b from a, element-wise, into dst.
func SubTo(a, b, dst []float32) {
	for i := range a {
		dst[i] = a[i] - b[i]
	}
}

// AddTo adds a and b, element-wise, into dst.
func AddTo(a, b, dst []float32) {
	for i := range a {
		dst[i] = a[i] + b[i]
	}
}

// AddConst adds a constant to every element of dst.
func AddConst(dst []float32, c float32) {
	for i := range dst {
		dst[i] += c
	}
}

// MulConst multiplies every element of dst by a constant.
func MulConst(dst []float32, c float32) {
	for i := range dst {
		dst[i] *= c
	}
}

// MulConstTo multiplies a by a constant into dst.
func MulConstTo(a []float32, c float32, dst []float32) {
	for i := range a {
		dst[i] = a[i] * c
	}
}

// MulConstAdd adds a multiplied by a constant into dst.
func MulConstAdd(a []float32, c float32, dst []float32) {
	for i := range a {
		dst[i] += a[i] * c
	}
}

// MulConstAddTo computes dst = a*c + b.
func MulConstAddTo(a []float32, c float32, b, dst []float32) {
	for i := range a {
		dst[i] = a[i]*c + b[i]
	}
}

// MulTo multiplies a and b, element-wise, into dst.
func MulTo(a, b, dst []float32) {
	for i := range a {
		dst[i] = a[i] * b[i]
	}
}

// MatFrobenius returns the Frobenius norm of a matrix, accumulated in float64.
func MatFrobenius(x [][]float32) float64 {
	var sum float64
	for i := range x {
		for j := range x[i] {
			v := float64(x[i][j])
			sum += v * v
		}
	}
	return math.Sqrt(sum)
}

// MatEuclidean returns the Frobenius norm of a-b, accumulated in float64.
func MatEuclidean(a, b [][]float32) float64 {
	var sum float64
	for i := range a {
		for j := range a[i] {
			v := float64(a[i][j]) - float64(b[i][j])
			sum += v * v
		}
	}
	return math.Sqrt(sum)
}
