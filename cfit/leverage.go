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
	"github.com/cfit-io/cfit/dataset"
	"github.com/juju/errors"
	"gonum.org/v1/gonum/mat"
)

// LeverageScores computes per-row statistical leverage from the top q left
// singular vectors of the expression matrix: the squared row norms of the
// truncated U, normalized to sum to one. The scores bias subsampling toward
// influential rows. q is capped at the feasible rank.
func LeverageScores(x *dataset.Matrix, q int) ([]float32, error) {
	n, p := x.NumRows(), x.NumGenes()
	if q > n {
		q = n
	}
	if q > p {
		q = p
	}
	if q < 1 {
		return nil, errors.Errorf("leverage rank %d is not positive", q)
	}
	dense := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for l := 0; l < p; l++ {
			dense.Set(i, l, float64(x.Values[i][l]))
		}
	}
	var svd mat.SVD
	if ok := svd.Factorize(dense, mat.SVDThinU); !ok {
		return nil, errors.New("SVD failed to converge")
	}
	var u mat.Dense
	svd.UTo(&u)
	scores := make([]float32, n)
	var total float64
	for i := 0; i < n; i++ {
		var sum float64
		for k := 0; k < q; k++ {
			v := u.At(i, k)
			sum += v * v
		}
		scores[i] = float32(sum)
		total += sum
	}
	if total > 0 {
		for i := range scores {
			scores[i] = float32(float64(scores[i]) / total)
		}
	}
	return scores, nil
}
