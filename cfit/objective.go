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

	"github.com/cfit-io/cfit/base/parallel"
	"github.com/cfit-io/cfit/dataset"
	"github.com/juju/errors"
)

// Objective computes the joint reconstruction loss
//
//	sum_j ||X_j - H_j W^T diag(lambda_j) - 1 b_j^T||_F^2
//
// optionally restricted to the row subsets in rowsList. When params.HList is
// nil, loadings are solved fresh for the given W/lambda/b without mutating
// the caller's bundle, which lets callers score a W candidate on data the
// bundle never saw.
func Objective(ctx context.Context, data []*dataset.Matrix, params *Params, rowsList [][]int, jobs int) (float64, error) {
	if params.HList == nil {
		hList, err := solveH(ctx, data, params, &SolveOptions{Jobs: jobs, RowsList: rowsList})
		if err != nil {
			return 0, errors.Trace(err)
		}
		scored := &Params{W: params.W, HList: hList, LambdaList: params.LambdaList, BList: params.BList}
		return Objective(ctx, data, scored, rowsList, jobs)
	}
	if jobs < 1 {
		jobs = 1
	}
	var total float64
	for j, x := range data {
		rows := rowsFor(rowsList, j, x.NumRows())
		h := params.HList[j]
		lambda := params.LambdaList[j]
		shift := params.BList[j]
		partial := make([]float64, jobs)
		err := parallel.Parallel(ctx, len(rows), jobs, func(workerId, ri int) error {
			i := rows[ri]
			var sum float64
			for l := range params.W {
				var wx float64
				for k := range params.W[l] {
					wx += float64(h[i][k]) * float64(params.W[l][k])
				}
				residual := float64(x.Values[i][l]) - wx*float64(lambda[l]) - float64(shift[l])
				sum += residual * residual
			}
			partial[workerId] += sum
			return nil
		})
		if err != nil {
			return 0, errors.Trace(err)
		}
		for _, v := range partial {
			total += v
		}
	}
	return total, nil
}

// dataSumSquares is the total sum of squared entries, optionally restricted
// to row subsets. It sets the scale against which a vanishing objective is
// judged converged.
func dataSumSquares(data []*dataset.Matrix, rowsList [][]int) float64 {
	var total float64
	for j, x := range data {
		for _, i := range rowsFor(rowsList, j, x.NumRows()) {
			for _, v := range x.Values[i] {
				total += float64(v) * float64(v)
			}
		}
	}
	return total
}

func rowsFor(rowsList [][]int, j, n int) []int {
	if rowsList == nil {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = i
		}
		return rows
	}
	return rowsList[j]
}
