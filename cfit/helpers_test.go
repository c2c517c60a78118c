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
	"fmt"
	"testing"

	"github.com/cfit-io/cfit/base"
	"github.com/cfit-io/cfit/dataset"
	"github.com/stretchr/testify/assert"
)

// newSynthetic builds datasets from known parameters, X_j = H_j W^T
// diag(lambda_j), with optional uniform noise. The true lambda satisfies the
// sample-count-weighted mean-one constraint.
func newSynthetic(t *testing.T, seed int64, rows []int, numGenes, rank int, noise float32) ([]*dataset.Matrix, *Params) {
	rng := base.NewRandomGenerator(seed)
	truth := &Params{
		W:          rng.UniformMatrix(numGenes, rank, 0.1, 1),
		HList:      make([][][]float32, len(rows)),
		LambdaList: make([][]float32, len(rows)),
		BList:      make([][]float32, len(rows)),
	}
	totalRows := 0
	for _, n := range rows {
		totalRows += n
	}
	for j, n := range rows {
		truth.HList[j] = rng.UniformMatrix(n, rank, 0.1, 1)
		truth.LambdaList[j] = rng.UniformVector(numGenes, 0.5, 1.5)
		truth.BList[j] = make([]float32, numGenes)
	}
	// enforce the identifiability constraint on the true scaling
	for l := 0; l < numGenes; l++ {
		var weighted float64
		for j, n := range rows {
			weighted += float64(n) * float64(truth.LambdaList[j][l])
		}
		mean := weighted / float64(totalRows)
		for j := range rows {
			truth.LambdaList[j][l] = float32(float64(truth.LambdaList[j][l]) / mean)
		}
	}
	genes := make([]string, numGenes)
	for l := range genes {
		genes[l] = fmt.Sprintf("gene%d", l)
	}
	data := make([]*dataset.Matrix, len(rows))
	for j, n := range rows {
		values := make([][]float32, n)
		for i := 0; i < n; i++ {
			values[i] = make([]float32, numGenes)
			for l := 0; l < numGenes; l++ {
				var wx float32
				for k := 0; k < rank; k++ {
					wx += truth.HList[j][i][k] * truth.W[l][k]
				}
				v := wx*truth.LambdaList[j][l] + truth.BList[j][l]
				if noise > 0 {
					v += rng.Float32() * noise
				}
				values[i][l] = v
			}
		}
		m, err := dataset.NewMatrix(values, nil, genes)
		assert.NoError(t, err)
		data[j] = m
	}
	return data, truth
}

func assertNonNegative(t *testing.T, params *Params) {
	for _, row := range params.W {
		for _, v := range row {
			assert.GreaterOrEqual(t, v, float32(0))
		}
	}
	for _, h := range params.HList {
		for _, row := range h {
			for _, v := range row {
				assert.GreaterOrEqual(t, v, float32(0))
			}
		}
	}
	for _, lambda := range params.LambdaList {
		for _, v := range lambda {
			assert.GreaterOrEqual(t, v, float32(0))
		}
	}
}
