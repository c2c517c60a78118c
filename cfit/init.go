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
	"math"

	"github.com/cfit-io/cfit/base"
	"github.com/cfit-io/cfit/base/log"
	"github.com/cfit-io/cfit/base/parallel"
	"github.com/cfit-io/cfit/dataset"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Initialize bootstraps a parameter bundle for the given datasets and rank.
// Rows of all datasets are standardized per gene within each dataset,
// concatenated and clustered into rank groups; the loadings start as cluster
// membership indicators and W is fitted to them by non-negative least
// squares. Scaling starts at one, shift at zero. When w is non-nil it is
// reused as-is and only the remaining blocks are derived.
func Initialize(ctx context.Context, rng base.RandomGenerator, data []*dataset.Matrix, rank int, w [][]float32, jobs int) (*Params, error) {
	if len(data) == 0 {
		return nil, errors.New("empty dataset collection")
	}
	numGenes := data[0].NumGenes()
	totalRows := 0
	for _, x := range data {
		totalRows += x.NumRows()
	}
	if rank > totalRows || rank > numGenes {
		capped := min(totalRows, numGenes)
		log.Logger().Warn("rank exceeds feasible rank, capping",
			zap.Int("rank", rank), zap.Int("capped", capped))
		rank = capped
	}
	if rank < 1 {
		return nil, errors.Errorf("rank %d is not positive", rank)
	}

	// standardize each dataset per gene and concatenate rows
	standardized := make([][][]float32, len(data))
	parallel.For(len(data), jobs, func(j int) {
		standardized[j] = standardize(data[j])
	})
	scaled := make([][]float32, 0, totalRows)
	for _, s := range standardized {
		scaled = append(scaled, s...)
	}
	assignments := kmeans(rng, scaled, rank)

	// loadings start as binarized cluster memberships
	hList := make([][][]float32, len(data))
	offset := 0
	for j, x := range data {
		h := make([][]float32, x.NumRows())
		for i := range h {
			h[i] = make([]float32, rank)
			h[i][assignments[offset+i]] = 1
		}
		hList[j] = h
		offset += x.NumRows()
	}

	params := &Params{
		HList:      hList,
		LambdaList: make([][]float32, len(data)),
		BList:      make([][]float32, len(data)),
	}
	for j := range data {
		params.LambdaList[j] = constantVector(numGenes, 1)
		params.BList[j] = make([]float32, numGenes)
	}
	if w != nil {
		params.W = w
		return params, nil
	}
	// fit W to the membership indicators on the raw, uncentered data
	blank := make([][]float32, numGenes)
	for l := range blank {
		blank[l] = make([]float32, rank)
	}
	var err error
	params.W, err = solveW(ctx, data, &Params{
		W:          blank,
		HList:      hList,
		LambdaList: params.LambdaList,
		BList:      params.BList,
	}, &SolveOptions{Jobs: jobs})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return params, nil
}

// InitializeRandom draws W and the loadings from uniform non-negative
// distributions, with scaling one and shift zero. Data-independent fallback
// used for ablations.
func InitializeRandom(rng base.RandomGenerator, data []*dataset.Matrix, rank int) *Params {
	numGenes := data[0].NumGenes()
	params := &Params{
		W:          rng.UniformMatrix(numGenes, rank, 0, 1),
		HList:      make([][][]float32, len(data)),
		LambdaList: make([][]float32, len(data)),
		BList:      make([][]float32, len(data)),
	}
	for j, x := range data {
		params.HList[j] = rng.UniformMatrix(x.NumRows(), rank, 0, 1)
		params.LambdaList[j] = constantVector(numGenes, 1)
		params.BList[j] = make([]float32, numGenes)
	}
	return params
}

// standardize returns z-scored copies of the rows of x, per gene. Genes with
// zero variance map to zero.
func standardize(x *dataset.Matrix) [][]float32 {
	n, p := x.NumRows(), x.NumGenes()
	mean := make([]float64, p)
	for _, row := range x.Values {
		for l, v := range row {
			mean[l] += float64(v)
		}
	}
	for l := range mean {
		mean[l] /= float64(n)
	}
	std := make([]float64, p)
	for _, row := range x.Values {
		for l, v := range row {
			d := float64(v) - mean[l]
			std[l] += d * d
		}
	}
	for l := range std {
		std[l] = math.Sqrt(std[l] / float64(n))
	}
	scaled := make([][]float32, n)
	for i, row := range x.Values {
		scaled[i] = make([]float32, p)
		for l, v := range row {
			if std[l] > 0 {
				scaled[i][l] = float32((float64(v) - mean[l]) / std[l])
			}
		}
	}
	return scaled
}
