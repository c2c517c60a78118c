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
	"time"

	"github.com/cfit-io/cfit/base/log"
	"github.com/cfit-io/cfit/dataset"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// TransferConfig holds the transfer hyper-parameters.
type TransferConfig struct {
	Tol      float64
	MaxIter  int
	Jobs     int
	Verbose  int
	FitScale bool
	FitShift bool
}

// NewTransferConfig creates a TransferConfig with defaults.
func NewTransferConfig() *TransferConfig {
	return &TransferConfig{
		Tol:     1e-5,
		MaxIter: 100,
		Jobs:    1,
		Verbose: 10,
	}
}

func (config *TransferConfig) SetTol(tol float64) *TransferConfig {
	config.Tol = tol
	return config
}

func (config *TransferConfig) SetMaxIter(maxIter int) *TransferConfig {
	config.MaxIter = maxIter
	return config
}

func (config *TransferConfig) SetJobs(jobs int) *TransferConfig {
	config.Jobs = jobs
	return config
}

func (config *TransferConfig) SetVerbose(verbose int) *TransferConfig {
	config.Verbose = verbose
	return config
}

// SetFitScale also fits the per-gene scaling of the target dataset.
func (config *TransferConfig) SetFitScale(fitScale bool) *TransferConfig {
	config.FitScale = fitScale
	return config
}

// SetFitShift also fits the per-gene shift of the target dataset.
func (config *TransferConfig) SetFitShift(fitShift bool) *TransferConfig {
	config.FitShift = fitShift
	return config
}

// TransferResult is the output record of a transfer run.
type TransferResult struct {
	H                [][]float32
	Lambda           []float32
	B                []float32
	RowNames         []string
	Converged        bool
	Objective        float64
	ObjectiveHistory []float64
	Iterations       int
	Elapsed          time.Duration
	Config           *TransferConfig
}

// Transfer projects a new dataset onto a previously learned factor matrix.
// x must be restricted to the genes of w, in the same order. w is read-only:
// only the target's loadings, and optionally its scaling and shift, are
// fitted, under the same convergence criteria as Integrate.
func Transfer(ctx context.Context, x *dataset.Matrix, w [][]float32, config *TransferConfig) (*TransferResult, error) {
	if x.NumGenes() != len(w) {
		return nil, errors.Errorf("dataset has %d genes, factor matrix has %d", x.NumGenes(), len(w))
	}
	log.Logger().Info("transfer",
		zap.Int("num_rows", x.NumRows()),
		zap.Int("num_genes", x.NumGenes()),
		zap.Int("rank", len(w[0])))
	start := time.Now()
	data := []*dataset.Matrix{x}
	params := &Params{
		W:          w,
		LambdaList: [][]float32{constantVector(x.NumGenes(), 1)},
		BList:      [][]float32{make([]float32, x.NumGenes())},
	}
	opts := &SolveOptions{Jobs: config.Jobs}
	floor := config.Tol * dataSumSquares(data, nil)
	var err error
	params.HList, err = solveH(ctx, data, params, opts)
	if err != nil {
		return nil, errors.Trace(err)
	}
	objective, err := Objective(ctx, data, params, nil, config.Jobs)
	if err != nil {
		return nil, errors.Trace(err)
	}
	result := &TransferResult{
		Config:           config,
		ObjectiveHistory: []float64{objective},
	}
	for iter := 1; iter <= config.MaxIter; iter++ {
		params, err = SolveBlock(ctx, BlockH, data, params, opts)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if config.FitScale {
			if params, err = SolveBlock(ctx, BlockLambda, data, params, opts); err != nil {
				return nil, errors.Trace(err)
			}
		}
		if config.FitShift {
			if params, err = SolveBlock(ctx, BlockB, data, params, opts); err != nil {
				return nil, errors.Trace(err)
			}
		}
		if err := params.CheckFinite(); err != nil {
			return nil, errors.Trace(err)
		}
		next, err := Objective(ctx, data, params, nil, config.Jobs)
		if err != nil {
			return nil, errors.Trace(err)
		}
		delta := relativeDelta(next, objective)
		objective = next
		result.ObjectiveHistory = append(result.ObjectiveHistory, objective)
		result.Iterations = iter
		if config.Verbose > 0 && (iter%config.Verbose == 0 || iter == config.MaxIter) {
			log.Logger().Debug("transfer iteration",
				zap.Int("iter", iter),
				zap.Float64("objective", objective),
				zap.Float64("delta", delta))
		}
		if delta < config.Tol || objective <= floor {
			result.Converged = true
			break
		}
	}
	result.H = params.HList[0]
	result.Lambda = params.LambdaList[0]
	result.B = params.BList[0]
	result.RowNames = x.Rows
	result.Objective = objective
	result.Elapsed = time.Since(start)
	log.Logger().Info("transfer complete",
		zap.Bool("converged", result.Converged),
		zap.Int("iterations", result.Iterations),
		zap.Float64("objective", result.Objective),
		zap.Duration("elapsed", result.Elapsed))
	return result, nil
}
