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
	"time"

	"github.com/cfit-io/cfit/base"
	"github.com/cfit-io/cfit/base/log"
	"github.com/cfit-io/cfit/base/progress"
	"github.com/cfit-io/cfit/common/floats"
	"github.com/cfit-io/cfit/dataset"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// FitConfig holds the integration hyper-parameters.
type FitConfig struct {
	Rank       int
	Tol        float64
	MaxIter    int
	NumRepeats int
	Seed       int64
	Jobs       int
	Verbose    int
	FitShift   bool
	Init       *Params
}

// NewFitConfig creates a FitConfig with defaults.
func NewFitConfig(rank int) *FitConfig {
	return &FitConfig{
		Rank:       rank,
		Tol:        1e-5,
		MaxIter:    100,
		NumRepeats: 1,
		Seed:       0,
		Jobs:       1,
		Verbose:    10,
	}
}

func (config *FitConfig) SetTol(tol float64) *FitConfig {
	config.Tol = tol
	return config
}

func (config *FitConfig) SetMaxIter(maxIter int) *FitConfig {
	config.MaxIter = maxIter
	return config
}

func (config *FitConfig) SetNumRepeats(numRepeats int) *FitConfig {
	config.NumRepeats = numRepeats
	return config
}

func (config *FitConfig) SetSeed(seed int64) *FitConfig {
	config.Seed = seed
	return config
}

func (config *FitConfig) SetJobs(jobs int) *FitConfig {
	config.Jobs = jobs
	return config
}

func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

// SetFitShift includes the per-gene shift in the update cycle.
func (config *FitConfig) SetFitShift(fitShift bool) *FitConfig {
	config.FitShift = fitShift
	return config
}

// SetInit supplies a starting bundle, skipping the k-means bootstrap.
func (config *FitConfig) SetInit(init *Params) *FitConfig {
	config.Init = init
	return config
}

// Result is the output record of an integration run.
type Result struct {
	Params
	RowNames          [][]string
	Genes             []string
	Converged         bool
	Objective         float64
	ObjectiveHistory  []float64
	WStability        float64
	WStabilityHistory []float64
	Iterations        int
	Elapsed           time.Duration
	Config            *FitConfig
	// SketchConfig echoes the sketched optimizer's full settings; nil for
	// full-batch runs.
	SketchConfig *SketchConfig
}

// Integrate fits the shared factor matrix and per-dataset corrections by
// full-batch block coordinate descent. All matrices must already be aligned
// to a common gene set. Across NumRepeats independently seeded repeats only
// the run with the lowest final objective is kept; a failed repeat is logged
// and skipped, and an error is returned only when every repeat fails.
func Integrate(ctx context.Context, data []*dataset.Matrix, config *FitConfig) (*Result, error) {
	if err := validateData(data); err != nil {
		return nil, errors.Trace(err)
	}
	log.Logger().Info("integrate",
		zap.Int("num_datasets", len(data)),
		zap.Int("num_genes", data[0].NumGenes()),
		zap.Int("rank", config.Rank),
		zap.Int("num_repeats", config.NumRepeats))
	start := time.Now()
	var best *Result
	_, span := progress.Start(ctx, "Integrate", config.NumRepeats)
	for rep := 0; rep < config.NumRepeats; rep++ {
		rng := base.NewRandomGenerator(config.Seed + int64(rep))
		result, err := integrateOnce(ctx, rng, data, config)
		if err != nil {
			log.Logger().Warn("integration repeat failed",
				zap.Int("repeat", rep), zap.Error(err))
			span.Add(1)
			continue
		}
		if best == nil || result.Objective < best.Objective {
			best = result
		}
		span.Add(1)
	}
	span.End()
	if best == nil {
		return nil, errors.New("all integration repeats failed")
	}
	best.Elapsed = time.Since(start)
	best.RowNames = rowNames(data)
	best.Genes = data[0].Genes
	log.Logger().Info("integrate complete",
		zap.Bool("converged", best.Converged),
		zap.Int("iterations", best.Iterations),
		zap.Float64("objective", best.Objective),
		zap.Duration("elapsed", best.Elapsed))
	return best, nil
}

func integrateOnce(ctx context.Context, rng base.RandomGenerator, data []*dataset.Matrix, config *FitConfig) (*Result, error) {
	params, err := initialParams(ctx, rng, data, config)
	if err != nil {
		return nil, errors.Trace(err)
	}
	opts := &SolveOptions{Jobs: config.Jobs}
	floor := config.Tol * dataSumSquares(data, nil)
	objective, err := Objective(ctx, data, params, nil, config.Jobs)
	if err != nil {
		return nil, errors.Trace(err)
	}
	result := &Result{
		Config:           config,
		ObjectiveHistory: []float64{objective},
	}
	for iter := 1; iter <= config.MaxIter; iter++ {
		iterStart := time.Now()
		prevW := params.W
		params, err = SolveBlock(ctx, BlockH, data, params, opts)
		if err != nil {
			return nil, errors.Trace(err)
		}
		// randomize the relative order of the shared-block updates to
		// decorrelate the fixed-cycle bias of coordinate descent
		blocks := []Block{BlockW, BlockLambda}
		if config.FitShift {
			blocks = append(blocks, BlockB)
		}
		rng.Shuffle(len(blocks), func(i, j int) {
			blocks[i], blocks[j] = blocks[j], blocks[i]
		})
		for _, block := range blocks {
			if params, err = SolveBlock(ctx, block, data, params, opts); err != nil {
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
		stability := wStability(params.W, prevW)
		objective = next
		result.ObjectiveHistory = append(result.ObjectiveHistory, objective)
		result.WStabilityHistory = append(result.WStabilityHistory, stability)
		result.Iterations = iter
		if config.Verbose > 0 && (iter%config.Verbose == 0 || iter == config.MaxIter) {
			log.Logger().Debug("integrate iteration",
				zap.Int("iter", iter),
				zap.Float64("objective", objective),
				zap.Float64("delta", delta),
				zap.Float64("w_stability", stability),
				zap.Duration("iter_time", time.Since(iterStart)))
		}
		// on exactly representable data the objective decays geometrically
		// toward zero while the relative delta stays constant, so a residual
		// below tol of the data scale also counts as converged
		if delta < config.Tol || objective <= floor {
			result.Converged = true
			break
		}
	}
	result.Params = *params
	result.Objective = objective
	result.WStability = lastOr(result.WStabilityHistory, 0)
	return result, nil
}

func initialParams(ctx context.Context, rng base.RandomGenerator, data []*dataset.Matrix, config *FitConfig) (*Params, error) {
	if config.Init != nil {
		init := config.Init
		if init.W != nil && init.HList != nil && init.LambdaList != nil && init.BList != nil {
			return init.Clone(), nil
		}
		// partial bundle: reuse W and derive the rest
		params, err := Initialize(ctx, rng, data, config.Rank, init.W, config.Jobs)
		return params, errors.Trace(err)
	}
	params, err := Initialize(ctx, rng, data, config.Rank, nil, config.Jobs)
	return params, errors.Trace(err)
}

func validateData(data []*dataset.Matrix) error {
	if len(data) == 0 {
		return errors.New("empty dataset collection")
	}
	numGenes := data[0].NumGenes()
	for j, x := range data {
		if x.NumGenes() != numGenes {
			return errors.Errorf("dataset %d has %d genes, want %d: align datasets first", j, x.NumGenes(), numGenes)
		}
	}
	return nil
}

// relativeDelta is the relative objective change between iterations,
// |a-b| / mean(a,b). Zero when both objectives are zero.
func relativeDelta(a, b float64) float64 {
	mean := (a + b) / 2
	if mean == 0 {
		return 0
	}
	return math.Abs(a-b) / mean
}

// wStability is ||W_t - W_{t-1}||_F / ||W_{t-1}||_F.
func wStability(w, prev [][]float32) float64 {
	norm := floats.MatFrobenius(prev)
	if norm == 0 {
		return 0
	}
	return floats.MatEuclidean(w, prev) / norm
}

func lastOr(history []float64, fallback float64) float64 {
	if len(history) == 0 {
		return fallback
	}
	return history[len(history)-1]
}

func rowNames(data []*dataset.Matrix) [][]string {
	names := make([][]string, len(data))
	for j, x := range data {
		names[j] = x.Rows
	}
	return names
}
