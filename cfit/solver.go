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
	"github.com/cfit-io/cfit/nnls"
	"github.com/juju/errors"
)

// SolveOptions controls a single block update.
type SolveOptions struct {
	// Jobs is the worker pool size for the per-gene/per-sample fan-out.
	// Values below two run sequentially.
	Jobs int
	// Mu is the stochastic proximal point penalty. Zero solves the plain
	// subproblem; positive values anchor each solution to Prev.
	Mu float64
	// Prev is the bundle the proximal penalty anchors to. Required when Mu
	// is positive.
	Prev *Params
	// RowsList restricts each dataset to a row subset. Nil uses all rows.
	RowsList [][]int
	// ShiftReg is an optional L2 pull of the shift vectors toward zero.
	ShiftReg float64
	// SkipRescale disables the weighted-mean-one rescaling of lambda.
	SkipRescale bool
}

func (opts *SolveOptions) jobs() int {
	if opts == nil || opts.Jobs < 1 {
		return 1
	}
	return opts.Jobs
}

func (opts *SolveOptions) rows(j, n int) []int {
	if opts == nil || opts.RowsList == nil {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = i
		}
		return rows
	}
	return opts.RowsList[j]
}

func (opts *SolveOptions) mu() float64 {
	if opts == nil {
		return 0
	}
	return opts.Mu
}

// SolveBlock updates one parameter block of the bundle, holding the others
// fixed, and returns a new bundle. The untouched blocks are shared with the
// input bundle, which is never mutated.
func SolveBlock(ctx context.Context, block Block, data []*dataset.Matrix, params *Params, opts *SolveOptions) (*Params, error) {
	next := &Params{
		W:          params.W,
		HList:      params.HList,
		LambdaList: params.LambdaList,
		BList:      params.BList,
	}
	var err error
	switch block {
	case BlockW:
		next.W, err = solveW(ctx, data, params, opts)
	case BlockH:
		next.HList, err = solveH(ctx, data, params, opts)
	case BlockLambda:
		next.LambdaList, err = solveLambdaList(ctx, data, params, opts)
	case BlockB:
		next.BList, err = solveB(ctx, data, params, opts)
	default:
		err = errors.Errorf("unknown block %v", block)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	return next, nil
}

// solveW updates the shared factor matrix. For each gene independently it
// solves a non-negative least squares regression of the concatenated
// shift-adjusted expression column against the concatenated lambda-scaled
// loadings. All genes of one dataset share the loading Gram matrix, so it is
// accumulated once per call.
func solveW(ctx context.Context, data []*dataset.Matrix, params *Params, opts *SolveOptions) ([][]float32, error) {
	r := params.Rank()
	numGenes := len(params.W)
	mu := opts.mu()

	rowsList := make([][]int, len(data))
	grams := make([][][]float64, len(data))
	for j, x := range data {
		rowsList[j] = opts.rows(j, x.NumRows())
		grams[j] = loadingGram(params.HList[j], rowsList[j], r)
	}

	jobs := opts.jobs()
	g := make([][][]float64, jobs)
	f := make([][]float64, jobs)
	for w := 0; w < jobs; w++ {
		g[w] = newSquare(r)
		f[w] = make([]float64, r)
	}
	newW := make([][]float32, numGenes)
	err := parallel.Parallel(ctx, numGenes, jobs, func(workerId, l int) error {
		zeroSquare(g[workerId])
		for k := range f[workerId] {
			f[workerId][k] = 0
		}
		for j, x := range data {
			lambda := float64(params.LambdaList[j][l])
			shift := params.BList[j][l]
			h := params.HList[j]
			for k1 := 0; k1 < r; k1++ {
				for k2 := 0; k2 < r; k2++ {
					g[workerId][k1][k2] += lambda * lambda * grams[j][k1][k2]
				}
			}
			for _, i := range rowsList[j] {
				y := float64(x.Values[i][l] - shift)
				for k := 0; k < r; k++ {
					f[workerId][k] += lambda * y * float64(h[i][k])
				}
			}
		}
		if mu > 0 {
			// synthetic rows sqrt(mu/r)*I tying the gene to its previous value
			for k := 0; k < r; k++ {
				g[workerId][k][k] += mu / float64(r)
				f[workerId][k] += mu / float64(r) * float64(opts.Prev.W[l][k])
			}
		}
		newW[l] = make([]float32, r)
		return errors.Trace(nnls.SolveGram(g[workerId], f[workerId], newW[l]))
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return newW, nil
}

// solveH updates the per-sample loadings of every dataset. Rows are
// independent and share the scaled-factor Gram matrix per dataset. When a row
// subset is given, only those rows are re-solved and the remaining rows keep
// their current values.
func solveH(ctx context.Context, data []*dataset.Matrix, params *Params, opts *SolveOptions) ([][][]float32, error) {
	r := params.Rank()
	mu := opts.mu()
	newHList := make([][][]float32, len(data))
	for j, x := range data {
		var newH [][]float32
		if params.HList != nil {
			newH = cloneMatrix(params.HList[j])
		} else {
			newH = make([][]float32, x.NumRows())
			for i := range newH {
				newH[i] = make([]float32, r)
			}
		}
		lambda := params.LambdaList[j]
		shift := params.BList[j]
		// Gram of W*diag(lambda), shared by all rows of the dataset
		gram := newSquare(r)
		for l := range params.W {
			s := float64(lambda[l]) * float64(lambda[l])
			for k1 := 0; k1 < r; k1++ {
				for k2 := 0; k2 < r; k2++ {
					gram[k1][k2] += s * float64(params.W[l][k1]) * float64(params.W[l][k2])
				}
			}
		}
		if mu > 0 {
			for k := 0; k < r; k++ {
				gram[k][k] += mu / float64(r)
			}
		}
		rows := opts.rows(j, x.NumRows())
		jobs := opts.jobs()
		f := make([][]float64, jobs)
		for w := 0; w < jobs; w++ {
			f[w] = make([]float64, r)
		}
		err := parallel.Parallel(ctx, len(rows), jobs, func(workerId, ri int) error {
			i := rows[ri]
			for k := 0; k < r; k++ {
				f[workerId][k] = 0
			}
			for l := range params.W {
				y := float64(x.Values[i][l]-shift[l]) * float64(lambda[l])
				for k := 0; k < r; k++ {
					f[workerId][k] += y * float64(params.W[l][k])
				}
			}
			if mu > 0 {
				for k := 0; k < r; k++ {
					f[workerId][k] += mu / float64(r) * float64(opts.Prev.HList[j][i][k])
				}
			}
			return errors.Trace(nnls.SolveGram(gram, f[workerId], newH[i]))
		})
		if err != nil {
			return nil, errors.Trace(err)
		}
		newHList[j] = newH
	}
	return newHList, nil
}

// solveLambdaList updates the per-gene scaling of every dataset by the
// closed-form ratio dot(wx,y)/dot(wx,wx) with a non-negativity clamp, then
// rescales so the sample-count-weighted mean scaling per gene is one.
func solveLambdaList(ctx context.Context, data []*dataset.Matrix, params *Params, opts *SolveOptions) ([][]float32, error) {
	numGenes := len(params.W)
	mu := opts.mu()
	jobs := opts.jobs()
	newLambdaList := make([][]float32, len(data))
	rowsList := make([][]int, len(data))
	for j, x := range data {
		rowsList[j] = opts.rows(j, x.NumRows())
		newLambdaList[j] = make([]float32, numGenes)
	}
	err := parallel.Parallel(ctx, numGenes, jobs, func(_, l int) error {
		for j, x := range data {
			h := params.HList[j]
			shift := params.BList[j][l]
			var num, den float64
			for _, i := range rowsList[j] {
				var wx float64
				for k := range params.W[l] {
					wx += float64(h[i][k]) * float64(params.W[l][k])
				}
				num += wx * float64(x.Values[i][l]-shift)
				den += wx * wx
			}
			if mu > 0 {
				n := float64(len(rowsList[j]))
				num += mu * n * float64(opts.Prev.LambdaList[j][l])
				den += mu * n
			}
			switch {
			case num <= 0 || den == 0:
				newLambdaList[j][l] = 0
			default:
				newLambdaList[j][l] = float32(num / den)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	// enforce the identifiability constraint: the sample-count-weighted mean
	// scaling per gene equals one
	if len(data) > 1 && (opts == nil || !opts.SkipRescale) {
		var totalRows float64
		for j := range data {
			totalRows += float64(len(rowsList[j]))
		}
		for l := 0; l < numGenes; l++ {
			var weighted float64
			for j := range data {
				weighted += float64(len(rowsList[j])) * float64(newLambdaList[j][l])
			}
			if weighted == 0 {
				for j := range data {
					newLambdaList[j][l] = 1
				}
				continue
			}
			mean := weighted / totalRows
			for j := range data {
				newLambdaList[j][l] = float32(float64(newLambdaList[j][l]) / mean)
			}
		}
	}
	return newLambdaList, nil
}

// solveB updates the per-gene shift of every dataset: the mean residual after
// removing the scaled factor term, optionally pulled toward zero by ShiftReg.
func solveB(ctx context.Context, data []*dataset.Matrix, params *Params, opts *SolveOptions) ([][]float32, error) {
	numGenes := len(params.W)
	mu := opts.mu()
	var reg float64
	if opts != nil {
		reg = opts.ShiftReg
	}
	jobs := opts.jobs()
	newBList := make([][]float32, len(data))
	rowsList := make([][]int, len(data))
	for j, x := range data {
		rowsList[j] = opts.rows(j, x.NumRows())
		newBList[j] = make([]float32, numGenes)
	}
	err := parallel.Parallel(ctx, numGenes, jobs, func(_, l int) error {
		for j, x := range data {
			h := params.HList[j]
			lambda := float64(params.LambdaList[j][l])
			var num float64
			for _, i := range rowsList[j] {
				var wx float64
				for k := range params.W[l] {
					wx += float64(h[i][k]) * float64(params.W[l][k])
				}
				num += float64(x.Values[i][l]) - wx*lambda
			}
			den := float64(len(rowsList[j])) + reg
			if mu > 0 {
				num += mu * float64(opts.Prev.BList[j][l])
				den += mu
			}
			if den == 0 {
				newBList[j][l] = 0
			} else {
				newBList[j][l] = float32(num / den)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return newBList, nil
}

// loadingGram accumulates H'H over the given rows in float64.
func loadingGram(h [][]float32, rows []int, r int) [][]float64 {
	gram := newSquare(r)
	for _, i := range rows {
		for k1 := 0; k1 < r; k1++ {
			for k2 := 0; k2 < r; k2++ {
				gram[k1][k2] += float64(h[i][k1]) * float64(h[i][k2])
			}
		}
	}
	return gram
}

func newSquare(r int) [][]float64 {
	ret := make([][]float64, r)
	for i := range ret {
		ret[i] = make([]float64, r)
	}
	return ret
}

func zeroSquare(m [][]float64) {
	for i := range m {
		for j := range m[i] {
			m[i][j] = 0
		}
	}
}
