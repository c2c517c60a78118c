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
	"github.com/chewxy/math32"
	"github.com/juju/errors"
)

// Params is the parameter bundle of the factorization model. For dataset j,
// sample i and gene l the reconstruction is
//
//	X_j[i,l] ≈ (H_j W^T)[i,l] * Lambda_j[l] + B_j[l]
//
// W and every H are element-wise non-negative, Lambda entries are
// non-negative, B entries are unconstrained. Solvers treat a bundle as an
// immutable snapshot and return a new bundle with one block replaced.
type Params struct {
	W          [][]float32   // p x r shared factor matrix
	HList      [][][]float32 // per-dataset n_j x r loadings
	LambdaList [][]float32   // per-dataset per-gene scaling
	BList      [][]float32   // per-dataset per-gene shift
}

// Rank returns the factorization rank.
func (p *Params) Rank() int {
	if len(p.W) == 0 {
		return 0
	}
	return len(p.W[0])
}

// Clone returns a deep copy of the bundle.
func (p *Params) Clone() *Params {
	return &Params{
		W:          cloneMatrix(p.W),
		HList:      cloneMatrixList(p.HList),
		LambdaList: cloneVectorList(p.LambdaList),
		BList:      cloneVectorList(p.BList),
	}
}

// CheckFinite returns an error if any entry of the bundle is NaN or infinite.
// A non-finite entry means a solver produced garbage and the run must abort.
func (p *Params) CheckFinite() error {
	for _, row := range p.W {
		for _, v := range row {
			if math32.IsNaN(v) || math32.IsInf(v, 0) {
				return errors.New("non-finite entry in W")
			}
		}
	}
	for j, h := range p.HList {
		for _, row := range h {
			for _, v := range row {
				if math32.IsNaN(v) || math32.IsInf(v, 0) {
					return errors.Errorf("non-finite entry in H of dataset %d", j)
				}
			}
		}
	}
	for j, lambda := range p.LambdaList {
		for _, v := range lambda {
			if math32.IsNaN(v) || math32.IsInf(v, 0) {
				return errors.Errorf("non-finite entry in lambda of dataset %d", j)
			}
		}
	}
	for j, b := range p.BList {
		for _, v := range b {
			if math32.IsNaN(v) || math32.IsInf(v, 0) {
				return errors.Errorf("non-finite entry in b of dataset %d", j)
			}
		}
	}
	return nil
}

// Block selects which parameter block a SolveBlock call updates.
type Block int

const (
	BlockW Block = iota
	BlockH
	BlockLambda
	BlockB
)

func (b Block) String() string {
	switch b {
	case BlockW:
		return "W"
	case BlockH:
		return "H"
	case BlockLambda:
		return "lambda"
	case BlockB:
		return "b"
	default:
		return "unknown"
	}
}

func cloneVector(v []float32) []float32 {
	ret := make([]float32, len(v))
	copy(ret, v)
	return ret
}

func cloneMatrix(m [][]float32) [][]float32 {
	ret := make([][]float32, len(m))
	for i := range m {
		ret[i] = cloneVector(m[i])
	}
	return ret
}

func cloneMatrixList(l [][][]float32) [][][]float32 {
	ret := make([][][]float32, len(l))
	for i := range l {
		ret[i] = cloneMatrix(l[i])
	}
	return ret
}

func cloneVectorList(l [][]float32) [][]float32 {
	ret := make([][]float32, len(l))
	for i := range l {
		ret[i] = cloneVector(l[i])
	}
	return ret
}

func constantVector(size int, v float32) []float32 {
	ret := make([]float32, size)
	for i := range ret {
		ret[i] = v
	}
	return ret
}
