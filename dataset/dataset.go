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

// Package dataset holds gene-aligned expression matrices. Each matrix has
// samples in rows and genes in columns. Before fitting, all matrices of a
// collection must be re-indexed to a shared ordered gene set via Align.
package dataset

import (
	"github.com/cfit-io/cfit/base/log"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// MinSharedGenes is the floor below which the shared gene set of a collection
// is considered suspiciously small.
const MinSharedGenes = 30

// ErrNoCommonGenes is returned by Align when the matrices share no genes.
var ErrNoCommonGenes = errors.New("datasets share no common genes")

// Matrix is a dense non-negative expression matrix. Rows are optional sample
// identifiers, Genes are column identifiers shared across a collection after
// alignment.
type Matrix struct {
	Values [][]float32
	Rows   []string
	Genes  []string
}

// NewMatrix creates a Matrix and validates its shape. rows may be nil.
func NewMatrix(values [][]float32, rows, genes []string) (*Matrix, error) {
	if len(values) == 0 {
		return nil, errors.New("matrix has no rows")
	}
	for i := range values {
		if len(values[i]) != len(genes) {
			return nil, errors.Errorf("row %d has %d values, want %d", i, len(values[i]), len(genes))
		}
	}
	if rows != nil && len(rows) != len(values) {
		return nil, errors.Errorf("got %d row names for %d rows", len(rows), len(values))
	}
	return &Matrix{Values: values, Rows: rows, Genes: genes}, nil
}

// NumRows returns the number of samples.
func (m *Matrix) NumRows() int {
	return len(m.Values)
}

// NumGenes returns the number of genes.
func (m *Matrix) NumGenes() int {
	return len(m.Genes)
}

// SubsetRows returns a matrix restricted to the given row indices. Values
// share backing slices with the receiver.
func (m *Matrix) SubsetRows(indices []int) *Matrix {
	values := make([][]float32, len(indices))
	var rows []string
	if m.Rows != nil {
		rows = make([]string, len(indices))
	}
	for i, idx := range indices {
		values[i] = m.Values[idx]
		if rows != nil {
			rows[i] = m.Rows[idx]
		}
	}
	return &Matrix{Values: values, Rows: rows, Genes: m.Genes}
}

// Align intersects the gene sets of all matrices, in the gene order of the
// first matrix, and returns copies of the matrices re-indexed to the shared
// gene set. It fails when no genes are shared and warns when the shared set
// is smaller than both MinSharedGenes and the dataset count.
func Align(matrices []*Matrix) ([]*Matrix, []string, error) {
	if len(matrices) == 0 {
		return nil, nil, errors.New("empty dataset collection")
	}
	indexes := make([]map[string]int, len(matrices))
	for j, m := range matrices {
		indexes[j] = geneIndex(m)
	}
	shared := make([]string, 0, matrices[0].NumGenes())
	for _, gene := range matrices[0].Genes {
		found := true
		for j := 1; j < len(matrices); j++ {
			if _, ok := indexes[j][gene]; !ok {
				found = false
				break
			}
		}
		if found {
			shared = append(shared, gene)
		}
	}
	if len(shared) == 0 {
		return nil, nil, errors.Trace(ErrNoCommonGenes)
	}
	if len(shared) < MinSharedGenes && len(shared) < len(matrices) {
		log.Logger().Warn("few genes shared across datasets",
			zap.Int("num_shared_genes", len(shared)),
			zap.Int("num_datasets", len(matrices)))
	}
	aligned := make([]*Matrix, len(matrices))
	for j, m := range matrices {
		index := indexes[j]
		values := make([][]float32, m.NumRows())
		for i := range values {
			values[i] = make([]float32, len(shared))
			for l, gene := range shared {
				values[i][l] = m.Values[i][index[gene]]
			}
		}
		aligned[j] = &Matrix{Values: values, Rows: m.Rows, Genes: shared}
	}
	return aligned, shared, nil
}

func geneIndex(m *Matrix) map[string]int {
	index := make(map[string]int, len(m.Genes))
	for i, gene := range m.Genes {
		index[gene] = i
	}
	return index
}
