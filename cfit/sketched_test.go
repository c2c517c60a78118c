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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIntegrateSketchedFullSketchMatchesFullBatch(t *testing.T) {
	data, _ := newSynthetic(t, 50, []int{60, 40}, 20, 3, 0.3)
	full, err := Integrate(context.Background(), data,
		NewFitConfig(3).SetMaxIter(40).SetJobs(2).SetVerbose(0))
	assert.NoError(t, err)
	config := NewSketchConfig(3).SetSubsampleProp(1)
	config.SetMaxIter(40).SetJobs(2).SetVerbose(0)
	sketched, err := IntegrateSketched(context.Background(), data, config)
	assert.NoError(t, err)
	// with every row in the sketch the fit quality tracks the full-batch run
	assert.InEpsilon(t, full.Objective, sketched.Objective, 0.15)
}

func TestIntegrateSketchedShapes(t *testing.T) {
	data, _ := newSynthetic(t, 51, []int{30, 25}, 15, 2, 0.3)
	config := NewSketchConfig(2).SetSubsampleProp(0.5).SetMinSamples(5)
	config.SetMaxIter(20).SetVerbose(0)
	result, err := IntegrateSketched(context.Background(), data, config)
	assert.NoError(t, err)
	// loadings cover every row after the final full solve
	assert.Len(t, result.HList[0], 30)
	assert.Len(t, result.HList[1], 25)
	assertNonNegative(t, &result.Params)
	assert.Positive(t, result.Objective)
	// the result echoes the full sketch settings, not just the fit settings
	assert.NotNil(t, result.SketchConfig)
	assert.Equal(t, 0.5, result.SketchConfig.SubsampleProp)
	assert.Equal(t, 5, result.SketchConfig.MinSamples)
	assert.Equal(t, 0.005, result.SketchConfig.Mu0)
}

func TestIntegrateSketchedWeightValidation(t *testing.T) {
	data, _ := newSynthetic(t, 52, []int{10, 10}, 8, 2, 0.2)
	config := NewSketchConfig(2)
	config.SetWeights([][]float32{make([]float32, 10)})
	_, err := IntegrateSketched(context.Background(), data, config)
	assert.Error(t, err)

	config = NewSketchConfig(2)
	config.SetWeights([][]float32{make([]float32, 10), make([]float32, 7)})
	_, err = IntegrateSketched(context.Background(), data, config)
	assert.Error(t, err)
}

func TestIntegrateSketchedTimeout(t *testing.T) {
	data, _ := newSynthetic(t, 53, []int{30}, 10, 2, 0.3)
	config := NewSketchConfig(2).SetTimeout(time.Nanosecond).SetMinSamples(5)
	config.SetMaxIter(100).SetVerbose(0)
	result, err := IntegrateSketched(context.Background(), data, config)
	assert.NoError(t, err)
	assert.False(t, result.Converged)
}

func TestIntegrateSketchedLeverageWeights(t *testing.T) {
	data, _ := newSynthetic(t, 54, []int{40, 30}, 12, 2, 0.3)
	config := NewSketchConfig(2).SetLeverageRank(2).SetSubsampleProp(0.5).SetMinSamples(5)
	config.SetMaxIter(20).SetVerbose(0)
	result, err := IntegrateSketched(context.Background(), data, config)
	assert.NoError(t, err)
	assertNonNegative(t, &result.Params)
	assert.Len(t, result.HList[0], 40)
}

func TestIntegrateSketchedEarlyStopping(t *testing.T) {
	data, _ := newSynthetic(t, 55, []int{30}, 10, 2, 0.5)
	config := NewSketchConfig(2).SetEarlyStopping(2).SetSubsampleProp(0.3).SetMinSamples(5).SetMu0(0.005)
	config.SetTol(1e-15).SetMaxIter(500).SetVerbose(0)
	result, err := IntegrateSketched(context.Background(), data, config)
	assert.NoError(t, err)
	// a two-iteration stall budget trips long before the iteration cap
	assert.Less(t, result.Iterations, 500)
}
