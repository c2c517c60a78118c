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

// Package cfit integrates gene-expression datasets from multiple batches,
// technologies or studies into a shared non-negative low-dimensional
// representation, and transfers that representation onto new datasets.
//
// The model factorizes each dataset X_j as H_j W^T with a per-gene
// multiplicative scaling lambda_j and additive shift b_j correcting batch
// effects, fitted by block coordinate descent with exact non-negative
// least squares subproblems. Integrate fits on full data; IntegrateSketched
// fits on per-iteration row sketches with stochastic-proximal-point
// regularization for large collections; Transfer projects a new dataset onto
// a fixed, previously learned W.
package cfit
