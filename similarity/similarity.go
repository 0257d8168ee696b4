// Copyright 2025 gorse Project Authors
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

// Package similarity computes sparse symmetric item-item similarity matrices.
// Two interchangeable strategies exist: co-occurrence over historical
// interactions and cosine over item feature vectors. Both produce the same
// matrix type with values in [0, 1], so aggregation code built on top never
// branches on the strategy.
package similarity

import (
	"context"

	"github.com/gorse-io/receval/compute"
	"github.com/gorse-io/receval/table"
)

// Strategy computes an item-item similarity matrix. historical carries the
// training interactions; features is only consulted by feature-vector
// strategies and may be nil otherwise.
type Strategy interface {
	Compute(ctx context.Context, historical *table.Table, features *table.FeatureTable, engine compute.Engine) (*Matrix, error)
}

// Matrix is a sparse symmetric mapping (item, item) -> similarity in [0, 1].
// Self-similarity is 1 by definition. Pairs without an entry have zero
// similarity.
type Matrix struct {
	dict *table.Dict
	data map[uint64]float64
}

func newMatrix(dict *table.Dict) *Matrix {
	return &Matrix{dict: dict, data: make(map[uint64]float64)}
}

func pairKey(i, j int32) uint64 {
	if i > j {
		i, j = j, i
	}
	return uint64(uint32(i))<<32 | uint64(uint32(j))
}

func (m *Matrix) put(i, j int32, similarity float64) {
	if i == j {
		return
	}
	m.data[pairKey(i, j)] = similarity
}

// Contains reports whether the matrix carries similarity information for an
// item. Items outside the matrix universe must be excluded from
// similarity-dependent aggregates.
func (m *Matrix) Contains(item string) bool {
	_, ok := m.dict.Lookup(item)
	return ok
}

// Get returns the similarity of two items. Both items must be contained in
// the matrix; unknown pairs of known items have zero similarity.
func (m *Matrix) Get(i, j string) float64 {
	a, ok := m.dict.Lookup(i)
	if !ok {
		return 0
	}
	b, ok := m.dict.Lookup(j)
	if !ok {
		return 0
	}
	if a == b {
		return 1
	}
	return m.data[pairKey(a, b)]
}

// Count returns the number of items in the matrix universe.
func (m *Matrix) Count() int {
	return m.dict.Count()
}

// Pairs returns the number of stored non-zero off-diagonal pairs.
func (m *Matrix) Pairs() int {
	return len(m.data)
}
