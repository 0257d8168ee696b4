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

package similarity

import (
	"context"

	"github.com/juju/errors"
	"github.com/samber/lo"

	"github.com/gorse-io/receval/base"
	"github.com/gorse-io/receval/compute"
	"github.com/gorse-io/receval/table"
)

// Normalization rescales raw co-occurrence counts into [0, 1].
type Normalization string

const (
	// Jaccard divides the co-occurrence count by the size of the union:
	// co / (count_i + count_j - co).
	Jaccard Normalization = "jaccard"
	// Lift divides the co-occurrence count by the product of the item
	// counts: co / (count_i * count_j). Since co never exceeds either count,
	// the ratio stays within [0, 1].
	Lift Normalization = "lift"
	// Count divides the co-occurrence count by the largest observed
	// co-occurrence count.
	Count Normalization = "count"
)

// CoOccurrence derives item similarity from how often two items are
// interacted with by the same users in the historical interactions.
type CoOccurrence struct {
	Normalization Normalization
}

func (s CoOccurrence) Compute(ctx context.Context, historical *table.Table, _ *table.FeatureTable, engine compute.Engine) (*Matrix, error) {
	switch s.Normalization {
	case Jaccard, Lift, Count:
	default:
		return nil, base.ConfigurationErrorf("unknown co-occurrence normalization %q", s.Normalization)
	}
	// collect the items of each user
	itemsByUser, err := compute.GroupReduce(ctx, engine, historical.Len(),
		func(row int) int32 { return historical.UserIndex(row) },
		func() []int32 { return nil },
		func(items []int32, row int) []int32 { return append(items, historical.ItemIndex(row)) },
		func(a, b []int32) []int32 { return append(a, b...) })
	if err != nil {
		return nil, errors.Trace(err)
	}
	// count users interacting with both items of each pair
	users := lo.Values(itemsByUser)
	co, err := compute.Reduce(ctx, engine, len(users),
		func() map[uint64]int { return make(map[uint64]int) },
		func(acc map[uint64]int, u int) map[uint64]int {
			items := users[u]
			for i := 0; i < len(items); i++ {
				for j := i + 1; j < len(items); j++ {
					if items[i] != items[j] {
						acc[pairKey(items[i], items[j])]++
					}
				}
			}
			return acc
		},
		func(a, b map[uint64]int) map[uint64]int {
			for k, v := range b {
				a[k] += v
			}
			return a
		})
	if err != nil {
		return nil, errors.Trace(err)
	}
	maxCo := 0
	for _, v := range co {
		maxCo = max(maxCo, v)
	}
	matrix := newMatrix(historical.ItemDict())
	for key, v := range co {
		i, j := int32(key>>32), int32(uint32(key))
		countI, countJ := historical.ItemFreq(i), historical.ItemFreq(j)
		var similarity float64
		switch s.Normalization {
		case Jaccard:
			similarity = float64(v) / float64(countI+countJ-v)
		case Lift:
			similarity = float64(v) / (float64(countI) * float64(countJ))
		case Count:
			similarity = float64(v) / float64(maxCo)
		}
		matrix.put(i, j, similarity)
	}
	return matrix, nil
}
