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

	"github.com/chewxy/math32"
	"github.com/juju/errors"

	"github.com/gorse-io/receval/base"
	"github.com/gorse-io/receval/compute"
	"github.com/gorse-io/receval/table"
)

// FeatureVector derives item similarity from the cosine of item feature
// vectors. Negative cosine values are floored at zero since similarity does
// not express opposition. The matrix universe is the feature table: items
// without features are excluded from similarity-dependent aggregates.
type FeatureVector struct{}

func (FeatureVector) Compute(ctx context.Context, _ *table.Table, features *table.FeatureTable, engine compute.Engine) (*Matrix, error) {
	if features == nil {
		return nil, base.ConfigurationErrorf("feature-vector similarity requires an item feature table")
	}
	n := features.Count()
	matrix := newMatrix(features.Dict())
	pairs, err := compute.Reduce(ctx, engine, n,
		func() map[uint64]float64 { return make(map[uint64]float64) },
		func(acc map[uint64]float64, i int) map[uint64]float64 {
			a := features.VectorByIndex(int32(i))
			for j := i + 1; j < n; j++ {
				if similarity := cosine(a, features.VectorByIndex(int32(j))); similarity > 0 {
					acc[pairKey(int32(i), int32(j))] = similarity
				}
			}
			return acc
		},
		func(a, b map[uint64]float64) map[uint64]float64 {
			for k, v := range b {
				a[k] = v
			}
			return a
		})
	if err != nil {
		return nil, errors.Trace(err)
	}
	matrix.data = pairs
	return matrix, nil
}

// cosine returns the cosine similarity of two vectors clipped to [0, 1].
func cosine(a, b []float32) float64 {
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	similarity := dot / (math32.Sqrt(normA) * math32.Sqrt(normB))
	if similarity < 0 {
		return 0
	}
	return float64(similarity)
}
