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

package eval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorse-io/receval/base"
	"github.com/gorse-io/receval/compute"
	"github.com/gorse-io/receval/table"
)

const evalEpsilon = 1e-4

type interaction struct {
	user   string
	item   string
	rating float64
}

func newTable(t *testing.T, column string, interactions []interaction) *table.Table {
	tbl := table.New(table.DefaultSchema())
	for _, row := range interactions {
		require.NoError(t, tbl.Append(row.user, row.item, map[string]float64{column: row.rating}))
	}
	return tbl
}

func ratingFixture(t *testing.T) (*table.Table, *table.Table) {
	truth := newTable(t, "rating", []interaction{
		{"1", "a", 5}, {"1", "b", 4}, {"1", "c", 3},
		{"2", "a", 5}, {"2", "b", 5}, {"2", "c", 3},
	})
	prediction := newTable(t, "prediction", []interaction{
		{"1", "a", 4}, {"1", "b", 4}, {"1", "c", 2},
		{"2", "a", 5}, {"2", "b", 3}, {"2", "c", 3},
	})
	return truth, prediction
}

func TestRatingMetrics(t *testing.T) {
	truth, prediction := ratingFixture(t)
	for _, engine := range []compute.Engine{compute.Sequential(), compute.Partitioned(3)} {
		evaluator, err := NewRatingEvaluator(truth, prediction, WithEngine(engine))
		require.NoError(t, err)
		assert.Equal(t, 6, evaluator.Len())

		rmse, err := evaluator.RMSE(context.Background())
		require.NoError(t, err)
		assert.InDelta(t, 1.0, rmse, evalEpsilon)

		mae, err := evaluator.MAE(context.Background())
		require.NoError(t, err)
		assert.InDelta(t, 2.0/3.0, mae, evalEpsilon)

		rsquared, err := evaluator.RSquared(context.Background())
		require.NoError(t, err)
		assert.InDelta(t, -0.24138, rsquared, evalEpsilon)

		expVar, err := evaluator.ExplainedVariance(context.Background())
		require.NoError(t, err)
		assert.InDelta(t, 0.31035, expVar, evalEpsilon)
	}
}

func TestRatingIdentity(t *testing.T) {
	truth, _ := ratingFixture(t)
	// evaluate truth against itself by reading predictions from the rating
	// column
	schema := table.DefaultSchema()
	schema.Prediction = schema.Rating
	evaluator, err := NewRatingEvaluator(truth, truth, WithSchema(schema))
	require.NoError(t, err)

	rmse, err := evaluator.RMSE(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rmse)

	mae, err := evaluator.MAE(context.Background())
	require.NoError(t, err)
	assert.Zero(t, mae)

	rsquared, err := evaluator.RSquared(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, rsquared, evalEpsilon)

	expVar, err := evaluator.ExplainedVariance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, expVar, evalEpsilon)
}

func TestRatingZeroVariance(t *testing.T) {
	truth := newTable(t, "rating", []interaction{
		{"1", "a", 3}, {"1", "b", 3}, {"2", "a", 3},
	})
	exact := newTable(t, "prediction", []interaction{
		{"1", "a", 3}, {"1", "b", 3}, {"2", "a", 3},
	})
	evaluator, err := NewRatingEvaluator(truth, exact)
	require.NoError(t, err)
	rsquared, err := evaluator.RSquared(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, rsquared)
	expVar, err := evaluator.ExplainedVariance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, expVar)

	off := newTable(t, "prediction", []interaction{
		{"1", "a", 2}, {"1", "b", 3}, {"2", "a", 3},
	})
	evaluator, err = NewRatingEvaluator(truth, off)
	require.NoError(t, err)
	rsquared, err = evaluator.RSquared(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rsquared)
}

func TestRatingEmptyJoin(t *testing.T) {
	truth := newTable(t, "rating", []interaction{{"1", "a", 5}})
	prediction := newTable(t, "prediction", []interaction{{"2", "b", 5}})
	_, err := NewRatingEvaluator(truth, prediction)
	assert.True(t, base.IsEmptyJoinError(err))
}

func TestRatingSchemaErrors(t *testing.T) {
	truth := newTable(t, "rating", []interaction{{"1", "a", 5}})
	missing := newTable(t, "score", []interaction{{"1", "a", 5}})
	_, err := NewRatingEvaluator(truth, missing)
	assert.True(t, base.IsSchemaError(err))

	duplicated := table.New(table.DefaultSchema())
	require.NoError(t, duplicated.Append("1", "a", map[string]float64{"prediction": 5}))
	require.NoError(t, duplicated.Append("1", "a", map[string]float64{"prediction": 4}))
	_, err = NewRatingEvaluator(truth, duplicated)
	assert.True(t, base.IsSchemaError(err))
}

func TestRatingInvalidConfig(t *testing.T) {
	truth, prediction := ratingFixture(t)
	_, err := NewRatingEvaluator(truth, prediction, WithK(0))
	assert.True(t, base.IsConfigurationError(err))
}
