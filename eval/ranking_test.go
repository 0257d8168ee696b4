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
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorse-io/receval/base"
	"github.com/gorse-io/receval/compute"
	"github.com/gorse-io/receval/table"
)

// identitySchema reads predictions from the rating column so that a truth
// table can be evaluated against itself.
func identitySchema() table.Schema {
	schema := table.DefaultSchema()
	schema.Prediction = schema.Rating
	return schema
}

func TestRankingIdentity(t *testing.T) {
	// truth = {(1,1,5),(1,2,4),(1,3,3)}, prediction identical
	truth := newTable(t, "rating", []interaction{
		{"1", "1", 5}, {"1", "2", 4}, {"1", "3", 3},
	})
	evaluator, err := NewRankingEvaluator(truth, truth, WithK(3), WithSchema(identitySchema()))
	require.NoError(t, err)

	precision, err := evaluator.PrecisionAtK(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, precision, evalEpsilon)

	recall, err := evaluator.RecallAtK(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, recall, evalEpsilon)

	ndcg, err := evaluator.NDCGAtK(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, ndcg, evalEpsilon)

	mapAtK, err := evaluator.MAPAtK(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, mapAtK, evalEpsilon)

	meanAveragePrecision, err := evaluator.MAP(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, meanAveragePrecision, evalEpsilon)
}

func TestPrecisionNormalization(t *testing.T) {
	// a user with 3 truth items reaches precision 1 at k=3 but at most 3/5
	// at k=5
	single := newTable(t, "rating", []interaction{
		{"1", "1", 5}, {"1", "2", 4}, {"1", "3", 3},
	})
	evaluator, err := NewRankingEvaluator(single, single, WithK(3), WithSchema(identitySchema()))
	require.NoError(t, err)
	precision, err := evaluator.PrecisionAtK(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, precision, evalEpsilon)

	evaluator, err = NewRankingEvaluator(single, single, WithK(5), WithSchema(identitySchema()))
	require.NoError(t, err)
	precision, err = evaluator.PrecisionAtK(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.6, precision, evalEpsilon)

	same := newTable(t, "rating", []interaction{
		{"1", "1", 5}, {"1", "2", 4}, {"1", "3", 3},
		{"2", "1", 5}, {"2", "2", 5}, {"2", "3", 3},
	})
	evaluator, err = NewRankingEvaluator(same, same, WithK(3), WithSchema(identitySchema()))
	require.NoError(t, err)
	precision, err = evaluator.PrecisionAtK(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, precision, evalEpsilon)
}

func TestRankingScenario(t *testing.T) {
	truth := newTable(t, "rating", []interaction{
		{"1", "a", 5}, {"1", "b", 4}, {"1", "c", 3},
		{"2", "a", 5}, {"2", "b", 5},
	})
	// user 1 is recommended one relevant item at rank 1 and one irrelevant
	// item; user 2 is recommended both relevant items in reverse order
	prediction := newTable(t, "prediction", []interaction{
		{"1", "a", 10}, {"1", "z", 9},
		{"2", "b", 10}, {"2", "a", 9},
	})
	evaluator, err := NewRankingEvaluator(truth, prediction, WithK(2))
	require.NoError(t, err)

	// user 1: hits=1 -> 1/2; user 2: hits=2 -> 2/2
	precision, err := evaluator.PrecisionAtK(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.75, precision, evalEpsilon)

	// user 1: 1/2 of the relevant pair {a, b}; user 2: 2/2
	recall, err := evaluator.RecallAtK(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.75, recall, evalEpsilon)

	// user 1: dcg=1, idcg=1+1/log2(3); user 2: perfect
	ndcg, err := evaluator.NDCGAtK(context.Background())
	require.NoError(t, err)
	expectedUser1 := 1.0 / (1.0 + 0.6309297535714575)
	assert.InDelta(t, (expectedUser1+1.0)/2, ndcg, evalEpsilon)

	// both users rank relevant items first: average precision 1 each
	mapAtK, err := evaluator.MAPAtK(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, mapAtK, evalEpsilon)
}

func TestMAPDistinctFromMAPAtK(t *testing.T) {
	truth := newTable(t, "rating", []interaction{
		{"1", "a", 5}, {"1", "b", 4},
	})
	// the second relevant item sits outside the top-1 window
	prediction := newTable(t, "prediction", []interaction{
		{"1", "a", 10}, {"1", "x", 9}, {"1", "b", 8},
	})
	// threshold relevancy keeps both truth items relevant regardless of k
	evaluator, err := NewRankingEvaluator(truth, prediction, WithK(1),
		WithRelevancyMethod(ByThreshold), WithThreshold(4))
	require.NoError(t, err)

	mapAtK, err := evaluator.MAPAtK(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, mapAtK, evalEpsilon)

	// full list: precision@1 = 1, precision@3 = 2/3 -> mean = 5/6
	meanAveragePrecision, err := evaluator.MAP(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 5.0/6.0, meanAveragePrecision, evalEpsilon)
}

func TestByThresholdRelevancy(t *testing.T) {
	truth := newTable(t, "rating", []interaction{
		{"1", "a", 5}, {"1", "b", 4}, {"1", "c", 3},
	})
	prediction := newTable(t, "prediction", []interaction{
		{"1", "a", 10}, {"1", "b", 9}, {"1", "c", 8},
	})
	// threshold 3.5 keeps {a, b}
	evaluator, err := NewRankingEvaluator(truth, prediction, WithK(2),
		WithRelevancyMethod(ByThreshold), WithThreshold(3.5))
	require.NoError(t, err)
	recall, err := evaluator.RecallAtK(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, recall, evalEpsilon)

	// a threshold above every rating empties all relevancy sets: the user is
	// excluded and aggregates fall back to zero
	evaluator, err = NewRankingEvaluator(truth, prediction, WithK(2),
		WithRelevancyMethod(ByThreshold), WithThreshold(100))
	require.NoError(t, err)
	precision, err := evaluator.PrecisionAtK(context.Background())
	require.NoError(t, err)
	assert.Zero(t, precision)
}

func TestUserWithoutPredictions(t *testing.T) {
	truth := newTable(t, "rating", []interaction{
		{"1", "a", 5}, {"2", "a", 5},
	})
	prediction := newTable(t, "prediction", []interaction{
		{"1", "a", 10},
	})
	evaluator, err := NewRankingEvaluator(truth, prediction, WithK(1))
	require.NoError(t, err)
	// user 2 has a relevant set but no recommendations: contributes zero
	precision, err := evaluator.PrecisionAtK(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.5, precision, evalEpsilon)
}

func TestPerUserMetrics(t *testing.T) {
	truth := newTable(t, "rating", []interaction{
		{"1", "a", 5}, {"2", "b", 5},
	})
	prediction := newTable(t, "prediction", []interaction{
		{"1", "a", 10}, {"2", "c", 10},
	})
	evaluator, err := NewRankingEvaluator(truth, prediction, WithK(1))
	require.NoError(t, err)
	perUser, err := evaluator.PerUserPrecisionAtK(context.Background())
	require.NoError(t, err)
	assert.Len(t, perUser, 2)
	assert.InDelta(t, 1.0, perUser["1"], evalEpsilon)
	assert.Zero(t, perUser["2"])
}

// randomRankingFixture builds a reproducible multi-user dataset with partial
// overlap between truth and prediction.
func randomRankingFixture(t *testing.T) (*table.Table, *table.Table) {
	rng := rand.New(rand.NewSource(7))
	truth := table.New(table.DefaultSchema())
	prediction := table.New(table.DefaultSchema())
	for u := 0; u < 25; u++ {
		user := fmt.Sprintf("u%d", u)
		for i := 0; i < 50; i++ {
			item := fmt.Sprintf("i%d", i)
			if rng.Float64() < 0.3 {
				require.NoError(t, truth.Append(user, item, map[string]float64{"rating": float64(rng.Intn(5) + 1)}))
			}
			if rng.Float64() < 0.3 {
				require.NoError(t, prediction.Append(user, item, map[string]float64{"prediction": rng.Float64() * 5}))
			}
		}
	}
	return truth, prediction
}

// TestCrossPathEquivalence checks the first-class contract that the
// sequential and the partitioned execution paths agree within 1e-4 absolute
// tolerance on every ranking metric.
func TestCrossPathEquivalence(t *testing.T) {
	truth, prediction := randomRankingFixture(t)
	for _, k := range []int{1, 3, 10} {
		sequential, err := NewRankingEvaluator(truth, prediction, WithK(k))
		require.NoError(t, err)
		partitioned, err := NewRankingEvaluator(truth, prediction, WithK(k), WithEngine(compute.Partitioned(4)))
		require.NoError(t, err)
		metrics := []func(*RankingEvaluator, context.Context) (float64, error){
			(*RankingEvaluator).PrecisionAtK,
			(*RankingEvaluator).RecallAtK,
			(*RankingEvaluator).NDCGAtK,
			(*RankingEvaluator).MAPAtK,
			(*RankingEvaluator).MAP,
		}
		for _, metric := range metrics {
			expected, err := metric(sequential, context.Background())
			require.NoError(t, err)
			actual, err := metric(partitioned, context.Background())
			require.NoError(t, err)
			assert.InDelta(t, expected, actual, evalEpsilon)
		}
	}
}

func TestRankingInvalidConfig(t *testing.T) {
	truth := newTable(t, "rating", []interaction{{"1", "a", 5}})
	prediction := newTable(t, "prediction", []interaction{{"1", "a", 5}})
	_, err := NewRankingEvaluator(truth, prediction, WithK(0))
	assert.True(t, base.IsConfigurationError(err))
	_, err = NewRankingEvaluator(truth, prediction, WithRelevancyMethod(ByThreshold))
	assert.True(t, base.IsConfigurationError(err))
}

func TestStableTieBreak(t *testing.T) {
	// both predictions carry the same score: original row order decides
	truth := newTable(t, "rating", []interaction{
		{"1", "a", 5}, {"1", "b", 5},
	})
	prediction := newTable(t, "prediction", []interaction{
		{"1", "b", 7}, {"1", "a", 7},
	})
	evaluator, err := NewRankingEvaluator(truth, prediction, WithK(1))
	require.NoError(t, err)
	perUser, err := evaluator.PerUserRecallAtK(context.Background())
	require.NoError(t, err)
	// relevancy keeps the first k by rating with stable ties: {a} at k=1;
	// the ranked list starts with b, so recall@1 = 0
	assert.Zero(t, perUser["1"])
}
