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
	"math"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"

	"github.com/gorse-io/receval/compute"
	"github.com/gorse-io/receval/table"
)

// RankingEvaluator computes top-k ranking quality metrics. Per-user scores
// are averaged over truth users with non-empty relevant sets; users without
// predictions contribute zero, users without relevant items are excluded.
type RankingEvaluator struct {
	config    Config
	relevancy *relevancy
}

// scorer computes one user's score from its relevant set and its full ranked
// prediction list.
type scorer func(relevant mapset.Set[string], ranked []string, k int) float64

// NewRankingEvaluator resolves relevancy eagerly and validates both tables.
func NewRankingEvaluator(truth, prediction *table.Table, opts ...Option) (*RankingEvaluator, error) {
	config := NewConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if err := truth.RequireColumns(config.Schema.Rating); err != nil {
		return nil, errors.Trace(err)
	}
	if err := prediction.RequireColumns(config.Schema.Prediction); err != nil {
		return nil, errors.Trace(err)
	}
	if err := truth.CheckDuplicates(); err != nil {
		return nil, errors.Trace(err)
	}
	if err := prediction.CheckDuplicates(); err != nil {
		return nil, errors.Trace(err)
	}
	resolved, err := resolveRelevancy(context.Background(), truth, prediction, &config)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &RankingEvaluator{config: config, relevancy: resolved}, nil
}

// mean averages a per-user score over all users with non-empty relevant sets.
func (e *RankingEvaluator) mean(ctx context.Context, score scorer) (float64, error) {
	users := e.relevancy.users
	sum, err := compute.Sum(ctx, e.config.Engine, len(users), func(i int) float64 {
		user := users[i]
		return score(e.relevancy.relevantByUser[user], e.relevancy.rankedByUser[user], e.config.K)
	})
	if err != nil {
		return 0, errors.Trace(err)
	}
	if len(users) == 0 {
		return 0, nil
	}
	return sum / float64(len(users)), nil
}

// perUser evaluates a score for every user with a non-empty relevant set.
func (e *RankingEvaluator) perUser(ctx context.Context, score scorer) (map[string]float64, error) {
	users := e.relevancy.users
	result := make(map[string]float64, len(users))
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return nil, errors.Trace(err)
		}
		result[user] = score(e.relevancy.relevantByUser[user], e.relevancy.rankedByUser[user], e.config.K)
	}
	return result, nil
}

func hits(relevant mapset.Set[string], ranked []string) int {
	count := 0
	for _, item := range ranked {
		if relevant.Contains(item) {
			count++
		}
	}
	return count
}

// precisionAtK divides hits within the top-k window by k. A user whose truth
// catalog is smaller than k therefore cannot reach precision 1: with 3 rated
// items the maximum precision@5 is 3/5.
func precisionAtK(relevant mapset.Set[string], ranked []string, k int) float64 {
	found := hits(relevant, ranked[:min(k, len(ranked))])
	return float64(found) / float64(k)
}

func recallAtK(relevant mapset.Set[string], ranked []string, k int) float64 {
	found := hits(relevant, ranked[:min(k, len(ranked))])
	return float64(found) / float64(relevant.Cardinality())
}

// ndcgAtK uses binary relevance gain with the standard log2 position
// discount. The ideal DCG front-loads all relevant items, capped at k.
func ndcgAtK(relevant mapset.Set[string], ranked []string, k int) float64 {
	idcg := 0.0
	for i := 0; i < min(relevant.Cardinality(), k); i++ {
		idcg += 1.0 / math.Log2(float64(i)+2.0)
	}
	dcg := 0.0
	for i, item := range ranked[:min(k, len(ranked))] {
		if relevant.Contains(item) {
			dcg += 1.0 / math.Log2(float64(i)+2.0)
		}
	}
	return dcg / idcg
}

// averagePrecision is the mean of precision@j over the positions j where the
// j-th ranked item is relevant, zero when no ranked item is relevant.
func averagePrecision(relevant mapset.Set[string], ranked []string) float64 {
	sumPrecision := 0.0
	found := 0
	for i, item := range ranked {
		if relevant.Contains(item) {
			found++
			sumPrecision += float64(found) / float64(i+1)
		}
	}
	if found == 0 {
		return 0
	}
	return sumPrecision / float64(found)
}

func mapAtK(relevant mapset.Set[string], ranked []string, k int) float64 {
	return averagePrecision(relevant, ranked[:min(k, len(ranked))])
}

func mapFull(relevant mapset.Set[string], ranked []string, _ int) float64 {
	return averagePrecision(relevant, ranked)
}

// PrecisionAtK is the mean per-user precision at k.
func (e *RankingEvaluator) PrecisionAtK(ctx context.Context) (float64, error) {
	return e.mean(ctx, precisionAtK)
}

// RecallAtK is the mean per-user recall at k.
func (e *RankingEvaluator) RecallAtK(ctx context.Context) (float64, error) {
	return e.mean(ctx, recallAtK)
}

// NDCGAtK is the mean per-user normalized discounted cumulative gain at k.
func (e *RankingEvaluator) NDCGAtK(ctx context.Context) (float64, error) {
	return e.mean(ctx, ndcgAtK)
}

// MAPAtK is the mean average precision restricted to the top-k window.
func (e *RankingEvaluator) MAPAtK(ctx context.Context) (float64, error) {
	return e.mean(ctx, mapAtK)
}

// MAP is the mean average precision over the entire ranked prediction list.
// This is a distinct metric from MAPAtK.
func (e *RankingEvaluator) MAP(ctx context.Context) (float64, error) {
	return e.mean(ctx, mapFull)
}

// PerUserPrecisionAtK returns precision at k for each user with a non-empty
// relevant set.
func (e *RankingEvaluator) PerUserPrecisionAtK(ctx context.Context) (map[string]float64, error) {
	return e.perUser(ctx, precisionAtK)
}

// PerUserRecallAtK returns recall at k for each user with a non-empty
// relevant set.
func (e *RankingEvaluator) PerUserRecallAtK(ctx context.Context) (map[string]float64, error) {
	return e.perUser(ctx, recallAtK)
}

// PerUserNDCGAtK returns NDCG at k for each user with a non-empty relevant
// set.
func (e *RankingEvaluator) PerUserNDCGAtK(ctx context.Context) (map[string]float64, error) {
	return e.perUser(ctx, ndcgAtK)
}
