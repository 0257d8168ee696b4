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
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/gorse-io/receval/base"
	"github.com/gorse-io/receval/base/log"
	"github.com/gorse-io/receval/compute"
	"github.com/gorse-io/receval/similarity"
	"github.com/gorse-io/receval/table"
)

// DiversityEvaluator computes beyond-accuracy metrics over historical
// (training) interactions and recommendations: catalog and distributional
// coverage, novelty, intra-list diversity and serendipity. The item
// similarity matrix is computed at most once per evaluator instance and
// reused for its lifetime.
type DiversityEvaluator struct {
	config   Config
	train    *table.Table
	reco     *table.Table
	features *table.FeatureTable

	once    sync.Once
	matrix  *similarity.Matrix
	matErr  error
	dropped int
}

// UserItemScore is one per-(user, item) metric value.
type UserItemScore struct {
	User  string
	Item  string
	Value float64
}

// NewDiversityEvaluator validates inputs eagerly. The feature table may be
// nil unless the feature-vector similarity strategy is configured.
func NewDiversityEvaluator(train, reco *table.Table, features *table.FeatureTable, opts ...Option) (*DiversityEvaluator, error) {
	config := NewConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.SimilarityStrategy == ItemFeatureVector && features == nil {
		return nil, base.ConfigurationErrorf("similarity strategy %q requires an item feature table", ItemFeatureVector)
	}
	if err := train.CheckDuplicates(); err != nil {
		return nil, errors.Trace(err)
	}
	if err := reco.CheckDuplicates(); err != nil {
		return nil, errors.Trace(err)
	}
	if train.Len() == 0 {
		return nil, base.EmptyJoinErrorf("training interactions are empty")
	}
	if reco.Len() == 0 {
		return nil, base.EmptyJoinErrorf("recommendations are empty")
	}
	return &DiversityEvaluator{
		config:   config,
		train:    train,
		reco:     reco,
		features: features,
	}, nil
}

// similarityMatrix builds the matrix on first use and memoizes it together
// with the count of items lacking similarity information.
func (e *DiversityEvaluator) similarityMatrix(ctx context.Context) (*similarity.Matrix, error) {
	e.once.Do(func() {
		e.matrix, e.matErr = e.config.strategy().Compute(ctx, e.train, e.features, e.config.Engine)
		if e.matErr != nil {
			return
		}
		missing := mapset.NewThreadUnsafeSet[string]()
		for _, item := range e.reco.Items() {
			if !e.matrix.Contains(item) {
				missing.Add(item)
			}
		}
		for _, item := range e.train.Items() {
			if !e.matrix.Contains(item) {
				missing.Add(item)
			}
		}
		e.dropped = missing.Cardinality()
		if e.dropped > 0 {
			log.Logger().Warn("items without similarity information excluded from aggregates",
				zap.Int("dropped", e.dropped),
				zap.String("strategy", string(e.config.SimilarityStrategy)))
		}
	})
	return e.matrix, errors.Trace(e.matErr)
}

// DroppedItems returns how many distinct items of the recommendation and
// training tables carry no similarity information and are therefore excluded
// from similarity-dependent aggregates.
func (e *DiversityEvaluator) DroppedItems(ctx context.Context) (int, error) {
	if _, err := e.similarityMatrix(ctx); err != nil {
		return 0, errors.Trace(err)
	}
	return e.dropped, nil
}

// CatalogCoverage is the fraction of the training catalog that appears in at
// least one recommendation.
func (e *DiversityEvaluator) CatalogCoverage(ctx context.Context) (float64, error) {
	recommended, err := compute.Reduce(ctx, e.config.Engine, e.reco.Len(),
		func() mapset.Set[string] { return mapset.NewThreadUnsafeSet[string]() },
		func(acc mapset.Set[string], row int) mapset.Set[string] {
			item := e.reco.ItemId(e.reco.ItemIndex(row))
			if _, ok := e.train.LookupItem(item); ok {
				acc.Add(item)
			}
			return acc
		},
		func(a, b mapset.Set[string]) mapset.Set[string] { return a.Union(b) })
	if err != nil {
		return 0, errors.Trace(err)
	}
	return float64(recommended.Cardinality()) / float64(e.train.CountItems()), nil
}

// recommendationCounts counts, per item of the training catalog, how often it
// was recommended. Recommended items outside the training catalog are
// excluded: coverage and novelty are computed over the training catalog.
func (e *DiversityEvaluator) recommendationCounts(ctx context.Context) (map[string]float64, float64, error) {
	counts, err := compute.GroupReduce(ctx, e.config.Engine, e.reco.Len(),
		func(row int) string { return e.reco.ItemId(e.reco.ItemIndex(row)) },
		func() float64 { return 0 },
		func(acc float64, _ int) float64 { return acc + 1 },
		func(a, b float64) float64 { return a + b })
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	total := 0.0
	outside := 0
	for item := range counts {
		if _, ok := e.train.LookupItem(item); !ok {
			outside++
			delete(counts, item)
			continue
		}
		total += counts[item]
	}
	if outside > 0 {
		log.Logger().Warn("recommended items outside the training catalog excluded from coverage and novelty",
			zap.Int("items", outside))
	}
	return counts, total, nil
}

// DistributionalCoverage is the Shannon entropy, in bits, of the
// recommendation frequency distribution over the training catalog.
func (e *DiversityEvaluator) DistributionalCoverage(ctx context.Context) (float64, error) {
	counts, total, err := e.recommendationCounts(ctx)
	if err != nil {
		return 0, errors.Trace(err)
	}
	if total == 0 {
		return 0, base.EmptyJoinErrorf("no recommended item appears in the training catalog")
	}
	distribution := make([]float64, 0, len(counts))
	for _, item := range e.reco.Items() {
		if count, ok := counts[item]; ok {
			distribution = append(distribution, count)
		}
	}
	floats.Scale(1/total, distribution)
	return stat.Entropy(distribution) / math.Ln2, nil
}

// HistoricalItemNovelty returns, per training item, -log2 of its interaction
// probability. A single-item catalog has novelty zero, not an undefined
// value.
func (e *DiversityEvaluator) HistoricalItemNovelty(ctx context.Context) (map[string]float64, error) {
	total := float64(e.train.Len())
	result := make(map[string]float64, e.train.CountItems())
	for _, item := range e.train.Items() {
		if err := ctx.Err(); err != nil {
			return nil, errors.Trace(err)
		}
		index, _ := e.train.LookupItem(item)
		result[item] = -math.Log2(float64(e.train.ItemFreq(index)) / total)
	}
	return result, nil
}

// Novelty is the recommendation-frequency-weighted mean of historical item
// novelty over recommended items.
func (e *DiversityEvaluator) Novelty(ctx context.Context) (float64, error) {
	novelty, err := e.HistoricalItemNovelty(ctx)
	if err != nil {
		return 0, errors.Trace(err)
	}
	counts, total, err := e.recommendationCounts(ctx)
	if err != nil {
		return 0, errors.Trace(err)
	}
	if total == 0 {
		return 0, base.EmptyJoinErrorf("no recommended item appears in the training catalog")
	}
	sum := 0.0
	for item, count := range counts {
		sum += count * novelty[item]
	}
	return sum / total, nil
}

// recoRowsByUser groups recommendation rows per user identifier, preserving
// original row order.
func (e *DiversityEvaluator) recoRowsByUser(ctx context.Context) (map[string][]int, error) {
	return compute.GroupReduce(ctx, e.config.Engine, e.reco.Len(),
		func(row int) string { return e.reco.UserId(e.reco.UserIndex(row)) },
		func() []int { return nil },
		func(rows []int, row int) []int { return append(rows, row) },
		func(a, b []int) []int { return append(a, b...) })
}

// trainItemsByUser groups historical item identifiers per user identifier.
func (e *DiversityEvaluator) trainItemsByUser(ctx context.Context) (map[string][]string, error) {
	return compute.GroupReduce(ctx, e.config.Engine, e.train.Len(),
		func(row int) string { return e.train.UserId(e.train.UserIndex(row)) },
		func() []string { return nil },
		func(items []string, row int) []string {
			return append(items, e.train.ItemId(e.train.ItemIndex(row)))
		},
		func(a, b []string) []string { return append(a, b...) })
}

// UserDiversity returns, per user, one minus the mean pairwise similarity of
// the user's recommended items. Users with fewer than two items carrying
// similarity information are excluded.
func (e *DiversityEvaluator) UserDiversity(ctx context.Context) (map[string]float64, error) {
	matrix, err := e.similarityMatrix(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	rowsByUser, err := e.recoRowsByUser(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	result := make(map[string]float64, len(rowsByUser))
	for user, rows := range rowsByUser {
		items := make([]string, 0, len(rows))
		for _, row := range rows {
			if item := e.reco.ItemId(e.reco.ItemIndex(row)); matrix.Contains(item) {
				items = append(items, item)
			}
		}
		if len(items) < 2 {
			continue
		}
		sum, pairs := 0.0, 0
		for i := 0; i < len(items); i++ {
			for j := i + 1; j < len(items); j++ {
				sum += matrix.Get(items[i], items[j])
				pairs++
			}
		}
		result[user] = 1 - sum/float64(pairs)
	}
	return result, nil
}

// Diversity is the mean of per-user diversity over users with at least two
// recommended items. By convention it is zero when the data is restricted to
// a single item.
func (e *DiversityEvaluator) Diversity(ctx context.Context) (float64, error) {
	perUser, err := e.UserDiversity(ctx)
	if err != nil {
		return 0, errors.Trace(err)
	}
	if len(perUser) == 0 {
		if e.reco.CountItems() <= 1 {
			return 0, nil
		}
		return 0, base.EmptyJoinErrorf("no user has two or more recommended items with similarity information")
	}
	sum := 0.0
	count := 0
	for _, user := range e.reco.Users() {
		if value, ok := perUser[user]; ok {
			sum += value
			count++
		}
	}
	return sum / float64(count), nil
}

// UserItemSerendipity returns, per recommended (user, item), one minus the
// mean similarity of the item to the user's historical items, weighted by the
// recommendation's relevance when a relevance column is present. Users
// without historical interactions are excluded.
func (e *DiversityEvaluator) UserItemSerendipity(ctx context.Context) ([]UserItemScore, error) {
	matrix, err := e.similarityMatrix(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	rowsByUser, err := e.recoRowsByUser(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	historyByUser, err := e.trainItemsByUser(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	hasRelevance := e.config.Schema.Relevance != "" && e.reco.HasColumn(e.config.Schema.Relevance)
	var result []UserItemScore
	for _, user := range e.reco.Users() {
		history := make([]string, 0, len(historyByUser[user]))
		for _, item := range historyByUser[user] {
			if matrix.Contains(item) {
				history = append(history, item)
			}
		}
		if len(history) == 0 {
			continue
		}
		for _, row := range rowsByUser[user] {
			if err := ctx.Err(); err != nil {
				return nil, errors.Trace(err)
			}
			item := e.reco.ItemId(e.reco.ItemIndex(row))
			if !matrix.Contains(item) {
				continue
			}
			sum := 0.0
			for _, seen := range history {
				sum += matrix.Get(item, seen)
			}
			relevance := 1.0
			if hasRelevance {
				relevance = e.reco.Value(e.config.Schema.Relevance, row)
			}
			result = append(result, UserItemScore{
				User:  user,
				Item:  item,
				Value: (1 - sum/float64(len(history))) * relevance,
			})
		}
	}
	return result, nil
}

// UserSerendipity returns the mean user-item serendipity per user over that
// user's recommended items.
func (e *DiversityEvaluator) UserSerendipity(ctx context.Context) (map[string]float64, error) {
	scores, err := e.UserItemSerendipity(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, score := range scores {
		sums[score.User] += score.Value
		counts[score.User]++
	}
	result := make(map[string]float64, len(sums))
	for user, sum := range sums {
		result[user] = sum / float64(counts[user])
	}
	return result, nil
}

// Serendipity is the mean user serendipity over all users with at least one
// historical interaction and at least one recommendation.
func (e *DiversityEvaluator) Serendipity(ctx context.Context) (float64, error) {
	perUser, err := e.UserSerendipity(ctx)
	if err != nil {
		return 0, errors.Trace(err)
	}
	if len(perUser) == 0 {
		return 0, base.EmptyJoinErrorf("recommendations and history share no users with similarity information")
	}
	sum := 0.0
	count := 0
	for _, user := range e.reco.Users() {
		if value, ok := perUser[user]; ok {
			sum += value
			count++
		}
	}
	return sum / float64(count), nil
}
