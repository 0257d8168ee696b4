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
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"

	"github.com/gorse-io/receval/compute"
	"github.com/gorse-io/receval/table"
)

// relevancy holds the normalized per-user projections every ranking metric
// consumes: the relevant item set per truth user and the ranked prediction
// list per prediction user.
type relevancy struct {
	// relevantByUser maps each truth user to its relevant item set. Users
	// whose set is empty under by-threshold relevancy are excluded.
	relevantByUser map[string]mapset.Set[string]
	// rankedByUser maps each prediction user to its full ranked item list,
	// predicted score descending, ties broken by original row order.
	rankedByUser map[string][]string
	// users lists truth users with non-empty relevant sets in first-seen
	// order. Aggregates iterate this slice so results are deterministic.
	users []string
}

// groupRowsByUser collects row indices per user. Partitions are merged in
// partition order, so indices stay in original row order, which keeps the
// secondary sort key stable across execution paths.
func groupRowsByUser(ctx context.Context, engine compute.Engine, t *table.Table) (map[int32][]int, error) {
	return compute.GroupReduce(ctx, engine, t.Len(),
		func(row int) int32 { return t.UserIndex(row) },
		func() []int { return nil },
		func(rows []int, row int) []int { return append(rows, row) },
		func(a, b []int) []int { return append(a, b...) })
}

// sortRowsByValue orders row indices by a value column descending. The sort
// is stable: ties keep original row order.
func sortRowsByValue(t *table.Table, column string, rows []int) {
	sort.SliceStable(rows, func(i, j int) bool {
		return t.Value(column, rows[i]) > t.Value(column, rows[j])
	})
}

// resolveRelevancy normalizes truth and prediction tables into keyed,
// deduplicated per-user structures according to the configured policy.
func resolveRelevancy(ctx context.Context, truth, prediction *table.Table, config *Config) (*relevancy, error) {
	truthRows, err := groupRowsByUser(ctx, config.Engine, truth)
	if err != nil {
		return nil, errors.Trace(err)
	}
	predictionRows, err := groupRowsByUser(ctx, config.Engine, prediction)
	if err != nil {
		return nil, errors.Trace(err)
	}
	result := &relevancy{
		relevantByUser: make(map[string]mapset.Set[string], len(truthRows)),
		rankedByUser:   make(map[string][]string, len(predictionRows)),
	}
	for _, user := range truth.Users() {
		index, _ := truth.LookupUser(user)
		rows := truthRows[index]
		relevant := mapset.NewThreadUnsafeSet[string]()
		switch config.RelevancyMethod {
		case ByThreshold:
			for _, row := range rows {
				if truth.Value(config.Schema.Rating, row) >= config.Threshold {
					relevant.Add(truth.ItemId(truth.ItemIndex(row)))
				}
			}
		default: // TopK
			sorted := make([]int, len(rows))
			copy(sorted, rows)
			sortRowsByValue(truth, config.Schema.Rating, sorted)
			for _, row := range sorted[:min(config.K, len(sorted))] {
				relevant.Add(truth.ItemId(truth.ItemIndex(row)))
			}
		}
		if relevant.Cardinality() > 0 {
			result.relevantByUser[user] = relevant
			result.users = append(result.users, user)
		}
	}
	for _, user := range prediction.Users() {
		index, _ := prediction.LookupUser(user)
		rows := predictionRows[index]
		sorted := make([]int, len(rows))
		copy(sorted, rows)
		sortRowsByValue(prediction, config.Schema.Prediction, sorted)
		ranked := make([]string, len(sorted))
		for i, row := range sorted {
			ranked[i] = prediction.ItemId(prediction.ItemIndex(row))
		}
		result.rankedByUser[user] = ranked
	}
	return result, nil
}
