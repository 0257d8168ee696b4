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

	"github.com/juju/errors"

	"github.com/gorse-io/receval/base"
	"github.com/gorse-io/receval/compute"
	"github.com/gorse-io/receval/table"
)

// RatingEvaluator computes point-wise rating accuracy metrics over the inner
// join of truth and prediction on (user, item). Rows present on only one side
// are dropped: accuracy metrics only compare overlapping predictions.
type RatingEvaluator struct {
	config Config
	truth  []float64
	pred   []float64
}

// NewRatingEvaluator joins truth and prediction on (user, item) and fails
// with an empty-join error when the intersection is empty.
func NewRatingEvaluator(truth, prediction *table.Table, opts ...Option) (*RatingEvaluator, error) {
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
	// inner join on (user, item)
	predicted := make(map[[2]string]float64, prediction.Len())
	for row := 0; row < prediction.Len(); row++ {
		key := [2]string{prediction.UserId(prediction.UserIndex(row)), prediction.ItemId(prediction.ItemIndex(row))}
		predicted[key] = prediction.Value(config.Schema.Prediction, row)
	}
	evaluator := &RatingEvaluator{config: config}
	for row := 0; row < truth.Len(); row++ {
		key := [2]string{truth.UserId(truth.UserIndex(row)), truth.ItemId(truth.ItemIndex(row))}
		if value, ok := predicted[key]; ok {
			evaluator.truth = append(evaluator.truth, truth.Value(config.Schema.Rating, row))
			evaluator.pred = append(evaluator.pred, value)
		}
	}
	if len(evaluator.truth) == 0 {
		return nil, base.EmptyJoinErrorf("truth and prediction share no (user, item) pairs")
	}
	return evaluator, nil
}

// ratingSums carries the associative sufficient statistics of every rating
// metric, so one pass over the join serves all of them on either execution
// path.
type ratingSums struct {
	n               float64
	sumTruth        float64
	sumSquaredTruth float64
	sumAbsError     float64
	sumError        float64
	sumSquaredError float64
}

func (s ratingSums) merge(other ratingSums) ratingSums {
	s.n += other.n
	s.sumTruth += other.sumTruth
	s.sumSquaredTruth += other.sumSquaredTruth
	s.sumAbsError += other.sumAbsError
	s.sumError += other.sumError
	s.sumSquaredError += other.sumSquaredError
	return s
}

func (e *RatingEvaluator) sums(ctx context.Context) (ratingSums, error) {
	return compute.Reduce(ctx, e.config.Engine, len(e.truth),
		func() ratingSums { return ratingSums{} },
		func(acc ratingSums, i int) ratingSums {
			err := e.truth[i] - e.pred[i]
			acc.n++
			acc.sumTruth += e.truth[i]
			acc.sumSquaredTruth += e.truth[i] * e.truth[i]
			acc.sumAbsError += math.Abs(err)
			acc.sumError += err
			acc.sumSquaredError += err * err
			return acc
		},
		ratingSums.merge)
}

// RMSE is the root mean squared error.
func (e *RatingEvaluator) RMSE(ctx context.Context) (float64, error) {
	sums, err := e.sums(ctx)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return math.Sqrt(sums.sumSquaredError / sums.n), nil
}

// MAE is the mean absolute error.
func (e *RatingEvaluator) MAE(ctx context.Context) (float64, error) {
	sums, err := e.sums(ctx)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return sums.sumAbsError / sums.n, nil
}

// RSquared is the coefficient of determination, 1 - SS_res/SS_tot. When the
// truth column has zero variance and the predictions reproduce it exactly,
// the metric is defined as 1.
func (e *RatingEvaluator) RSquared(ctx context.Context) (float64, error) {
	sums, err := e.sums(ctx)
	if err != nil {
		return 0, errors.Trace(err)
	}
	ssTot := sums.sumSquaredTruth - sums.sumTruth*sums.sumTruth/sums.n
	if ssTot <= 0 {
		if sums.sumSquaredError == 0 {
			return 1, nil
		}
		return 0, nil
	}
	return 1 - sums.sumSquaredError/ssTot, nil
}

// ExplainedVariance is 1 - Var(truth - pred)/Var(truth), with the same
// zero-variance handling as RSquared.
func (e *RatingEvaluator) ExplainedVariance(ctx context.Context) (float64, error) {
	sums, err := e.sums(ctx)
	if err != nil {
		return 0, errors.Trace(err)
	}
	varTruth := sums.sumSquaredTruth/sums.n - (sums.sumTruth/sums.n)*(sums.sumTruth/sums.n)
	varError := sums.sumSquaredError/sums.n - (sums.sumError/sums.n)*(sums.sumError/sums.n)
	if varTruth <= 0 {
		if varError == 0 {
			return 1, nil
		}
		return 0, nil
	}
	return 1 - varError/varTruth, nil
}

// Len returns the number of joined rows.
func (e *RatingEvaluator) Len() int {
	return len(e.truth)
}
