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

// Package eval evaluates recommender output against ground-truth user-item
// interactions: rating accuracy, top-k ranking quality and beyond-accuracy
// metrics (coverage, novelty, diversity, serendipity). Evaluators are pure
// functions of their input tables; the only cached state is the item
// similarity matrix, owned by one evaluator instance.
package eval

import (
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/gorse-io/receval/base"
	"github.com/gorse-io/receval/compute"
	"github.com/gorse-io/receval/similarity"
	"github.com/gorse-io/receval/table"
)

// RelevancyMethod selects how the per-user relevant item set is constructed
// from the truth table.
type RelevancyMethod string

const (
	// TopK deems the k highest-rated truth items of each user relevant.
	TopK RelevancyMethod = "top_k"
	// ByThreshold deems every truth item rated at or above the threshold
	// relevant.
	ByThreshold RelevancyMethod = "by_threshold"
)

// SimilarityStrategy selects how item-item similarity is estimated.
type SimilarityStrategy string

const (
	// CoOccurrence derives similarity from co-occurrence counts in the
	// historical interactions.
	CoOccurrence SimilarityStrategy = "cooccurrence"
	// ItemFeatureVector derives similarity from the cosine of item feature
	// vectors.
	ItemFeatureVector SimilarityStrategy = "item_feature_vector"
)

// Config is the immutable construction-time configuration of an evaluator.
// There is no process-wide state: each evaluator owns its own copy.
type Config struct {
	K                       int                      `validate:"gte=1"`
	RelevancyMethod         RelevancyMethod          `validate:"oneof=top_k by_threshold"`
	Threshold               float64                  `validate:"-"`
	SimilarityStrategy      SimilarityStrategy       `validate:"oneof=cooccurrence item_feature_vector"`
	SimilarityNormalization similarity.Normalization `validate:"oneof=jaccard lift count"`
	Schema                  table.Schema
	Engine                  compute.Engine
}

// NewConfig returns the documented default configuration.
func NewConfig() Config {
	return Config{
		K:                       10,
		RelevancyMethod:         TopK,
		Threshold:               math.NaN(),
		SimilarityStrategy:      CoOccurrence,
		SimilarityNormalization: similarity.Jaccard,
		Schema:                  table.DefaultSchema(),
		Engine:                  compute.Sequential(),
	}
}

var validate = validator.New()

// Validate checks the configuration eagerly. Evaluator constructors call it
// before touching any data, never deferring failures to metric access.
func (config *Config) Validate() error {
	if err := validate.Struct(config); err != nil {
		return base.ConfigurationErrorf("%s", err.Error())
	}
	if config.RelevancyMethod == ByThreshold && (math.IsNaN(config.Threshold) || math.IsInf(config.Threshold, 0)) {
		return base.ConfigurationErrorf("relevancy method %q requires a finite threshold", ByThreshold)
	}
	return nil
}

// strategy builds the configured similarity strategy.
func (config *Config) strategy() similarity.Strategy {
	switch config.SimilarityStrategy {
	case ItemFeatureVector:
		return similarity.FeatureVector{}
	default:
		return similarity.CoOccurrence{Normalization: config.SimilarityNormalization}
	}
}

// Option overrides one configuration field.
type Option func(*Config)

// WithK sets the cut-off for top-k metrics and top-k relevancy.
func WithK(k int) Option {
	return func(config *Config) {
		config.K = k
	}
}

// WithRelevancyMethod selects the relevancy construction policy.
func WithRelevancyMethod(method RelevancyMethod) Option {
	return func(config *Config) {
		config.RelevancyMethod = method
	}
}

// WithThreshold sets the rating threshold for by-threshold relevancy.
func WithThreshold(threshold float64) Option {
	return func(config *Config) {
		config.Threshold = threshold
	}
}

// WithSimilarityStrategy selects the item similarity strategy.
func WithSimilarityStrategy(strategy SimilarityStrategy) Option {
	return func(config *Config) {
		config.SimilarityStrategy = strategy
	}
}

// WithSimilarityNormalization selects the co-occurrence normalization.
func WithSimilarityNormalization(normalization similarity.Normalization) Option {
	return func(config *Config) {
		config.SimilarityNormalization = normalization
	}
}

// WithSchema overrides the column names of the input tables.
func WithSchema(schema table.Schema) Option {
	return func(config *Config) {
		config.Schema = schema
	}
}

// WithEngine selects the execution path for reductions. Both paths produce
// numerically equivalent metrics within 1e-4 absolute tolerance.
func WithEngine(engine compute.Engine) Option {
	return func(config *Config) {
		config.Engine = engine
	}
}
