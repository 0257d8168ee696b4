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

package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gorse-io/receval/base"
	"github.com/gorse-io/receval/base/log"
	"github.com/gorse-io/receval/cmd/version"
	"github.com/gorse-io/receval/compute"
	"github.com/gorse-io/receval/eval"
	"github.com/gorse-io/receval/similarity"
	"github.com/gorse-io/receval/table"
)

var rootCommand = &cobra.Command{
	Use:   "receval",
	Short: "Offline evaluation of recommender system output.",
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion, _ := cmd.PersistentFlags().GetBool("version"); showVersion {
			fmt.Println(version.BuildInfo())
			return
		}
		_ = cmd.Help()
	},
}

var ratingCommand = &cobra.Command{
	Use:   "rating",
	Short: "Compute rating prediction metrics over the truth/prediction inner join.",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogger(cmd)
		truth := mustLoadInteractions(cmd, "truth", defaultSchema().Rating)
		prediction := mustLoadInteractions(cmd, "prediction", defaultSchema().Prediction)
		evaluator, err := eval.NewRatingEvaluator(truth, prediction, commonOptions(cmd)...)
		if err != nil {
			log.Logger().Fatal("failed to create rating evaluator", zap.Error(err))
		}
		ctx := context.Background()
		render(map[string]metric{
			"RMSE":               evaluator.RMSE,
			"MAE":                evaluator.MAE,
			"R2":                 evaluator.RSquared,
			"explained variance": evaluator.ExplainedVariance,
		}, ctx)
	},
}

var rankingCommand = &cobra.Command{
	Use:   "ranking",
	Short: "Compute top-k ranking metrics.",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogger(cmd)
		truth := mustLoadInteractions(cmd, "truth", defaultSchema().Rating)
		prediction := mustLoadInteractions(cmd, "prediction", defaultSchema().Prediction)
		evaluator, err := eval.NewRankingEvaluator(truth, prediction, commonOptions(cmd)...)
		if err != nil {
			log.Logger().Fatal("failed to create ranking evaluator", zap.Error(err))
		}
		ctx := context.Background()
		render(map[string]metric{
			"precision@k": evaluator.PrecisionAtK,
			"recall@k":    evaluator.RecallAtK,
			"NDCG@k":      evaluator.NDCGAtK,
			"MAP@k":       evaluator.MAPAtK,
			"MAP":         evaluator.MAP,
		}, ctx)
	},
}

var diversityCommand = &cobra.Command{
	Use:   "diversity",
	Short: "Compute beyond-accuracy metrics against the training history.",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogger(cmd)
		train := mustLoadInteractions(cmd, "train", defaultSchema().Rating)
		reco := mustLoadInteractions(cmd, "recommendations", defaultSchema().Prediction)
		var features *table.FeatureTable
		if path, _ := cmd.Flags().GetString("features"); path != "" {
			var err error
			if features, err = loadFeatures(path); err != nil {
				log.Logger().Fatal("failed to load item features", zap.String("path", path), zap.Error(err))
			}
		}
		evaluator, err := eval.NewDiversityEvaluator(train, reco, features, commonOptions(cmd)...)
		if err != nil {
			log.Logger().Fatal("failed to create diversity evaluator", zap.Error(err))
		}
		ctx := context.Background()
		render(map[string]metric{
			"catalog coverage":        evaluator.CatalogCoverage,
			"distributional coverage": evaluator.DistributionalCoverage,
			"novelty":                 evaluator.Novelty,
			"diversity":               evaluator.Diversity,
			"serendipity":             evaluator.Serendipity,
		}, ctx)
	},
}

type metric func(ctx context.Context) (float64, error)

// metricOrder fixes the row order of the rendered table.
var metricOrder = []string{
	"RMSE", "MAE", "R2", "explained variance",
	"precision@k", "recall@k", "NDCG@k", "MAP@k", "MAP",
	"catalog coverage", "distributional coverage", "novelty", "diversity", "serendipity",
}

func render(metrics map[string]metric, ctx context.Context) {
	writer := tablewriter.NewWriter(os.Stdout)
	writer.Header("metric", "value")
	for _, name := range metricOrder {
		evaluate, ok := metrics[name]
		if !ok {
			continue
		}
		value, err := evaluate(ctx)
		if err != nil {
			log.Logger().Fatal("failed to compute metric", zap.String("metric", name), zap.Error(err))
		}
		writer.Append([]string{name, strconv.FormatFloat(value, 'f', 6, 64)})
	}
	writer.Render()
}

func setupLogger(cmd *cobra.Command) {
	debug, _ := cmd.Root().PersistentFlags().GetBool("debug")
	log.SetLogger(cmd.Root().PersistentFlags(), debug)
}

func defaultSchema() table.Schema {
	return table.DefaultSchema()
}

// commonOptions translates command-line flags into evaluator options.
func commonOptions(cmd *cobra.Command) []eval.Option {
	var opts []eval.Option
	if k, _ := cmd.Flags().GetInt("k"); k > 0 {
		opts = append(opts, eval.WithK(k))
	}
	if method, _ := cmd.Flags().GetString("relevancy"); method != "" {
		opts = append(opts, eval.WithRelevancyMethod(eval.RelevancyMethod(method)))
	}
	if cmd.Flags().Changed("threshold") {
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		opts = append(opts, eval.WithThreshold(threshold))
	}
	if strategy, _ := cmd.Flags().GetString("similarity"); strategy != "" {
		opts = append(opts, eval.WithSimilarityStrategy(eval.SimilarityStrategy(strategy)))
	}
	if normalization, _ := cmd.Flags().GetString("normalization"); normalization != "" {
		opts = append(opts, eval.WithSimilarityNormalization(similarity.Normalization(normalization)))
	}
	if partitions, _ := cmd.Flags().GetInt("partitions"); partitions > 1 {
		opts = append(opts, eval.WithEngine(compute.Partitioned(partitions)))
	}
	return opts
}

func mustLoadInteractions(cmd *cobra.Command, flag, valueColumn string) *table.Table {
	path, _ := cmd.Flags().GetString(flag)
	if path == "" {
		log.Logger().Fatal("missing required flag", zap.String("flag", "--"+flag))
	}
	loaded, err := loadInteractions(path, valueColumn)
	if err != nil {
		log.Logger().Fatal("failed to load interactions", zap.String("path", path), zap.Error(err))
	}
	log.Logger().Info("loaded interactions",
		zap.String("path", path),
		zap.Int("rows", loaded.Len()),
		zap.Int("users", loaded.CountUsers()),
		zap.Int("items", loaded.CountItems()))
	return loaded
}

// loadInteractions reads a CSV file with a header row into an interaction
// table. The user and item columns are required; every other recognized
// column is stored as a float64 value column.
func loadInteractions(path, valueColumn string) (*table.Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, errors.Trace(err)
	}
	bar := progressbar.DefaultBytes(info.Size(), "load "+path)
	progressReader := progressbar.NewReader(file, bar)
	reader := csv.NewReader(&progressReader)

	schema := table.DefaultSchema()
	header, err := reader.Read()
	if err != nil {
		return nil, errors.Trace(err)
	}
	userColumn, itemColumn := -1, -1
	valueColumns := make(map[int]string)
	for i, name := range header {
		switch name {
		case schema.User:
			userColumn = i
		case schema.Item:
			itemColumn = i
		case valueColumn, schema.Timestamp, schema.Relevance:
			valueColumns[i] = name
		}
	}
	if userColumn < 0 || itemColumn < 0 {
		return nil, base.SchemaErrorf("header of %s must contain %q and %q", path, schema.User, schema.Item)
	}
	if _, ok := valueColumns[indexOf(header, valueColumn)]; !ok {
		return nil, base.SchemaErrorf("header of %s must contain %q", path, valueColumn)
	}

	result := table.New(schema)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Trace(err)
		}
		values := make(map[string]float64, len(valueColumns))
		for i, name := range valueColumns {
			value, err := strconv.ParseFloat(record[i], 64)
			if err != nil {
				return nil, base.SchemaErrorf("column %q of %s is not numeric: %v", name, path, err)
			}
			values[name] = value
		}
		if err := result.Append(record[userColumn], record[itemColumn], values); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return result, nil
}

// loadFeatures reads a CSV file whose first column is the item identifier and
// whose remaining columns are the feature vector.
func loadFeatures(path string) (*table.FeatureTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	reader := csv.NewReader(file)
	if _, err := reader.Read(); err != nil {
		return nil, errors.Trace(err)
	}
	result := table.NewFeatureTable()
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Trace(err)
		}
		if len(record) < 2 {
			return nil, base.SchemaErrorf("feature row of %s must carry an item id and at least one value", path)
		}
		vector := make([]float32, len(record)-1)
		for i, field := range record[1:] {
			value, err := strconv.ParseFloat(field, 32)
			if err != nil {
				return nil, base.SchemaErrorf("feature column %d of %s is not numeric: %v", i+1, path, err)
			}
			vector[i] = float32(value)
		}
		if err := result.Append(record[0], vector); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return result, nil
}

func indexOf(header []string, name string) int {
	for i, candidate := range header {
		if candidate == name {
			return i
		}
	}
	return -1
}

func init() {
	rootCommand.PersistentFlags().Bool("version", false, "receval version")
	rootCommand.PersistentFlags().BoolP("debug", "D", false, "use debug log mode")
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.AddCommand(ratingCommand, rankingCommand, diversityCommand)

	for _, cmd := range []*cobra.Command{ratingCommand, rankingCommand} {
		cmd.Flags().String("truth", "", "path of the ground-truth interaction CSV")
		cmd.Flags().String("prediction", "", "path of the predicted interaction CSV")
	}
	rankingCommand.Flags().Int("k", 0, "recommendation list cutoff")
	rankingCommand.Flags().String("relevancy", "", "relevancy method (top_k or by_threshold)")
	rankingCommand.Flags().Float64("threshold", math.NaN(), "rating threshold for by_threshold relevancy")
	rankingCommand.Flags().Int("partitions", 0, "number of partitions (0 runs sequentially)")
	ratingCommand.Flags().Int("partitions", 0, "number of partitions (0 runs sequentially)")

	diversityCommand.Flags().String("train", "", "path of the training interaction CSV")
	diversityCommand.Flags().String("recommendations", "", "path of the recommendation CSV")
	diversityCommand.Flags().String("features", "", "path of the item feature CSV")
	diversityCommand.Flags().Int("k", 0, "recommendation list cutoff")
	diversityCommand.Flags().String("similarity", "", "similarity strategy (cooccurrence or item_feature_vector)")
	diversityCommand.Flags().String("normalization", "", "co-occurrence normalization (jaccard, lift or count)")
	diversityCommand.Flags().Int("partitions", 0, "number of partitions (0 runs sequentially)")
}

func main() {
	defer log.CloseLogger()
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute command", zap.Error(err))
	}
}
