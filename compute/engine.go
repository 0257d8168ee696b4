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

// Package compute provides associative reduction primitives with two backing
// execution paths: a sequential in-memory path and a partition-parallel path.
// Every aggregate in this repository is expressed through these primitives so
// that both paths share a single set of metric formulas.
package compute

import (
	"context"
	"runtime"

	"github.com/juju/errors"

	"github.com/gorse-io/receval/common/parallel"
)

// Engine selects the execution path for reductions. The zero value is the
// sequential path.
type Engine struct {
	workers int
}

// Sequential returns an engine computing reductions in a single pass on the
// calling goroutine.
func Sequential() Engine {
	return Engine{workers: 1}
}

// Partitioned returns an engine computing reductions over logical partitions
// in parallel. Partial accumulators are merged in partition order so results
// are deterministic for a fixed worker count. If nWorkers is not positive,
// the number of CPUs is used.
func Partitioned(nWorkers int) Engine {
	if nWorkers <= 0 {
		nWorkers = runtime.NumCPU()
	}
	return Engine{workers: nWorkers}
}

// Workers returns the number of executors used by reductions.
func (e Engine) Workers() int {
	if e.workers <= 0 {
		return 1
	}
	return e.workers
}

// Reduce folds the index range [0, n) into a single accumulator. fold must be
// order-insensitive up to merge associativity: merge(fold(a), fold(b)) must
// equal folding a and b together (within floating tolerance).
func Reduce[A any](ctx context.Context, e Engine, n int, init func() A, fold func(acc A, i int) A, merge func(a, b A) A) (A, error) {
	if e.Workers() <= 1 || n < 2 {
		acc := init()
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return acc, errors.Trace(err)
			}
			acc = fold(acc, i)
		}
		return acc, nil
	}
	ranges := parallel.SplitRange(n, e.Workers())
	partials := make([]A, len(ranges))
	err := parallel.Parallel(ctx, len(ranges), e.Workers(), func(_, part int) error {
		acc := init()
		for i := ranges[part][0]; i < ranges[part][1]; i++ {
			acc = fold(acc, i)
		}
		partials[part] = acc
		return nil
	})
	if err != nil {
		var zero A
		return zero, errors.Trace(err)
	}
	// merge in partition order for determinism
	acc := partials[0]
	for _, partial := range partials[1:] {
		acc = merge(acc, partial)
	}
	return acc, nil
}

// GroupReduce folds the index range [0, n) into per-key accumulators, the
// group-by-then-reduce primitive.
func GroupReduce[K comparable, V any](ctx context.Context, e Engine, n int, key func(i int) K, init func() V, fold func(acc V, i int) V, merge func(a, b V) V) (map[K]V, error) {
	return Reduce(ctx, e, n,
		func() map[K]V {
			return make(map[K]V)
		},
		func(acc map[K]V, i int) map[K]V {
			k := key(i)
			v, ok := acc[k]
			if !ok {
				v = init()
			}
			acc[k] = fold(v, i)
			return acc
		},
		func(a, b map[K]V) map[K]V {
			for k, v := range b {
				if u, ok := a[k]; ok {
					a[k] = merge(u, v)
				} else {
					a[k] = v
				}
			}
			return a
		})
}

// Sum reduces [0, n) to the sum of value(i).
func Sum(ctx context.Context, e Engine, n int, value func(i int) float64) (float64, error) {
	return Reduce(ctx, e, n,
		func() float64 { return 0 },
		func(acc float64, i int) float64 { return acc + value(i) },
		func(a, b float64) float64 { return a + b })
}

// Count reduces [0, n) to the number of indices satisfying the predicate.
func Count(ctx context.Context, e Engine, n int, predicate func(i int) bool) (int, error) {
	return Reduce(ctx, e, n,
		func() int { return 0 },
		func(acc, i int) int {
			if predicate(i) {
				acc++
			}
			return acc
		},
		func(a, b int) int { return a + b })
}

// DistinctCount reduces [0, n) to the number of distinct keys.
func DistinctCount[K comparable](ctx context.Context, e Engine, n int, key func(i int) K) (int, error) {
	distinct, err := Reduce(ctx, e, n,
		func() map[K]struct{} { return make(map[K]struct{}) },
		func(acc map[K]struct{}, i int) map[K]struct{} {
			acc[key(i)] = struct{}{}
			return acc
		},
		func(a, b map[K]struct{}) map[K]struct{} {
			for k := range b {
				a[k] = struct{}{}
			}
			return a
		})
	if err != nil {
		return 0, errors.Trace(err)
	}
	return len(distinct), nil
}
