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

package base

import (
	stderrors "errors"

	"github.com/juju/errors"
)

// Error kinds raised by evaluators. All of them are raised synchronously at
// evaluator construction or on first metric access, never retried.
var (
	// ErrConfiguration indicates an invalid evaluator configuration: k < 1,
	// a non-finite threshold, an unknown column name or a missing feature
	// table. Raised eagerly at construction.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrEmptyJoin indicates that a required join yielded zero rows. The
	// metric is undefined for the input, not zero.
	ErrEmptyJoin = errors.New("empty join")
	// ErrSchema indicates a referenced column is absent, of the wrong type,
	// or contains duplicate (user, item) keys.
	ErrSchema = errors.New("schema error")
)

// ConfigurationErrorf creates an error of kind ErrConfiguration.
func ConfigurationErrorf(format string, args ...any) error {
	return errors.Annotatef(ErrConfiguration, format, args...)
}

// EmptyJoinErrorf creates an error of kind ErrEmptyJoin.
func EmptyJoinErrorf(format string, args ...any) error {
	return errors.Annotatef(ErrEmptyJoin, format, args...)
}

// SchemaErrorf creates an error of kind ErrSchema.
func SchemaErrorf(format string, args ...any) error {
	return errors.Annotatef(ErrSchema, format, args...)
}

// IsConfigurationError reports whether err is of kind ErrConfiguration.
func IsConfigurationError(err error) bool {
	return stderrors.Is(err, ErrConfiguration)
}

// IsEmptyJoinError reports whether err is of kind ErrEmptyJoin.
func IsEmptyJoinError(err error) bool {
	return stderrors.Is(err, ErrEmptyJoin)
}

// IsSchemaError reports whether err is of kind ErrSchema.
func IsSchemaError(err error) bool {
	return stderrors.Is(err, ErrSchema)
}
