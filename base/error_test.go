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
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	err := ConfigurationErrorf("k must be positive, got %d", 0)
	assert.True(t, IsConfigurationError(err))
	assert.False(t, IsEmptyJoinError(err))
	assert.ErrorContains(t, err, "k must be positive, got 0")

	err = EmptyJoinErrorf("truth and prediction share no rows")
	assert.True(t, IsEmptyJoinError(err))
	assert.False(t, IsSchemaError(err))

	err = SchemaErrorf("column %q not found", "rating")
	assert.True(t, IsSchemaError(err))
	assert.False(t, IsConfigurationError(err))
}

func TestErrorKindSurvivesTrace(t *testing.T) {
	err := errors.Trace(ConfigurationErrorf("threshold must be finite"))
	assert.True(t, IsConfigurationError(err))
}
