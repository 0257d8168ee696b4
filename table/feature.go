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

package table

import (
	"github.com/gorse-io/receval/base"
)

// FeatureTable maps item identifiers to fixed-length numeric feature vectors.
type FeatureTable struct {
	dict    *Dict
	vectors [][]float32
}

// NewFeatureTable creates an empty feature table.
func NewFeatureTable() *FeatureTable {
	return &FeatureTable{dict: NewDict()}
}

// Append adds the feature vector of one item. All vectors must share the same
// length and each item may appear once.
func (f *FeatureTable) Append(item string, vector []float32) error {
	if len(vector) == 0 {
		return base.SchemaErrorf("feature vector of item %q is empty", item)
	}
	if len(f.vectors) > 0 && len(vector) != len(f.vectors[0]) {
		return base.SchemaErrorf("feature vector of item %q has length %d, expected %d",
			item, len(vector), len(f.vectors[0]))
	}
	if _, ok := f.dict.Lookup(item); ok {
		return base.SchemaErrorf("duplicate feature vector for item %q", item)
	}
	f.dict.Id(item)
	f.vectors = append(f.vectors, vector)
	return nil
}

// Vector returns the feature vector of an item.
func (f *FeatureTable) Vector(item string) ([]float32, bool) {
	index, ok := f.dict.Lookup(item)
	if !ok {
		return nil, false
	}
	return f.vectors[index], true
}

// Dim returns the length of the feature vectors, zero when empty.
func (f *FeatureTable) Dim() int {
	if len(f.vectors) == 0 {
		return 0
	}
	return len(f.vectors[0])
}

// Count returns the number of items with features.
func (f *FeatureTable) Count() int {
	return f.dict.Count()
}

// Dict returns the item dictionary. The dictionary is shared with the table
// so callers must treat it as read-only.
func (f *FeatureTable) Dict() *Dict {
	return f.dict
}

// VectorByIndex returns the feature vector at an interned index.
func (f *FeatureTable) VectorByIndex(index int32) []float32 {
	return f.vectors[index]
}
