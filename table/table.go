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

// Package table implements column-oriented user-item interaction tables.
// Tables are append-only: once an evaluator takes ownership they are treated
// as read-only projections.
package table

import (
	"github.com/samber/lo"

	"github.com/gorse-io/receval/base"
)

// Schema names the columns of an interaction table. Column names are
// configurable so that callers can feed tables produced by arbitrary
// pipelines without renaming.
type Schema struct {
	User       string
	Item       string
	Rating     string
	Prediction string
	Timestamp  string
	Relevance  string
}

// DefaultSchema returns the documented default column names.
func DefaultSchema() Schema {
	return Schema{
		User:       "user_id",
		Item:       "item_id",
		Rating:     "rating",
		Prediction: "prediction",
		Timestamp:  "timestamp",
		Relevance:  "relevance",
	}
}

// Table is a column-oriented collection of user-item interactions. User and
// item identifiers are interned into dense indices; numeric columns are
// stored as parallel float64 slices.
type Table struct {
	schema   Schema
	users    []int32
	items    []int32
	columns  map[string][]float64
	userDict *Dict
	itemDict *Dict
}

// New creates an empty table with the given schema.
func New(schema Schema) *Table {
	return &Table{
		schema:   schema,
		columns:  make(map[string][]float64),
		userDict: NewDict(),
		itemDict: NewDict(),
	}
}

// Append adds one interaction. Every value column seen so far must be present
// in values and vice versa, so that columns stay rectangular.
func (t *Table) Append(user, item string, values map[string]float64) error {
	if len(t.users) > 0 {
		if len(values) != len(t.columns) {
			return base.SchemaErrorf("expected %d value columns, got %d", len(t.columns), len(values))
		}
		for name := range values {
			if _, ok := t.columns[name]; !ok {
				return base.SchemaErrorf("column %q not found", name)
			}
		}
	}
	t.users = append(t.users, t.userDict.Id(user))
	t.items = append(t.items, t.itemDict.Id(item))
	for name, value := range values {
		t.columns[name] = append(t.columns[name], value)
	}
	return nil
}

// Len returns the number of interactions.
func (t *Table) Len() int {
	return len(t.users)
}

// Schema returns the column names of the table.
func (t *Table) Schema() Schema {
	return t.schema
}

// HasColumn reports whether a value column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.columns[name]
	return ok
}

// Column returns a value column by name.
func (t *Table) Column(name string) ([]float64, bool) {
	column, ok := t.columns[name]
	return column, ok
}

// Value returns the value of a column at a row. The column must exist;
// evaluators check columns at construction.
func (t *Table) Value(name string, row int) float64 {
	return t.columns[name][row]
}

// UserIndex returns the interned user index at a row.
func (t *Table) UserIndex(row int) int32 {
	return t.users[row]
}

// ItemIndex returns the interned item index at a row.
func (t *Table) ItemIndex(row int) int32 {
	return t.items[row]
}

// UserId returns the user identifier for an interned index.
func (t *Table) UserId(index int32) string {
	s, _ := t.userDict.String(index)
	return s
}

// ItemId returns the item identifier for an interned index.
func (t *Table) ItemId(index int32) string {
	s, _ := t.itemDict.String(index)
	return s
}

// CountUsers returns the number of distinct users.
func (t *Table) CountUsers() int {
	return t.userDict.Count()
}

// CountItems returns the number of distinct items.
func (t *Table) CountItems() int {
	return t.itemDict.Count()
}

// Users returns all distinct user identifiers in first-seen order.
func (t *Table) Users() []string {
	return lo.Map(lo.Range(t.userDict.Count()), func(i, _ int) string {
		s, _ := t.userDict.String(int32(i))
		return s
	})
}

// Items returns all distinct item identifiers in first-seen order.
func (t *Table) Items() []string {
	return lo.Map(lo.Range(t.itemDict.Count()), func(i, _ int) string {
		s, _ := t.itemDict.String(int32(i))
		return s
	})
}

// ItemFreq returns the number of interactions with the item at an interned
// index.
func (t *Table) ItemFreq(index int32) int {
	return t.itemDict.Freq(index)
}

// LookupItem returns the interned index of an item identifier.
func (t *Table) LookupItem(item string) (int32, bool) {
	return t.itemDict.Lookup(item)
}

// LookupUser returns the interned index of a user identifier.
func (t *Table) LookupUser(user string) (int32, bool) {
	return t.userDict.Lookup(user)
}

// ItemDict returns the item dictionary. The dictionary is shared with the
// table so callers must treat it as read-only.
func (t *Table) ItemDict() *Dict {
	return t.itemDict
}

// RequireColumns returns a schema error unless all named columns exist.
func (t *Table) RequireColumns(names ...string) error {
	for _, name := range names {
		if name == "" {
			return base.SchemaErrorf("column name must not be empty")
		}
		if !t.HasColumn(name) {
			return base.SchemaErrorf("column %q not found", name)
		}
	}
	return nil
}

// CheckDuplicates returns a schema error if any (user, item) pair appears
// more than once. Duplicates are a caller error: deduplicating here would
// silently change metric values.
func (t *Table) CheckDuplicates() error {
	seen := make(map[[2]int32]struct{}, len(t.users))
	for row := range t.users {
		key := [2]int32{t.users[row], t.items[row]}
		if _, ok := seen[key]; ok {
			return base.SchemaErrorf("duplicate interaction (%s, %s)",
				t.UserId(t.users[row]), t.ItemId(t.items[row]))
		}
		seen[key] = struct{}{}
	}
	return nil
}
