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

// Dict interns string identifiers into dense int32 indices and tracks how
// often each identifier has been seen.
type Dict struct {
	si  map[string]int32
	is  []string
	cnt []int
}

func NewDict() *Dict {
	return &Dict{si: map[string]int32{}}
}

// Count returns the number of distinct identifiers.
func (d *Dict) Count() int {
	return len(d.is)
}

// Id interns s and increments its frequency.
func (d *Dict) Id(s string) (y int32) {
	if y, ok := d.si[s]; ok {
		d.cnt[y]++
		return y
	}
	y = int32(len(d.is))
	d.si[s] = y
	d.is = append(d.is, s)
	d.cnt = append(d.cnt, 1)
	return
}

// Lookup returns the index of s without interning.
func (d *Dict) Lookup(s string) (int32, bool) {
	y, ok := d.si[s]
	return y, ok
}

// String returns the identifier at index id.
func (d *Dict) String(id int32) (s string, ok bool) {
	if int(id) >= len(d.is) {
		return "", false
	}
	return d.is[id], true
}

// Freq returns how often the identifier at index id has been interned.
func (d *Dict) Freq(id int32) int {
	if int(id) >= len(d.cnt) {
		return 0
	}
	return d.cnt[id]
}
