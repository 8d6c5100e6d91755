// Copyright 2024 Edgectx, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package projection applies a per-user filter/sort context to a version's
// row sequence. The result is a deterministic function of (rows, context):
// identical inputs produce identical output, ordering included.
package projection

import (
	"sort"

	"github.com/edgectx/continentd/wire"
)

// Sort describes the ordering of a projected view.
type Sort struct {
	By   string `json:"by"`
	Desc bool   `json:"desc,omitempty"`
}

// Context is a user's filter/sort/selection descriptor for one dataset.
// Filters map a field name to either a scalar (equality) or a sequence
// (membership). Selection is stored and returned opaquely; projection
// never consults it.
type Context struct {
	Filters   map[string]interface{} `json:"filters,omitempty"`
	Sort      *Sort                  `json:"sort,omitempty"`
	Selection map[string]interface{} `json:"selection,omitempty"`
}

// Apply filters and orders rows according to ctx. The input slice is not
// modified. A row missing a filtered field is treated as carrying null, so
// it passes only an explicit null filter or a membership filter containing
// null; rows missing the sort key order before every present value
// ascending.
func Apply(rows []wire.Row, ctx Context) []wire.Row {
	out := make([]wire.Row, 0, len(rows))
	for _, row := range rows {
		if matches(row, ctx.Filters) {
			out = append(out, row)
		}
	}

	if ctx.Sort != nil && ctx.Sort.By != "" {
		by, desc := ctx.Sort.By, ctx.Sort.Desc
		sort.SliceStable(out, func(i, j int) bool {
			a, aok := out[i][by]
			b, bok := out[j][by]
			if desc {
				return less(b, bok, a, aok)
			}
			return less(a, aok, b, bok)
		})
	}
	return out
}

func matches(row wire.Row, filters map[string]interface{}) bool {
	for field, want := range filters {
		// An absent field reads as null, for both filter shapes.
		got := row[field]
		if seq, ok := want.([]interface{}); ok {
			if !member(got, seq) {
				return false
			}
			continue
		}
		if !wire.Equal(got, want) {
			return false
		}
	}
	return true
}

func member(v interface{}, seq []interface{}) bool {
	for _, candidate := range seq {
		if wire.Equal(v, candidate) {
			return true
		}
	}
	return false
}

// less orders sort key values. Absent sorts before everything; otherwise
// values order within type classes (numbers, then strings, then bools),
// so mixed-type datasets still sort deterministically.
func less(a interface{}, aok bool, b interface{}, bok bool) bool {
	if !aok || !bok {
		return !aok && bok
	}
	ra, ka := rankAndKey(a)
	rb, kb := rankAndKey(b)
	if ra != rb {
		return ra < rb
	}
	switch ra {
	case rankNumber:
		return ka.(float64) < kb.(float64)
	case rankString:
		return ka.(string) < kb.(string)
	case rankBool:
		return !ka.(bool) && kb.(bool)
	default:
		return false
	}
}

const (
	rankNull = iota
	rankNumber
	rankString
	rankBool
	rankOther
)

func rankAndKey(v interface{}) (int, interface{}) {
	switch x := v.(type) {
	case nil:
		return rankNull, nil
	case float64:
		return rankNumber, x
	case int:
		return rankNumber, float64(x)
	case int64:
		return rankNumber, float64(x)
	case string:
		return rankString, x
	case bool:
		return rankBool, x
	default:
		return rankOther, nil
	}
}
