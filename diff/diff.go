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

// Package diff computes add/update/delete records between two row
// sequences keyed by item identity. It is a pure function of its inputs
// plus a clock reading used only to stamp the records, so repeated
// invocation over the same sequences yields the same records.
package diff

import (
	"strconv"

	"github.com/rs/zerolog"

	"github.com/edgectx/continentd/wire"
)

// Kind classifies a delta record.
type Kind string

const (
	KindAdd    Kind = "add"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Record describes a single-item change between a parent version and its
// child. Add records carry no OldItem; delete records carry no NewItem.
type Record struct {
	Kind    Kind     `json:"kind"`
	ItemID  string   `json:"item_id"`
	OldItem wire.Row `json:"old_item,omitempty"`
	NewItem wire.Row `json:"new_item,omitempty"`
	Ts      int64    `json:"ts"`
}

// ItemID extracts the string identity of a row. Rows without an "id"
// field have no identity and are skipped during diffing.
func ItemID(row wire.Row) (string, bool) {
	v, ok := row["id"]
	if !ok || v == nil {
		return "", false
	}
	switch id := v.(type) {
	case string:
		return id, true
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case int:
		return strconv.Itoa(id), true
	case int64:
		return strconv.FormatInt(id, 10), true
	default:
		return "", false
	}
}

// Compute diffs the current row sequence against the parent's. Output
// ordering is contractual: add and update records follow the order item
// keys first appear in the current sequence, then delete records follow
// the order keys first appear in the parent sequence. Equality between
// stored and current items ignores map key order and numeric spelling.
//
// Rows lacking an id are logged and skipped; memory is bounded by one map
// entry per distinct key on each side.
func Compute(parent, current []wire.Row, ts int64, log zerolog.Logger) []Record {
	old := index(parent, log)
	nu := index(current, log)

	recs := make([]Record, 0, len(nu.order)+len(old.order))
	for _, key := range nu.order {
		newItem := nu.rows[key]
		oldItem, existed := old.rows[key]
		switch {
		case !existed:
			recs = append(recs, Record{Kind: KindAdd, ItemID: key, NewItem: newItem, Ts: ts})
		case !wire.Equal(oldItem, newItem):
			recs = append(recs, Record{Kind: KindUpdate, ItemID: key, OldItem: oldItem, NewItem: newItem, Ts: ts})
		}
	}
	for _, key := range old.order {
		if _, kept := nu.rows[key]; !kept {
			recs = append(recs, Record{Kind: KindDelete, ItemID: key, OldItem: old.rows[key], Ts: ts})
		}
	}
	return recs
}

// Checksum returns the hex SHA-256 of the canonical serialization of the
// ordered record sequence.
func Checksum(recs []Record) (string, error) {
	return wire.Checksum(recs)
}

// Apply replays records onto a keyed copy of the parent rows, producing
// the child row set. Sequence order is not recovered; the result is a set
// keyed by item id.
func Apply(parent []wire.Row, recs []Record) map[string]wire.Row {
	out := make(map[string]wire.Row, len(parent))
	for _, row := range parent {
		if key, ok := ItemID(row); ok {
			out[key] = row
		}
	}
	for _, rec := range recs {
		switch rec.Kind {
		case KindAdd, KindUpdate:
			out[rec.ItemID] = rec.NewItem
		case KindDelete:
			delete(out, rec.ItemID)
		}
	}
	return out
}

type keyed struct {
	rows  map[string]wire.Row
	order []string
}

// index builds the identity map for one side, remembering first-appearance
// order. A duplicated key keeps the last row but the first position.
func index(rows []wire.Row, log zerolog.Logger) keyed {
	k := keyed{rows: make(map[string]wire.Row, len(rows))}
	for _, row := range rows {
		key, ok := ItemID(row)
		if !ok {
			log.Warn().Msg("skipping row without id during diff")
			continue
		}
		if _, seen := k.rows[key]; !seen {
			k.order = append(k.order, key)
		}
		k.rows[key] = row
	}
	return k
}
