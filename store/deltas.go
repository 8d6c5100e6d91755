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

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/edgectx/continentd/diff"
	"github.com/edgectx/continentd/wire"
)

// AppendDeltas stores the delta sequence for a version in insertion
// order, batched by wire.DeltaBatchSize. Any records already stored for
// the pair are cleared in the same transaction, so a retried diff step
// never double-inserts.
func (s *Store) AppendDeltas(ctx context.Context, datasetID, version string, recs []diff.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin append deltas")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM continent_diffs WHERE dataset_id = ? AND version = ?`,
		datasetID, version)
	if err != nil {
		return errors.Wrap(err, "clear deltas")
	}

	for start := 0; start < len(recs); start += wire.DeltaBatchSize {
		end := start + wire.DeltaBatchSize
		if end > len(recs) {
			end = len(recs)
		}
		batch := recs[start:end]

		placeholders := make([]string, 0, len(batch))
		args := make([]interface{}, 0, len(batch)*8)
		for i, rec := range batch {
			oldItem, err := jsonOrNull(rec.OldItem)
			if err != nil {
				return err
			}
			newItem, err := jsonOrNull(rec.NewItem)
			if err != nil {
				return err
			}
			placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, datasetID, version, start+i, string(rec.Kind), rec.ItemID, oldItem, newItem, rec.Ts)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO continent_diffs (dataset_id, version, seq, kind, item_id, old_item, new_item, ts) VALUES `+
				strings.Join(placeholders, ", "),
			args...)
		if err != nil {
			return errors.Wrap(err, "insert deltas")
		}
	}
	return errors.Wrap(tx.Commit(), "append deltas")
}

// GetDeltas returns the stored delta sequence in insertion order.
func (s *Store) GetDeltas(ctx context.Context, datasetID, version string) ([]diff.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, item_id, old_item, new_item, ts
		FROM continent_diffs
		WHERE dataset_id = ? AND version = ?
		ORDER BY seq ASC`,
		datasetID, version)
	if err != nil {
		return nil, errors.Wrap(err, "get deltas")
	}
	defer rows.Close()

	var out []diff.Record
	for rows.Next() {
		var rec diff.Record
		var kind string
		var oldItem, newItem sql.RawBytes
		if err := rows.Scan(&kind, &rec.ItemID, &oldItem, &newItem, &rec.Ts); err != nil {
			return nil, errors.Wrap(err, "scan delta")
		}
		rec.Kind = diff.Kind(kind)
		if len(oldItem) > 0 {
			if err := json.Unmarshal(oldItem, &rec.OldItem); err != nil {
				return nil, errors.Wrap(err, "decode old item")
			}
		}
		if len(newItem) > 0 {
			if err := json.Unmarshal(newItem, &rec.NewItem); err != nil {
				return nil, errors.Wrap(err, "decode new item")
			}
		}
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "get deltas")
}

func jsonOrNull(row wire.Row) (interface{}, error) {
	if row == nil {
		return nil, nil
	}
	b, err := json.Marshal(row)
	if err != nil {
		return nil, errors.Wrap(err, "marshal delta item")
	}
	return b, nil
}
