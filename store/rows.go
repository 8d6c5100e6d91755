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

	"github.com/edgectx/continentd/wire"
)

// ReplaceRows atomically clears and rewrites the row sequence for a
// version. Inserts run in batches of wire.RowBatchSize to bound statement
// size.
func (s *Store) ReplaceRows(ctx context.Context, datasetID, version string, rows []wire.Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin replace rows")
	}
	defer tx.Rollback()

	if err := replaceRowsTx(ctx, tx, datasetID, version, rows); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "replace rows")
}

func replaceRowsTx(ctx context.Context, tx *sql.Tx, datasetID, version string, rows []wire.Row) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM continent_rows WHERE dataset_id = ? AND version = ?`,
		datasetID, version)
	if err != nil {
		return errors.Wrap(err, "clear rows")
	}

	for start := 0; start < len(rows); start += wire.RowBatchSize {
		end := start + wire.RowBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		placeholders := make([]string, 0, len(batch))
		args := make([]interface{}, 0, len(batch)*4)
		for i, row := range batch {
			item, err := json.Marshal(row)
			if err != nil {
				return errors.Wrap(err, "marshal row")
			}
			placeholders = append(placeholders, "(?, ?, ?, ?)")
			args = append(args, datasetID, version, start+i, item)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO continent_rows (dataset_id, version, seq, item) VALUES `+
				strings.Join(placeholders, ", "),
			args...)
		if err != nil {
			return errors.Wrap(err, "insert rows")
		}
	}
	return nil
}

// GetRows returns the exact ordered row sequence of a version.
func (s *Store) GetRows(ctx context.Context, datasetID, version string) ([]wire.Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item FROM continent_rows
		WHERE dataset_id = ? AND version = ?
		ORDER BY seq ASC`,
		datasetID, version)
	if err != nil {
		return nil, errors.Wrap(err, "get rows")
	}
	defer rows.Close()

	var out []wire.Row
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, "scan row")
		}
		var item wire.Row
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, errors.Wrap(err, "decode row")
		}
		out = append(out, item)
	}
	return out, errors.Wrap(rows.Err(), "get rows")
}
