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

	"github.com/edgectx/continentd/projection"
	"github.com/edgectx/continentd/wire"
)

// UpsertUserContext stores or replaces a user's context for one dataset.
func (s *Store) UpsertUserContext(ctx context.Context, userID, datasetID string, pctx projection.Context, ts int64) error {
	raw, err := json.Marshal(pctx)
	if err != nil {
		return errors.Wrap(err, "marshal user context")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_contexts (user_id, dataset_id, ctx, ts)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE ctx = VALUES(ctx), ts = VALUES(ts)`,
		userID, datasetID, raw, ts)
	return errors.Wrap(err, "upsert user context")
}

// GetUserContext loads a user's context. An absent context is the empty
// context, not an error.
func (s *Store) GetUserContext(ctx context.Context, userID, datasetID string) (projection.Context, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT ctx FROM user_contexts WHERE user_id = ? AND dataset_id = ?`,
		userID, datasetID)

	var raw []byte
	err := row.Scan(&raw)
	if err == sql.ErrNoRows {
		return projection.Context{}, nil
	}
	if err != nil {
		return projection.Context{}, errors.Wrap(err, "get user context")
	}
	var pctx projection.Context
	if err := json.Unmarshal(raw, &pctx); err != nil {
		return projection.Context{}, errors.Wrap(err, "decode user context")
	}
	return pctx, nil
}

// ReplaceUserView rewrites the materialized view for
// (user, dataset, version) end-to-end, preserving the projected order.
func (s *Store) ReplaceUserView(ctx context.Context, userID, datasetID, version string, rows []wire.Row, ts int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin replace view")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM user_views WHERE user_id = ? AND dataset_id = ? AND version = ?`,
		userID, datasetID, version)
	if err != nil {
		return errors.Wrap(err, "clear view")
	}

	for start := 0; start < len(rows); start += wire.RowBatchSize {
		end := start + wire.RowBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		placeholders := make([]string, 0, len(batch))
		args := make([]interface{}, 0, len(batch)*6)
		for i, row := range batch {
			item, err := json.Marshal(row)
			if err != nil {
				return errors.Wrap(err, "marshal view row")
			}
			placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?)")
			args = append(args, userID, datasetID, version, start+i, item, ts)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_views (user_id, dataset_id, version, seq, item, ts) VALUES `+
				strings.Join(placeholders, ", "),
			args...)
		if err != nil {
			return errors.Wrap(err, "insert view rows")
		}
	}
	return errors.Wrap(tx.Commit(), "replace view")
}
