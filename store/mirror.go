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

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// UpsertCacheEntry mirrors a packaged snapshot payload into the durable
// cache table. The payload is snappy-compressed at rest. The mirror is
// best-effort from the workflow's point of view: the hot cache stays
// authoritative for the cache step.
func (s *Store) UpsertCacheEntry(ctx context.Context, datasetID, version string, payload []byte, expiresAt int64) error {
	compressed := snappy.Encode(nil, payload)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO continent_cache (dataset_id, version, payload, expires_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE payload = VALUES(payload), expires_at = VALUES(expires_at)`,
		datasetID, version, compressed, expiresAt)
	return errors.Wrap(err, "upsert cache entry")
}

// GetCacheEntry returns the mirrored payload if present and unexpired at
// now, decompressed. Missing or expired entries return nil bytes.
func (s *Store) GetCacheEntry(ctx context.Context, datasetID, version string, now int64) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT payload FROM continent_cache
		WHERE dataset_id = ? AND version = ? AND expires_at > ?`,
		datasetID, version, now)

	var compressed []byte
	err := row.Scan(&compressed)
	if err == sql.ErrNoRows {
		return nil, nil // absent or expired; callers fall back to rows
	}
	if err != nil {
		return nil, errors.Wrap(err, "get cache entry")
	}
	payload, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, errors.Wrap(err, "decode cache entry")
	}
	return payload, nil
}
