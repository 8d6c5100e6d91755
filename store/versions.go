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

	"github.com/pkg/errors"

	"github.com/edgectx/continentd/wire"
)

// Version status values. A version transitions pending -> ready exactly
// once and never reverses; only ready versions are observable.
const (
	StatusPending = "pending"
	StatusReady   = "ready"
)

// VersionRecord is one row of continent_versions. Empty ParentVersion and
// DiffChecksum persist as NULL.
type VersionRecord struct {
	DatasetID     string
	Version       string
	Checksum      string
	Ts            int64
	ParentVersion string
	DiffChecksum  string
	Status        string
}

// VersionInfo is a listing entry: the record plus its row count.
type VersionInfo struct {
	Version       string `json:"version"`
	Checksum      string `json:"checksum"`
	Ts            int64  `json:"ts"`
	ParentVersion string `json:"parent_version,omitempty"`
	DiffChecksum  string `json:"diff_checksum,omitempty"`
	RowCount      int    `json:"row_count"`
}

// UpsertVersion inserts or overwrites a version record.
func (s *Store) UpsertVersion(ctx context.Context, rec VersionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO continent_versions
			(dataset_id, version, checksum, ts, parent_version, diff_checksum, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			checksum = VALUES(checksum),
			ts = VALUES(ts),
			parent_version = VALUES(parent_version),
			diff_checksum = VALUES(diff_checksum),
			status = VALUES(status)`,
		rec.DatasetID, rec.Version, rec.Checksum, rec.Ts,
		nullable(rec.ParentVersion), nullable(rec.DiffChecksum), rec.Status)
	return errors.Wrap(err, "upsert version")
}

// GetVersion fetches a version record regardless of status. Returns
// wire.ErrNotFound when the pair is absent.
func (s *Store) GetVersion(ctx context.Context, datasetID, version string) (*VersionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT checksum, ts, parent_version, diff_checksum, status
		FROM continent_versions
		WHERE dataset_id = ? AND version = ?`,
		datasetID, version)

	rec := VersionRecord{DatasetID: datasetID, Version: version}
	var parent, diffSum sql.NullString
	err := row.Scan(&rec.Checksum, &rec.Ts, &parent, &diffSum, &rec.Status)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(wire.ErrNotFound, "version %s/%s", datasetID, version)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get version")
	}
	rec.ParentVersion = parent.String
	rec.DiffChecksum = diffSum.String
	return &rec, nil
}

// LatestReadyVersion returns the ready version with the greatest commit
// ts, ties broken by version descending. Empty string when the dataset has
// no ready version.
func (s *Store) LatestReadyVersion(ctx context.Context, datasetID string) (string, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT version FROM continent_versions
		WHERE dataset_id = ? AND status = 'ready'
		ORDER BY ts DESC, version DESC
		LIMIT 1`,
		datasetID)

	var version string
	err := row.Scan(&version)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "latest ready version")
	}
	return version, nil
}

// ListReadyVersions returns the newest limit ready versions with their row
// counts, descending by commit ts.
func (s *Store) ListReadyVersions(ctx context.Context, datasetID string, limit int) ([]VersionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.version, v.checksum, v.ts, v.parent_version, v.diff_checksum,
			(SELECT COUNT(*) FROM continent_rows r
			 WHERE r.dataset_id = v.dataset_id AND r.version = v.version) AS row_count
		FROM continent_versions v
		WHERE v.dataset_id = ? AND v.status = 'ready'
		ORDER BY v.ts DESC, v.version DESC
		LIMIT ?`,
		datasetID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list ready versions")
	}
	defer rows.Close()

	var out []VersionInfo
	for rows.Next() {
		var info VersionInfo
		var parent, diffSum sql.NullString
		if err := rows.Scan(&info.Version, &info.Checksum, &info.Ts, &parent, &diffSum, &info.RowCount); err != nil {
			return nil, errors.Wrap(err, "scan version info")
		}
		info.ParentVersion = parent.String
		info.DiffChecksum = diffSum.String
		out = append(out, info)
	}
	return out, errors.Wrap(rows.Err(), "list ready versions")
}

// Commit atomically publishes a version: the version record flips to
// ready and the row sequence is replaced in the same transaction, so a
// reader can never observe a ready version with a partial row set.
//
// An existing ready record with the same checksum makes the whole commit
// a no-op; with a different checksum it fails with wire.ErrChecksumMismatch
// even after the admission key has expired.
func (s *Store) Commit(ctx context.Context, rec VersionRecord, rows []wire.Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin commit")
	}
	defer tx.Rollback()

	var existingSum, existingStatus string
	err = tx.QueryRowContext(ctx, `
		SELECT checksum, status FROM continent_versions
		WHERE dataset_id = ? AND version = ? FOR UPDATE`,
		rec.DatasetID, rec.Version).Scan(&existingSum, &existingStatus)
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(err, "commit precheck")
	}
	if err == nil && existingStatus == StatusReady {
		if existingSum != rec.Checksum {
			return errors.Wrapf(wire.ErrChecksumMismatch, "version %s/%s", rec.DatasetID, rec.Version)
		}
		// Identical reingest: already committed, leave everything as-is.
		return nil
	}

	rec.Status = StatusReady
	_, err = tx.ExecContext(ctx, `
		INSERT INTO continent_versions
			(dataset_id, version, checksum, ts, parent_version, diff_checksum, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			checksum = VALUES(checksum),
			ts = VALUES(ts),
			parent_version = VALUES(parent_version),
			diff_checksum = VALUES(diff_checksum),
			status = VALUES(status)`,
		rec.DatasetID, rec.Version, rec.Checksum, rec.Ts,
		nullable(rec.ParentVersion), nullable(rec.DiffChecksum), rec.Status)
	if err != nil {
		return errors.Wrap(err, "commit version")
	}

	if err := replaceRowsTx(ctx, tx, rec.DatasetID, rec.Version, rows); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit")
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
