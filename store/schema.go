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

	"github.com/pkg/errors"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS continent_versions (
		dataset_id     VARCHAR(191) NOT NULL,
		version        VARCHAR(64)  NOT NULL,
		checksum       CHAR(64)     NOT NULL,
		ts             BIGINT       NOT NULL,
		parent_version VARCHAR(64)  NULL,
		diff_checksum  CHAR(64)     NULL,
		status         ENUM('pending','ready') NOT NULL DEFAULT 'pending',
		PRIMARY KEY (dataset_id, version),
		KEY idx_dataset_ts (dataset_id, status, ts)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS continent_rows (
		dataset_id VARCHAR(191) NOT NULL,
		version    VARCHAR(64)  NOT NULL,
		seq        INT          NOT NULL,
		item       JSON         NOT NULL,
		PRIMARY KEY (dataset_id, version, seq)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS continent_diffs (
		dataset_id VARCHAR(191) NOT NULL,
		version    VARCHAR(64)  NOT NULL,
		seq        INT          NOT NULL,
		kind       VARCHAR(8)   NOT NULL,
		item_id    VARCHAR(191) NOT NULL,
		old_item   JSON         NULL,
		new_item   JSON         NULL,
		ts         BIGINT       NOT NULL,
		PRIMARY KEY (dataset_id, version, seq)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS continent_cache (
		dataset_id VARCHAR(191) NOT NULL,
		version    VARCHAR(64)  NOT NULL,
		payload    MEDIUMBLOB   NOT NULL,
		expires_at BIGINT       NOT NULL,
		PRIMARY KEY (dataset_id, version)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS user_contexts (
		user_id    VARCHAR(191) NOT NULL,
		dataset_id VARCHAR(191) NOT NULL,
		ctx        JSON         NOT NULL,
		ts         BIGINT       NOT NULL,
		PRIMARY KEY (user_id, dataset_id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS user_views (
		user_id    VARCHAR(191) NOT NULL,
		dataset_id VARCHAR(191) NOT NULL,
		version    VARCHAR(64)  NOT NULL,
		seq        INT          NOT NULL,
		item       JSON         NOT NULL,
		ts         BIGINT       NOT NULL,
		PRIMARY KEY (user_id, dataset_id, version, seq)
	) ENGINE=InnoDB`,
}

// Init creates the schema if it does not exist. Idempotent.
func (s *Store) Init(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
