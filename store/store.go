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

// Package store is the durable store: the only authoritative home of
// version records, row payloads, delta records, user contexts and
// materialized views. It is backed by MySQL and isolates writers by
// (dataset_id, version) primary keys; there are no cross-writer locks.
package store

import (
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Store wraps the bounded connection pool. All methods are safe for
// concurrent use.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// New wraps an existing handle, applying pool bounds.
func New(db *sql.DB, poolSize int, log zerolog.Logger) *Store {
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db, log: log}
}

// Open connects to MySQL with the given DSN and bounds the pool to
// poolSize connections. The schema is not touched; call Init for that.
func Open(dsn string, poolSize int, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	return New(db, poolSize, log), nil
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}
