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

// Package pipeline holds the durable workflows of the system and the
// activities they drive. The ingest pipeline runs validate, cache, diff,
// commit and fanout as independently retried steps; the user context
// pipeline persists a context and materializes the projected view.
// Durability, retries and step deadlines are delegated to the
// orchestrator; the activities themselves keep no in-process retry loops.
package pipeline

import (
	"context"
	"time"

	"github.com/edgectx/continentd/diff"
	"github.com/edgectx/continentd/projection"
	"github.com/edgectx/continentd/store"
	"github.com/edgectx/continentd/wire"
)

// Schedule-to-close deadlines, one per step.
const (
	ValidateTimeout = 30 * time.Second
	CacheTimeout    = 60 * time.Second
	DiffTimeout     = 120 * time.Second
	CommitTimeout   = 180 * time.Second
	FanoutTimeout   = 15 * time.Second

	StoreCtxTimeout    = 10 * time.Second
	ProjectViewTimeout = 60 * time.Second
)

// IngestRequest carries one snapshot through the ingest pipeline.
type IngestRequest struct {
	DatasetID string     `json:"dataset_id"`
	Version   string     `json:"version"`
	Checksum  string     `json:"checksum"`
	Rows      []wire.Row `json:"rows"`
}

// ValidateRequest is the validate step input. Row payloads stay out of it;
// validation only needs the count.
type ValidateRequest struct {
	DatasetID string `json:"dataset_id"`
	Version   string `json:"version"`
	Checksum  string `json:"checksum"`
	NumRows   int    `json:"n_rows"`
}

// DiffResult is what the diff step hands to commit.
type DiffResult struct {
	ParentVersion string `json:"parent_version,omitempty"`
	DiffChecksum  string `json:"diff_checksum"`
	DiffCount     int    `json:"diff_count"`
}

// CommitRequest is the commit step input: the ingest plus the diff output.
type CommitRequest struct {
	DatasetID     string     `json:"dataset_id"`
	Version       string     `json:"version"`
	Checksum      string     `json:"checksum"`
	Rows          []wire.Row `json:"rows"`
	ParentVersion string     `json:"parent_version,omitempty"`
	DiffChecksum  string     `json:"diff_checksum,omitempty"`
}

// FanoutRequest is the fanout step input.
type FanoutRequest struct {
	DatasetID string `json:"dataset_id"`
	Version   string `json:"version"`
}

// UserContextRequest carries a context update through its pipeline.
type UserContextRequest struct {
	UserID    string             `json:"user_id"`
	DatasetID string             `json:"dataset_id"`
	Context   projection.Context `json:"ctx"`
}

// ProjectRequest is the project_view step input.
type ProjectRequest struct {
	UserID    string `json:"user_id"`
	DatasetID string `json:"dataset_id"`
}

// DurableStore is the slice of the durable store the activities need.
type DurableStore interface {
	GetVersion(ctx context.Context, datasetID, version string) (*store.VersionRecord, error)
	LatestReadyVersion(ctx context.Context, datasetID string) (string, error)
	GetRows(ctx context.Context, datasetID, version string) ([]wire.Row, error)
	GetDeltas(ctx context.Context, datasetID, version string) ([]diff.Record, error)
	AppendDeltas(ctx context.Context, datasetID, version string, recs []diff.Record) error
	Commit(ctx context.Context, rec store.VersionRecord, rows []wire.Row) error
	UpsertCacheEntry(ctx context.Context, datasetID, version string, payload []byte, expiresAt int64) error
	UpsertUserContext(ctx context.Context, userID, datasetID string, pctx projection.Context, ts int64) error
	GetUserContext(ctx context.Context, userID, datasetID string) (projection.Context, error)
	ReplaceUserView(ctx context.Context, userID, datasetID, version string, rows []wire.Row, ts int64) error
}

// HotCache is the slice of the hot cache the activities need.
type HotCache interface {
	SetNXWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	HSetMapping(ctx context.Context, key string, mapping map[string]interface{}) error
	Publish(ctx context.Context, topic string, payload []byte) error
}
