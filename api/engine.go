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

// Package api is the ingress surface: it admits snapshots and context
// updates by starting their pipelines, and serves reads cache-first with
// a durable-store fallback.
package api

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.temporal.io/sdk/client"

	"github.com/edgectx/continentd/cache"
	"github.com/edgectx/continentd/diff"
	"github.com/edgectx/continentd/pipeline"
	"github.com/edgectx/continentd/projection"
	"github.com/edgectx/continentd/store"
	"github.com/edgectx/continentd/wire"
)

// Listing page bounds.
const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// WorkflowStarter is the slice of the orchestrator client the engine
// needs. client.Client satisfies it.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// ReadStore is the slice of the durable store the engine reads from.
type ReadStore interface {
	GetVersion(ctx context.Context, datasetID, version string) (*store.VersionRecord, error)
	LatestReadyVersion(ctx context.Context, datasetID string) (string, error)
	ListReadyVersions(ctx context.Context, datasetID string, limit int) ([]store.VersionInfo, error)
	GetRows(ctx context.Context, datasetID, version string) ([]wire.Row, error)
	GetDeltas(ctx context.Context, datasetID, version string) ([]diff.Record, error)
	GetCacheEntry(ctx context.Context, datasetID, version string, now int64) ([]byte, error)
}

// SnapshotCache is the slice of the hot cache the engine needs.
type SnapshotCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Engine ties the read paths and the pipeline entry points together.
type Engine struct {
	Starter   WorkflowStarter
	Store     ReadStore
	Cache     SnapshotCache
	TaskQueue string
	Log       zerolog.Logger
	Clock     func() int64
}

// NewEngine builds an engine with a wall clock.
func NewEngine(starter WorkflowStarter, st ReadStore, hc SnapshotCache, taskQueue string, log zerolog.Logger) *Engine {
	return &Engine{
		Starter:   starter,
		Store:     st,
		Cache:     hc,
		TaskQueue: taskQueue,
		Log:       log,
		Clock:     func() int64 { return time.Now().Unix() },
	}
}

// IngestAck is the accepted-ingest response.
type IngestAck struct {
	DatasetID  string `json:"dataset_id"`
	Version    string `json:"version"`
	Checksum   string `json:"checksum"`
	NumRows    int    `json:"n_rows"`
	WorkflowID string `json:"workflow_id"`
}

// ContextAck is the accepted-context-update response.
type ContextAck struct {
	UserID     string `json:"user_id"`
	DatasetID  string `json:"dataset_id"`
	WorkflowID string `json:"workflow_id"`
}

// SnapshotResult is a snapshot read plus where it was served from.
type SnapshotResult struct {
	Snapshot *wire.Snapshot
	Source   string
}

// StartIngest derives the version identity from the row content and
// launches the ingest pipeline. The same payload always derives the same
// checksum; the version also folds in the submission second, so a
// resubmitted payload opens a new version rather than colliding.
func (e *Engine) StartIngest(ctx context.Context, datasetID string, rows []wire.Row) (*IngestAck, error) {
	if datasetID == "" {
		return nil, errors.Wrap(wire.ErrInvalidInput, "dataset_id required")
	}
	if len(rows) == 0 {
		return nil, errors.Wrap(wire.ErrInvalidInput, "rows required")
	}
	if len(rows) > wire.MaxRows {
		return nil, errors.Wrapf(wire.ErrInvalidInput, "row count %d exceeds %d", len(rows), wire.MaxRows)
	}

	checksum, err := wire.Checksum(rows)
	if err != nil {
		return nil, errors.Wrap(wire.ErrInvalidInput, err.Error())
	}
	ts := e.Clock()
	version := wire.DeriveVersion(ts, checksum)
	workflowID := wire.IngestWorkflowID(datasetID, version, ts)

	_, err = e.Starter.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: e.TaskQueue,
	}, pipeline.ContinentIngestWorkflow, pipeline.IngestRequest{
		DatasetID: datasetID,
		Version:   version,
		Checksum:  checksum,
		Rows:      rows,
	})
	if err != nil {
		return nil, errors.Wrap(err, "start ingest workflow")
	}

	e.Log.Info().
		Str("dataset", datasetID).
		Str("version", version).
		Int("rows", len(rows)).
		Str("workflow_id", workflowID).
		Msg("ingest accepted")
	return &IngestAck{
		DatasetID:  datasetID,
		Version:    version,
		Checksum:   checksum,
		NumRows:    len(rows),
		WorkflowID: workflowID,
	}, nil
}

// SetContext launches the user context pipeline.
func (e *Engine) SetContext(ctx context.Context, userID, datasetID string, pctx projection.Context) (*ContextAck, error) {
	if userID == "" || datasetID == "" {
		return nil, errors.Wrap(wire.ErrInvalidInput, "user_id and dataset_id required")
	}

	ts := e.Clock()
	workflowID := wire.ContextWorkflowID(userID, datasetID, ts)
	_, err := e.Starter.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: e.TaskQueue,
	}, pipeline.UserContextWorkflow, pipeline.UserContextRequest{
		UserID:    userID,
		DatasetID: datasetID,
		Context:   pctx,
	})
	if err != nil {
		return nil, errors.Wrap(err, "start context workflow")
	}

	e.Log.Info().
		Str("user", userID).
		Str("dataset", datasetID).
		Str("workflow_id", workflowID).
		Msg("context update accepted")
	return &ContextAck{UserID: userID, DatasetID: datasetID, WorkflowID: workflowID}, nil
}

// GetSnapshot serves one snapshot, cache-first. An empty or "latest"
// version resolves to the current version. On a hot-cache miss the
// durable mirror is tried, then the row store; either fallback backfills
// the hot cache.
func (e *Engine) GetSnapshot(ctx context.Context, datasetID, version string) (*SnapshotResult, error) {
	if version == "" || version == "latest" {
		resolved, err := e.resolveLatest(ctx, datasetID)
		if err != nil {
			return nil, err
		}
		version = resolved
	} else if !wire.ValidVersion(version) {
		return nil, errors.Wrapf(wire.ErrInvalidInput, "malformed version %q", version)
	}

	key := cache.SnapshotKey(datasetID, version)
	if payload, err := e.Cache.Get(ctx, key); err != nil {
		e.Log.Warn().Err(err).Str("dataset", datasetID).Msg("hot cache read failed")
	} else if payload != nil {
		snap, err := wire.DecodeSnapshot(payload)
		if err == nil {
			return &SnapshotResult{Snapshot: snap, Source: "cache"}, nil
		}
		e.Log.Warn().Err(err).Str("key", key).Msg("cached snapshot corrupt, falling back")
	}

	if payload, err := e.Store.GetCacheEntry(ctx, datasetID, version, e.Clock()); err != nil {
		return nil, err
	} else if payload != nil {
		snap, err := wire.DecodeSnapshot(payload)
		if err != nil {
			return nil, errors.Wrap(err, "decode mirrored snapshot")
		}
		e.backfill(ctx, key, payload)
		return &SnapshotResult{Snapshot: snap, Source: "database"}, nil
	}

	rec, err := e.Store.GetVersion(ctx, datasetID, version)
	if err != nil {
		return nil, err
	}
	if rec.Status != store.StatusReady {
		return nil, errors.Wrapf(wire.ErrNotFound, "version %s/%s not ready", datasetID, version)
	}
	rows, err := e.Store.GetRows(ctx, datasetID, version)
	if err != nil {
		return nil, err
	}

	snap := &wire.Snapshot{
		Version:       rec.Version,
		Checksum:      rec.Checksum,
		Ts:            rec.Ts,
		Rows:          rows,
		Count:         len(rows),
		ParentVersion: rec.ParentVersion,
		DiffChecksum:  rec.DiffChecksum,
	}
	if payload, err := snap.Encode(); err == nil {
		e.backfill(ctx, key, payload)
	}
	return &SnapshotResult{Snapshot: snap, Source: "database"}, nil
}

// resolveLatest answers "what is current" cache-first, refreshing the
// latest pointer on a miss.
func (e *Engine) resolveLatest(ctx context.Context, datasetID string) (string, error) {
	if b, err := e.Cache.Get(ctx, cache.LatestKey(datasetID)); err == nil && len(b) > 0 {
		return string(b), nil
	}
	version, err := e.Store.LatestReadyVersion(ctx, datasetID)
	if err != nil {
		return "", err
	}
	if version == "" {
		return "", errors.Wrapf(wire.ErrNotFound, "dataset %s has no ready version", datasetID)
	}
	e.backfill(ctx, cache.LatestKey(datasetID), []byte(version))
	return version, nil
}

func (e *Engine) backfill(ctx context.Context, key string, payload []byte) {
	if err := e.Cache.SetWithTTL(ctx, key, payload, wire.TTLSeconds*time.Second); err != nil {
		e.Log.Warn().Err(err).Str("key", key).Msg("cache backfill failed")
	}
}

// ListVersions lists ready versions newest-first. limit <= 0 applies the
// default page size; larger requests clamp to MaxListLimit.
func (e *Engine) ListVersions(ctx context.Context, datasetID string, limit int) ([]store.VersionInfo, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return e.Store.ListReadyVersions(ctx, datasetID, limit)
}

// GetDeltas returns the stored delta sequence of one ready version.
func (e *Engine) GetDeltas(ctx context.Context, datasetID, version string) ([]diff.Record, error) {
	rec, err := e.Store.GetVersion(ctx, datasetID, version)
	if err != nil {
		return nil, err
	}
	if rec.Status != store.StatusReady {
		return nil, errors.Wrapf(wire.ErrNotFound, "version %s/%s not ready", datasetID, version)
	}
	return e.Store.GetDeltas(ctx, datasetID, version)
}

// GetIncremental returns the delta sequence stored against `to` after
// checking both endpoints are ready. Parent chains may fork, so no chain
// relationship between the two versions is required; `from` is validated
// as a readable anchor and nothing more.
func (e *Engine) GetIncremental(ctx context.Context, datasetID, from, to string) ([]diff.Record, error) {
	if from == to {
		return nil, errors.Wrap(wire.ErrInvalidInput, "from and to are the same version")
	}
	for _, version := range []string{from, to} {
		rec, err := e.Store.GetVersion(ctx, datasetID, version)
		if err != nil {
			return nil, err
		}
		if rec.Status != store.StatusReady {
			return nil, errors.Wrapf(wire.ErrNotFound, "version %s/%s not ready", datasetID, version)
		}
	}
	return e.Store.GetDeltas(ctx, datasetID, to)
}
