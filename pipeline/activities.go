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

package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.temporal.io/sdk/temporal"

	"github.com/edgectx/continentd/cache"
	"github.com/edgectx/continentd/diff"
	"github.com/edgectx/continentd/store"
	"github.com/edgectx/continentd/wire"
)

// Activities bundles the task functions of both pipelines. Each method is
// a discrete, idempotent unit the orchestrator may run more than once.
type Activities struct {
	Store DurableStore
	Cache HotCache
	Log   zerolog.Logger

	// Clock stamps commits and delta records; overridable in tests.
	Clock func() int64
}

// NewActivities wires the task functions against real collaborators.
func NewActivities(st DurableStore, hc HotCache, log zerolog.Logger) *Activities {
	return &Activities{
		Store: st,
		Cache: hc,
		Log:   log,
		Clock: func() int64 { return time.Now().Unix() },
	}
}

func invalidInput(msg string) error {
	return temporal.NewNonRetryableApplicationError(msg, wire.ErrTypeInvalidInput, wire.ErrInvalidInput)
}

func checksumMismatch(datasetID, version string) error {
	return temporal.NewNonRetryableApplicationError(
		"checksum mismatch for "+datasetID+"/"+version,
		wire.ErrTypeChecksumMismatch, wire.ErrChecksumMismatch)
}

// ValidateContinent checks the ingest envelope and claims the admission
// key. A repeat claim with the same checksum is fine; a different checksum
// for an already-seen (dataset, version) pair is terminal.
func (a *Activities) ValidateContinent(ctx context.Context, req ValidateRequest) error {
	if req.DatasetID == "" || req.Version == "" || req.Checksum == "" {
		return invalidInput("dataset_id, version and checksum are required")
	}
	if req.NumRows < 0 || req.NumRows > wire.MaxRows {
		return invalidInput("row count out of range")
	}

	key := cache.SeenKey(req.DatasetID, req.Version)
	claimed, err := a.Cache.SetNXWithTTL(ctx, key, []byte(req.Checksum), wire.TTLSeconds*time.Second)
	if err != nil {
		return errors.Wrap(err, "claim admission key")
	}
	if !claimed {
		prev, err := a.Cache.Get(ctx, key)
		if err != nil {
			return errors.Wrap(err, "read admission key")
		}
		if len(prev) > 0 && string(prev) != req.Checksum {
			return checksumMismatch(req.DatasetID, req.Version)
		}
	}

	a.Log.Debug().
		Str("dataset", req.DatasetID).
		Str("version", req.Version).
		Int("rows", req.NumRows).
		Msg("ingest validated")
	return nil
}

// CacheContinentData publishes the packaged snapshot to the hot cache and
// mirrors it into the durable cache table. The hot cache write is
// authoritative for this step; a mirror failure is logged and swallowed.
func (a *Activities) CacheContinentData(ctx context.Context, req IngestRequest) error {
	now := a.Clock()
	snap := wire.Snapshot{
		Version:  req.Version,
		Checksum: req.Checksum,
		Ts:       now,
		Rows:     req.Rows,
		Count:    len(req.Rows),
	}
	payload, err := snap.Encode()
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}

	key := cache.SnapshotKey(req.DatasetID, req.Version)
	if err := a.Cache.SetWithTTL(ctx, key, payload, wire.TTLSeconds*time.Second); err != nil {
		return errors.Wrap(err, "cache snapshot")
	}

	if err := a.Store.UpsertCacheEntry(ctx, req.DatasetID, req.Version, payload, now+wire.TTLSeconds); err != nil {
		a.Log.Warn().Err(err).
			Str("dataset", req.DatasetID).
			Str("version", req.Version).
			Msg("cache mirror write failed")
	}

	a.Log.Info().
		Str("dataset", req.DatasetID).
		Str("version", req.Version).
		Str("rows", humanize.Comma(int64(len(req.Rows)))).
		Msg("snapshot cached")
	return nil
}

// ComputeContinentDiff resolves the parent version, computes the delta
// records and stores them. Re-running against an already-ready identical
// version returns the stored result instead of recomputing, so the parent
// pointer never collapses onto the version itself.
func (a *Activities) ComputeContinentDiff(ctx context.Context, req IngestRequest) (DiffResult, error) {
	existing, err := a.Store.GetVersion(ctx, req.DatasetID, req.Version)
	if err != nil && !errors.Is(err, wire.ErrNotFound) {
		return DiffResult{}, errors.Wrap(err, "load version record")
	}
	if existing != nil && existing.Status == store.StatusReady {
		if existing.Checksum != req.Checksum {
			return DiffResult{}, checksumMismatch(req.DatasetID, req.Version)
		}
		recs, err := a.Store.GetDeltas(ctx, req.DatasetID, req.Version)
		if err != nil {
			return DiffResult{}, errors.Wrap(err, "load stored deltas")
		}
		return DiffResult{
			ParentVersion: existing.ParentVersion,
			DiffChecksum:  existing.DiffChecksum,
			DiffCount:     len(recs),
		}, nil
	}

	parent, err := a.Store.LatestReadyVersion(ctx, req.DatasetID)
	if err != nil {
		return DiffResult{}, errors.Wrap(err, "resolve parent version")
	}
	var parentRows []wire.Row
	if parent != "" {
		parentRows, err = a.Store.GetRows(ctx, req.DatasetID, parent)
		if err != nil {
			return DiffResult{}, errors.Wrap(err, "load parent rows")
		}
	}

	recs := diff.Compute(parentRows, req.Rows, a.Clock(), a.Log)
	sum, err := diff.Checksum(recs)
	if err != nil {
		return DiffResult{}, errors.Wrap(err, "diff checksum")
	}
	if err := a.Store.AppendDeltas(ctx, req.DatasetID, req.Version, recs); err != nil {
		return DiffResult{}, errors.Wrap(err, "store deltas")
	}

	a.Log.Info().
		Str("dataset", req.DatasetID).
		Str("version", req.Version).
		Str("parent", parent).
		Int("deltas", len(recs)).
		Msg("diff computed")
	return DiffResult{ParentVersion: parent, DiffChecksum: sum, DiffCount: len(recs)}, nil
}

// CommitContinentData durably publishes the version and refreshes the
// latest-version cache pointers. The cache refresh is best-effort.
func (a *Activities) CommitContinentData(ctx context.Context, req CommitRequest) error {
	ts := a.Clock()
	err := a.Store.Commit(ctx, store.VersionRecord{
		DatasetID:     req.DatasetID,
		Version:       req.Version,
		Checksum:      req.Checksum,
		Ts:            ts,
		ParentVersion: req.ParentVersion,
		DiffChecksum:  req.DiffChecksum,
		Status:        store.StatusReady,
	}, req.Rows)
	if errors.Is(err, wire.ErrChecksumMismatch) {
		return checksumMismatch(req.DatasetID, req.Version)
	}
	if err != nil {
		return errors.Wrap(err, "commit version")
	}

	if err := a.Cache.SetWithTTL(ctx, cache.LatestKey(req.DatasetID), []byte(req.Version), wire.TTLSeconds*time.Second); err != nil {
		a.Log.Warn().Err(err).Str("dataset", req.DatasetID).Msg("latest pointer update failed")
	}
	if err := a.Cache.HSetMapping(ctx, cache.CurrentKey(req.DatasetID), map[string]interface{}{
		"version":  req.Version,
		"checksum": req.Checksum,
		"ts":       ts,
	}); err != nil {
		a.Log.Warn().Err(err).Str("dataset", req.DatasetID).Msg("current metadata update failed")
	}

	a.Log.Info().
		Str("dataset", req.DatasetID).
		Str("version", req.Version).
		Str("parent", req.ParentVersion).
		Msg("version committed")
	return nil
}

// FanoutContinentUpdate notifies dataset subscribers. Best-effort: a
// publish failure never fails the workflow.
func (a *Activities) FanoutContinentUpdate(ctx context.Context, req FanoutRequest) error {
	msg, err := json.Marshal(map[string]interface{}{
		"type":       "continent_update",
		"dataset_id": req.DatasetID,
		"version":    req.Version,
	})
	if err != nil {
		return errors.Wrap(err, "encode fanout")
	}
	if err := a.Cache.Publish(ctx, cache.DatasetTopic(req.DatasetID), msg); err != nil {
		a.Log.Warn().Err(err).Str("dataset", req.DatasetID).Msg("fanout publish failed")
	}
	return nil
}
