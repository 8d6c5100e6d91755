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

	"github.com/pkg/errors"

	"github.com/edgectx/continentd/cache"
	"github.com/edgectx/continentd/projection"
)

// StoreUserCtx upserts a user's context row.
func (a *Activities) StoreUserCtx(ctx context.Context, req UserContextRequest) error {
	err := a.Store.UpsertUserContext(ctx, req.UserID, req.DatasetID, req.Context, a.Clock())
	if err != nil {
		return errors.Wrap(err, "store user context")
	}
	a.Log.Debug().
		Str("user", req.UserID).
		Str("dataset", req.DatasetID).
		Msg("user context stored")
	return nil
}

// ProjectView materializes the user's view over the current snapshot and
// announces it. A dataset with no ready version produces no output.
func (a *Activities) ProjectView(ctx context.Context, req ProjectRequest) error {
	version, err := a.Store.LatestReadyVersion(ctx, req.DatasetID)
	if err != nil {
		return errors.Wrap(err, "resolve current version")
	}
	if version == "" {
		a.Log.Debug().
			Str("user", req.UserID).
			Str("dataset", req.DatasetID).
			Msg("no ready version, skipping projection")
		return nil
	}

	pctx, err := a.Store.GetUserContext(ctx, req.UserID, req.DatasetID)
	if err != nil {
		return errors.Wrap(err, "load user context")
	}
	rows, err := a.Store.GetRows(ctx, req.DatasetID, version)
	if err != nil {
		return errors.Wrap(err, "load rows")
	}

	projected := projection.Apply(rows, pctx)
	if err := a.Store.ReplaceUserView(ctx, req.UserID, req.DatasetID, version, projected, a.Clock()); err != nil {
		return errors.Wrap(err, "replace user view")
	}

	msg, err := json.Marshal(map[string]interface{}{
		"type":       "view_ready",
		"dataset_id": req.DatasetID,
		"version":    version,
		"user_id":    req.UserID,
	})
	if err != nil {
		return errors.Wrap(err, "encode view_ready")
	}
	if err := a.Cache.Publish(ctx, cache.UserTopic(req.DatasetID, req.UserID), msg); err != nil {
		a.Log.Warn().Err(err).
			Str("user", req.UserID).
			Str("dataset", req.DatasetID).
			Msg("view_ready publish failed")
	}

	a.Log.Info().
		Str("user", req.UserID).
		Str("dataset", req.DatasetID).
		Str("version", version).
		Int("rows", len(projected)).
		Msg("view materialized")
	return nil
}
