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
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edgectx/continentd/wire"
)

// step scopes one activity execution: its own schedule-to-close deadline,
// with the terminal error types excluded from retries.
func step(ctx workflow.Context, timeout time.Duration) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		ScheduleToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			NonRetryableErrorTypes: []string{
				wire.ErrTypeInvalidInput,
				wire.ErrTypeChecksumMismatch,
			},
		},
	})
}

// ContinentIngestWorkflow drives one snapshot through validate, cache,
// diff, commit and fanout. Steps are strictly sequential; every step is a
// suspension point and no in-memory state spans two of them beyond the
// request itself and the diff result.
func ContinentIngestWorkflow(ctx workflow.Context, req IngestRequest) error {
	var a *Activities

	err := workflow.ExecuteActivity(step(ctx, ValidateTimeout), a.ValidateContinent, ValidateRequest{
		DatasetID: req.DatasetID,
		Version:   req.Version,
		Checksum:  req.Checksum,
		NumRows:   len(req.Rows),
	}).Get(ctx, nil)
	if err != nil {
		return err
	}

	err = workflow.ExecuteActivity(step(ctx, CacheTimeout), a.CacheContinentData, req).Get(ctx, nil)
	if err != nil {
		return err
	}

	var diffRes DiffResult
	err = workflow.ExecuteActivity(step(ctx, DiffTimeout), a.ComputeContinentDiff, req).Get(ctx, &diffRes)
	if err != nil {
		return err
	}

	err = workflow.ExecuteActivity(step(ctx, CommitTimeout), a.CommitContinentData, CommitRequest{
		DatasetID:     req.DatasetID,
		Version:       req.Version,
		Checksum:      req.Checksum,
		Rows:          req.Rows,
		ParentVersion: diffRes.ParentVersion,
		DiffChecksum:  diffRes.DiffChecksum,
	}).Get(ctx, nil)
	if err != nil {
		return err
	}

	return workflow.ExecuteActivity(step(ctx, FanoutTimeout), a.FanoutContinentUpdate, FanoutRequest{
		DatasetID: req.DatasetID,
		Version:   req.Version,
	}).Get(ctx, nil)
}

// UserContextWorkflow persists a user's context and materializes the
// projected view over the current snapshot.
func UserContextWorkflow(ctx workflow.Context, req UserContextRequest) error {
	var a *Activities

	err := workflow.ExecuteActivity(step(ctx, StoreCtxTimeout), a.StoreUserCtx, req).Get(ctx, nil)
	if err != nil {
		return err
	}

	return workflow.ExecuteActivity(step(ctx, ProjectViewTimeout), a.ProjectView, ProjectRequest{
		UserID:    req.UserID,
		DatasetID: req.DatasetID,
	}).Get(ctx, nil)
}
