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
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"

	"github.com/edgectx/continentd/cache"
	"github.com/edgectx/continentd/diff"
	"github.com/edgectx/continentd/projection"
	"github.com/edgectx/continentd/wire"
)

// harness wires activities against in-memory collaborators with a
// deterministic clock.
type harness struct {
	a     *Activities
	st    *memStore
	hc    *memCache
	clock int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{st: newMemStore(), hc: newMemCache(), clock: 1000}
	h.a = NewActivities(h.st, h.hc, zerolog.Nop())
	h.a.Clock = func() int64 {
		h.clock++
		return h.clock
	}
	return h
}

// ingest runs the five steps in workflow order.
func (h *harness) ingest(t *testing.T, datasetID string, rows []wire.Row) (string, error) {
	t.Helper()
	checksum, err := wire.Checksum(rows)
	require.NoError(t, err)
	version := wire.DeriveVersion(h.clock, checksum)
	return version, h.ingestAs(t, datasetID, version, checksum, rows)
}

func (h *harness) ingestAs(t *testing.T, datasetID, version, checksum string, rows []wire.Row) error {
	t.Helper()
	ctx := context.Background()
	req := IngestRequest{DatasetID: datasetID, Version: version, Checksum: checksum, Rows: rows}

	if err := h.a.ValidateContinent(ctx, ValidateRequest{
		DatasetID: datasetID, Version: version, Checksum: checksum, NumRows: len(rows),
	}); err != nil {
		return err
	}
	if err := h.a.CacheContinentData(ctx, req); err != nil {
		return err
	}
	diffRes, err := h.a.ComputeContinentDiff(ctx, req)
	if err != nil {
		return err
	}
	if err := h.a.CommitContinentData(ctx, CommitRequest{
		DatasetID: datasetID, Version: version, Checksum: checksum, Rows: rows,
		ParentVersion: diffRes.ParentVersion, DiffChecksum: diffRes.DiffChecksum,
	}); err != nil {
		return err
	}
	return h.a.FanoutContinentUpdate(ctx, FanoutRequest{DatasetID: datasetID, Version: version})
}

func kindsOf(recs []diff.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = string(r.Kind) + ":" + r.ItemID
	}
	return out
}

func TestFirstIngestAddsAll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	v1, err := h.ingest(t, "d1", []wire.Row{{"id": 1, "s": "a"}, {"id": 2, "s": "b"}})
	require.NoError(t, err)

	latest, err := h.st.LatestReadyVersion(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, v1, latest)

	rec, err := h.st.GetVersion(ctx, "d1", v1)
	require.NoError(t, err)
	assert.Empty(t, rec.ParentVersion)
	assert.NotEmpty(t, rec.DiffChecksum)

	recs, err := h.st.GetDeltas(ctx, "d1", v1)
	require.NoError(t, err)
	assert.Equal(t, []string{"add:1", "add:2"}, kindsOf(recs))

	// Snapshot landed in the hot cache, latest pointer refreshed, fanout sent.
	snap, err := h.hc.Get(ctx, cache.SnapshotKey("d1", v1))
	require.NoError(t, err)
	assert.NotEmpty(t, snap)
	latestPtr, err := h.hc.Get(ctx, cache.LatestKey("d1"))
	require.NoError(t, err)
	assert.Equal(t, v1, string(latestPtr))
	assert.Contains(t, h.hc.topics(), cache.DatasetTopic("d1"))
}

func TestSecondIngestEmitsUpdate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	v1, err := h.ingest(t, "d1", []wire.Row{{"id": 1, "s": "a"}, {"id": 2, "s": "b"}})
	require.NoError(t, err)
	v2, err := h.ingest(t, "d1", []wire.Row{{"id": 1, "s": "a"}, {"id": 2, "s": "c"}})
	require.NoError(t, err)

	rec, err := h.st.GetVersion(ctx, "d1", v2)
	require.NoError(t, err)
	assert.Equal(t, v1, rec.ParentVersion)

	recs, err := h.st.GetDeltas(ctx, "d1", v2)
	require.NoError(t, err)
	assert.Equal(t, []string{"update:2"}, kindsOf(recs))
	assert.Equal(t, wire.Row{"id": 2, "s": "b"}, recs[0].OldItem)
	assert.Equal(t, wire.Row{"id": 2, "s": "c"}, recs[0].NewItem)
}

func TestThirdIngestAddThenDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ingest(t, "d1", []wire.Row{{"id": 1, "s": "a"}, {"id": 2, "s": "c"}})
	require.NoError(t, err)
	v3, err := h.ingest(t, "d1", []wire.Row{{"id": 2, "s": "c"}, {"id": 3, "s": "d"}})
	require.NoError(t, err)

	recs, err := h.st.GetDeltas(ctx, "d1", v3)
	require.NoError(t, err)
	assert.Equal(t, []string{"add:3", "delete:1"}, kindsOf(recs))
}

func TestReingestIdenticalIsNoOp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rows := []wire.Row{{"id": 1, "s": "a"}, {"id": 2, "s": "b"}}
	v1, err := h.ingest(t, "d1", rows)
	require.NoError(t, err)

	before, err := h.st.GetVersion(ctx, "d1", v1)
	require.NoError(t, err)
	deltasBefore, err := h.st.GetDeltas(ctx, "d1", v1)
	require.NoError(t, err)

	checksum, err := wire.Checksum(rows)
	require.NoError(t, err)
	require.NoError(t, h.ingestAs(t, "d1", v1, checksum, rows))

	after, err := h.st.GetVersion(ctx, "d1", v1)
	require.NoError(t, err)
	assert.Equal(t, before.Ts, after.Ts, "commit ts survives identical reingest")
	assert.Equal(t, before.ParentVersion, after.ParentVersion, "parent never collapses onto self")
	assert.Equal(t, before.DiffChecksum, after.DiffChecksum)

	deltasAfter, err := h.st.GetDeltas(ctx, "d1", v1)
	require.NoError(t, err)
	assert.Equal(t, len(deltasBefore), len(deltasAfter), "no delta duplication")
}

func TestReingestDivergentFailsAtValidate(t *testing.T) {
	h := newHarness(t)

	rows := []wire.Row{{"id": 1, "s": "a"}}
	v1, err := h.ingest(t, "d1", rows)
	require.NoError(t, err)

	err = h.ingestAs(t, "d1", v1, "0000000000000000000000000000000000000000000000000000000000000000", []wire.Row{{"id": 1, "s": "z"}})
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, wire.ErrTypeChecksumMismatch, appErr.Type())
	assert.True(t, appErr.NonRetryable())
}

func TestReingestDivergentCaughtAfterAdmissionKeyExpiry(t *testing.T) {
	h := newHarness(t)

	rows := []wire.Row{{"id": 1, "s": "a"}}
	v1, err := h.ingest(t, "d1", rows)
	require.NoError(t, err)

	// Simulate the 24h TTL expiring; validation can no longer see the
	// first checksum, so the mismatch must be caught downstream.
	h.hc.drop(cache.SeenKey("d1", v1))

	err = h.ingestAs(t, "d1", v1, "0000000000000000000000000000000000000000000000000000000000000000", []wire.Row{{"id": 1, "s": "z"}})
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, wire.ErrTypeChecksumMismatch, appErr.Type())
}

func TestValidateRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := []ValidateRequest{
		{DatasetID: "", Version: "v1.00000000", Checksum: "x", NumRows: 1},
		{DatasetID: "d1", Version: "", Checksum: "x", NumRows: 1},
		{DatasetID: "d1", Version: "v1.00000000", Checksum: "", NumRows: 1},
		{DatasetID: "d1", Version: "v1.00000000", Checksum: "x", NumRows: -1},
		{DatasetID: "d1", Version: "v1.00000000", Checksum: "x", NumRows: wire.MaxRows + 1},
	}
	for _, req := range cases {
		err := h.a.ValidateContinent(ctx, req)
		var appErr *temporal.ApplicationError
		require.True(t, errors.As(err, &appErr), "%+v", req)
		assert.Equal(t, wire.ErrTypeInvalidInput, appErr.Type())
	}
}

func TestIdempotentIngestEndState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rows := []wire.Row{{"id": 1, "s": "a"}, {"id": 2, "s": "b"}}
	v1, err := h.ingest(t, "d1", rows)
	require.NoError(t, err)
	checksum, err := wire.Checksum(rows)
	require.NoError(t, err)

	stateOf := func() (string, int, string) {
		latest, err := h.st.LatestReadyVersion(ctx, "d1")
		require.NoError(t, err)
		recs, err := h.st.GetDeltas(ctx, "d1", v1)
		require.NoError(t, err)
		rec, err := h.st.GetVersion(ctx, "d1", v1)
		require.NoError(t, err)
		return latest, len(recs), rec.DiffChecksum
	}

	l1, n1, d1 := stateOf()
	require.NoError(t, h.ingestAs(t, "d1", v1, checksum, rows))
	l2, n2, d2 := stateOf()

	assert.Equal(t, l1, l2)
	assert.Equal(t, n1, n2)
	assert.Equal(t, d1, d2)
}

func TestProjectViewFilterSortAndNotify(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ingest(t, "d1", []wire.Row{
		{"id": 1, "status": "new", "country": "IN", "amount": 1200},
		{"id": 2, "status": "shipped", "country": "US", "amount": 800},
		{"id": 3, "status": "new", "country": "IN", "amount": 1500},
	})
	require.NoError(t, err)

	req := UserContextRequest{
		UserID:    "u1",
		DatasetID: "d1",
		Context: projection.Context{
			Filters: map[string]interface{}{
				"status":  []interface{}{"new"},
				"country": "IN",
			},
			Sort: &projection.Sort{By: "amount", Desc: true},
		},
	}
	require.NoError(t, h.a.StoreUserCtx(ctx, req))
	require.NoError(t, h.a.ProjectView(ctx, ProjectRequest{UserID: "u1", DatasetID: "d1"}))

	version, err := h.st.LatestReadyVersion(ctx, "d1")
	require.NoError(t, err)
	view := h.st.views[viewKey{"u1", "d1", version}]
	require.Len(t, view, 2)
	assert.Equal(t, 3, view[0]["id"])
	assert.Equal(t, 1, view[1]["id"])

	assert.Contains(t, h.hc.topics(), cache.UserTopic("d1", "u1"))
}

func TestProjectViewWithoutReadyVersionIsSilent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.a.StoreUserCtx(ctx, UserContextRequest{UserID: "u1", DatasetID: "empty"}))
	require.NoError(t, h.a.ProjectView(ctx, ProjectRequest{UserID: "u1", DatasetID: "empty"}))

	assert.Empty(t, h.hc.topics())
}

func TestProjectViewReprojectsOnNewVersion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ingest(t, "d1", []wire.Row{{"id": 1, "amount": 1}})
	require.NoError(t, err)
	require.NoError(t, h.a.StoreUserCtx(ctx, UserContextRequest{UserID: "u1", DatasetID: "d1"}))
	require.NoError(t, h.a.ProjectView(ctx, ProjectRequest{UserID: "u1", DatasetID: "d1"}))

	v2, err := h.ingest(t, "d1", []wire.Row{{"id": 1, "amount": 2}})
	require.NoError(t, err)
	require.NoError(t, h.a.ProjectView(ctx, ProjectRequest{UserID: "u1", DatasetID: "d1"}))

	view := h.st.views[viewKey{"u1", "d1", v2}]
	require.Len(t, view, 1)
	assert.Equal(t, 2, view[0]["amount"])
}
