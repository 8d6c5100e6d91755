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

package api

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/client"

	"github.com/edgectx/continentd/diff"
	"github.com/edgectx/continentd/store"
	"github.com/edgectx/continentd/wire"
)

type startedWorkflow struct {
	options  client.StartWorkflowOptions
	workflow interface{}
	args     []interface{}
}

// fakeStarter records workflow starts instead of dispatching them.
type fakeStarter struct {
	started []startedWorkflow
	err     error
}

func (f *fakeStarter) ExecuteWorkflow(_ context.Context, options client.StartWorkflowOptions, wf interface{}, args ...interface{}) (client.WorkflowRun, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.started = append(f.started, startedWorkflow{options: options, workflow: wf, args: args})
	return nil, nil
}

type versionKey struct{ dataset, version string }

// fakeStore is an in-memory ReadStore.
type fakeStore struct {
	versions map[versionKey]store.VersionRecord
	rows     map[versionKey][]wire.Row
	deltas   map[versionKey][]diff.Record
	mirror   map[versionKey][]byte
	latest   map[string]string
	infos    map[string][]store.VersionInfo
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		versions: make(map[versionKey]store.VersionRecord),
		rows:     make(map[versionKey][]wire.Row),
		deltas:   make(map[versionKey][]diff.Record),
		mirror:   make(map[versionKey][]byte),
		latest:   make(map[string]string),
		infos:    make(map[string][]store.VersionInfo),
	}
}

func (f *fakeStore) GetVersion(_ context.Context, datasetID, version string) (*store.VersionRecord, error) {
	rec, ok := f.versions[versionKey{datasetID, version}]
	if !ok {
		return nil, wire.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (f *fakeStore) LatestReadyVersion(_ context.Context, datasetID string) (string, error) {
	return f.latest[datasetID], nil
}

func (f *fakeStore) ListReadyVersions(_ context.Context, datasetID string, limit int) ([]store.VersionInfo, error) {
	infos := f.infos[datasetID]
	if len(infos) > limit {
		infos = infos[:limit]
	}
	return infos, nil
}

func (f *fakeStore) GetRows(_ context.Context, datasetID, version string) ([]wire.Row, error) {
	return f.rows[versionKey{datasetID, version}], nil
}

func (f *fakeStore) GetDeltas(_ context.Context, datasetID, version string) ([]diff.Record, error) {
	return f.deltas[versionKey{datasetID, version}], nil
}

func (f *fakeStore) GetCacheEntry(_ context.Context, datasetID, version string, _ int64) ([]byte, error) {
	return f.mirror[versionKey{datasetID, version}], nil
}

// fakeCache is an in-memory SnapshotCache.
type fakeCache struct {
	kv map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{kv: make(map[string][]byte)}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	return c.kv[key], nil
}

func (c *fakeCache) SetWithTTL(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.kv[key] = value
	return nil
}

type apiHarness struct {
	engine  *Engine
	starter *fakeStarter
	st      *fakeStore
	hc      *fakeCache
}

func newAPIHarness() *apiHarness {
	starter := &fakeStarter{}
	st := newFakeStore()
	hc := newFakeCache()
	engine := NewEngine(starter, st, hc, "edge-tq", zerolog.Nop())
	engine.Clock = func() int64 { return 1000 }
	return &apiHarness{engine: engine, starter: starter, st: st, hc: hc}
}

// seedReady installs a committed version in the fake store.
func (h *apiHarness) seedReady(datasetID, version, checksum, parent string, ts int64, rows []wire.Row) {
	key := versionKey{datasetID, version}
	h.st.versions[key] = store.VersionRecord{
		DatasetID:     datasetID,
		Version:       version,
		Checksum:      checksum,
		Ts:            ts,
		ParentVersion: parent,
		Status:        store.StatusReady,
	}
	h.st.rows[key] = rows
	h.st.latest[datasetID] = version
}
