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
	"sort"
	"sync"
	"time"

	"github.com/edgectx/continentd/diff"
	"github.com/edgectx/continentd/projection"
	"github.com/edgectx/continentd/store"
	"github.com/edgectx/continentd/wire"
)

type versionKey struct{ dataset, version string }
type viewKey struct{ user, dataset, version string }
type ctxKey struct{ user, dataset string }

// memStore is an in-memory DurableStore with the same commit semantics as
// the MySQL store: write-once at ready status, identical reingest no-op.
type memStore struct {
	mu       sync.Mutex
	versions map[versionKey]store.VersionRecord
	rows     map[versionKey][]wire.Row
	deltas   map[versionKey][]diff.Record
	mirror   map[versionKey][]byte
	contexts map[ctxKey]projection.Context
	views    map[viewKey][]wire.Row
}

func newMemStore() *memStore {
	return &memStore{
		versions: make(map[versionKey]store.VersionRecord),
		rows:     make(map[versionKey][]wire.Row),
		deltas:   make(map[versionKey][]diff.Record),
		mirror:   make(map[versionKey][]byte),
		contexts: make(map[ctxKey]projection.Context),
		views:    make(map[viewKey][]wire.Row),
	}
}

func (m *memStore) GetVersion(_ context.Context, datasetID, version string) (*store.VersionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.versions[versionKey{datasetID, version}]
	if !ok {
		return nil, wire.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (m *memStore) LatestReadyVersion(_ context.Context, datasetID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ready []store.VersionRecord
	for key, rec := range m.versions {
		if key.dataset == datasetID && rec.Status == store.StatusReady {
			ready = append(ready, rec)
		}
	}
	if len(ready) == 0 {
		return "", nil
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Ts != ready[j].Ts {
			return ready[i].Ts > ready[j].Ts
		}
		return ready[i].Version > ready[j].Version
	})
	return ready[0].Version, nil
}

func (m *memStore) GetRows(_ context.Context, datasetID, version string) ([]wire.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[versionKey{datasetID, version}], nil
}

func (m *memStore) GetDeltas(_ context.Context, datasetID, version string) ([]diff.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deltas[versionKey{datasetID, version}], nil
}

func (m *memStore) AppendDeltas(_ context.Context, datasetID, version string, recs []diff.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deltas[versionKey{datasetID, version}] = append([]diff.Record(nil), recs...)
	return nil
}

func (m *memStore) Commit(_ context.Context, rec store.VersionRecord, rows []wire.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := versionKey{rec.DatasetID, rec.Version}
	if existing, ok := m.versions[key]; ok && existing.Status == store.StatusReady {
		if existing.Checksum != rec.Checksum {
			return wire.ErrChecksumMismatch
		}
		return nil
	}
	rec.Status = store.StatusReady
	m.versions[key] = rec
	m.rows[key] = append([]wire.Row(nil), rows...)
	return nil
}

func (m *memStore) UpsertCacheEntry(_ context.Context, datasetID, version string, payload []byte, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mirror[versionKey{datasetID, version}] = payload
	return nil
}

func (m *memStore) UpsertUserContext(_ context.Context, userID, datasetID string, pctx projection.Context, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contexts[ctxKey{userID, datasetID}] = pctx
	return nil
}

func (m *memStore) GetUserContext(_ context.Context, userID, datasetID string) (projection.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contexts[ctxKey{userID, datasetID}], nil
}

func (m *memStore) ReplaceUserView(_ context.Context, userID, datasetID, version string, rows []wire.Row, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views[viewKey{userID, datasetID, version}] = append([]wire.Row(nil), rows...)
	return nil
}

type published struct {
	topic   string
	payload []byte
}

// memCache is an in-memory HotCache recording published messages.
type memCache struct {
	mu     sync.Mutex
	kv     map[string][]byte
	hashes map[string]map[string]interface{}
	msgs   []published
}

func newMemCache() *memCache {
	return &memCache{
		kv:     make(map[string][]byte),
		hashes: make(map[string]map[string]interface{}),
	}
}

func (c *memCache) SetNXWithTTL(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.kv[key]; ok {
		return false, nil
	}
	c.kv[key] = value
	return true, nil
}

func (c *memCache) SetWithTTL(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kv[key] = value
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kv[key], nil
}

func (c *memCache) HSetMapping(_ context.Context, key string, mapping map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hashes[key] = mapping
	return nil
}

func (c *memCache) Publish(_ context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, published{topic: topic, payload: payload})
	return nil
}

func (c *memCache) drop(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.kv, key)
}

func (c *memCache) topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.msgs))
	for i, m := range c.msgs {
		out[i] = m.topic
	}
	return out
}
