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

// Package cache is the hot cache: a low-latency key/value and pub/sub
// fabric over Redis for current-version snapshots, admission keys and
// fanout. Delivery of published messages is best-effort; consumers fall
// back to the durable store.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Cache wraps a Redis client with the key contracts of the system.
type Cache struct {
	rdb *redis.Client
	log zerolog.Logger
}

// New wraps an existing client.
func New(rdb *redis.Client, log zerolog.Logger) *Cache {
	return &Cache{rdb: rdb, log: log}
}

// Open connects using a redis:// URL.
func Open(url string, log zerolog.Logger) (*Cache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return New(redis.NewClient(opt), log), nil
}

// Close releases the client.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SetNXWithTTL atomically claims key for the first writer. Returns true
// iff the key did not previously exist.
func (c *Cache) SetNXWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

// SetWithTTL stores value under key with an expiration.
func (c *Cache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Get returns the value under key, or nil bytes on a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return b, err
}

// HSetMapping writes all fields of a hash in one call.
func (c *Cache) HSetMapping(ctx context.Context, key string, mapping map[string]interface{}) error {
	return c.rdb.HSet(ctx, key, mapping).Err()
}

// Publish fans payload out to topic subscribers. Best-effort.
func (c *Cache) Publish(ctx context.Context, topic string, payload []byte) error {
	return c.rdb.Publish(ctx, topic, payload).Err()
}

// Key namespaces. TTLs on all of these are wire.TTLSeconds.

// SeenKey holds the first-seen checksum for a (dataset, version) pair and
// acts as the cross-workflow admission lock.
func SeenKey(datasetID, version string) string {
	return fmt.Sprintf("seen:%s:%s", datasetID, version)
}

// SnapshotKey holds the packaged snapshot payload for one version.
func SnapshotKey(datasetID, version string) string {
	return fmt.Sprintf("continent:%s:%s", datasetID, version)
}

// LatestKey holds the latest version identifier for a dataset.
func LatestKey(datasetID string) string {
	return fmt.Sprintf("continent:%s:latest", datasetID)
}

// CurrentKey is the hash carrying latest-version metadata for a dataset.
func CurrentKey(datasetID string) string {
	return fmt.Sprintf("continent:%s:current", datasetID)
}

// DatasetTopic carries dataset-wide version update events.
func DatasetTopic(datasetID string) string {
	return fmt.Sprintf("topic:%s", datasetID)
}

// UserTopic carries per-user view-ready events.
func UserTopic(datasetID, userID string) string {
	return fmt.Sprintf("topic:%s:%s", datasetID, userID)
}
