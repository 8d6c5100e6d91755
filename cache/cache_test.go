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

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, zerolog.Nop()), mr
}

func TestSetNXFirstWriterWins(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	ok, err := c.SetNXWithTTL(ctx, SeenKey("d1", "v1.00000000"), []byte("sum-a"), time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNXWithTTL(ctx, SeenKey("d1", "v1.00000000"), []byte("sum-b"), time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	// The first writer's value survives.
	got, err := c.Get(ctx, SeenKey("d1", "v1.00000000"))
	require.NoError(t, err)
	assert.Equal(t, []byte("sum-a"), got)

	assert.Greater(t, mr.TTL(SeenKey("d1", "v1.00000000")), time.Duration(0))
}

func TestGetMissReturnsNil(t *testing.T) {
	c, _ := newTestCache(t)

	got, err := c.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSetWithTTLExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetWithTTL(ctx, LatestKey("d1"), []byte("v1.00000000"), time.Minute))
	mr.FastForward(2 * time.Minute)

	got, err := c.Get(ctx, LatestKey("d1"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHSetMapping(t *testing.T) {
	c, mr := newTestCache(t)

	err := c.HSetMapping(context.Background(), CurrentKey("d1"), map[string]interface{}{
		"version":  "v1.00000000",
		"checksum": "sum",
		"ts":       int64(100),
	})
	require.NoError(t, err)
	assert.Equal(t, "v1.00000000", mr.HGet(CurrentKey("d1"), "version"))
	assert.Equal(t, "100", mr.HGet(CurrentKey("d1"), "ts"))
}

func TestPublishReachesSubscriber(t *testing.T) {
	c, mr := newTestCache(t)

	sub := mr.NewSubscriber()
	defer sub.Close()
	sub.Subscribe(DatasetTopic("d1"))

	// The subscriber channel is unbuffered; drain it before publishing so
	// the server-side send does not block.
	msgs := make(chan miniredis.PubsubMessage, 1)
	go func() { msgs <- <-sub.Messages() }()

	require.NoError(t, c.Publish(context.Background(), DatasetTopic("d1"), []byte(`{"type":"continent_update"}`)))

	msg := <-msgs
	assert.Equal(t, DatasetTopic("d1"), msg.Channel)
	assert.Contains(t, msg.Message, "continent_update")
}

func TestKeyNamespaces(t *testing.T) {
	assert.Equal(t, "seen:d1:v1.00000000", SeenKey("d1", "v1.00000000"))
	assert.Equal(t, "continent:d1:v1.00000000", SnapshotKey("d1", "v1.00000000"))
	assert.Equal(t, "continent:d1:latest", LatestKey("d1"))
	assert.Equal(t, "continent:d1:current", CurrentKey("d1"))
	assert.Equal(t, "topic:d1", DatasetTopic("d1"))
	assert.Equal(t, "topic:d1:u1", UserTopic("d1", "u1"))
}
