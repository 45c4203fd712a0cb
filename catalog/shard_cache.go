// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package catalog

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/objectdb/common/colstore"
	apierrors "github.com/cubefs/objectdb/errors"
	"github.com/cubefs/objectdb/metrics"
	"github.com/cubefs/objectdb/schema"
	"github.com/cubefs/objectdb/txn"
	"golang.org/x/sync/singleflight"
)

const DefaultShardCacheTTL = 60 * time.Second

type shardEntry struct {
	shards   map[int]time.Time
	loadedAt time.Time
}

// ShardCache caches the shard number to start date map of every sharded table.
// Maps older than the ttl are reloaded from the terms store on the next read.
type ShardCache struct {
	store   colstore.Store
	ttl     time.Duration
	nowFunc func() time.Time

	entries map[string]*shardEntry
	group   singleflight.Group
	lock    sync.Mutex
}

func NewShardCache(store colstore.Store, ttl time.Duration) *ShardCache {
	if ttl <= 0 {
		ttl = DefaultShardCacheTTL
	}
	return &ShardCache{
		store:   store,
		ttl:     ttl,
		nowFunc: time.Now,
		entries: make(map[string]*shardEntry),
	}
}

// GetShardMap returns a copy of the shard map of table, reloading it first
// when it is absent or stale.
func (c *ShardCache) GetShardMap(ctx context.Context, table *schema.TableDef) (map[int]time.Time, error) {
	if !table.IsSharded() {
		return map[int]time.Time{}, nil
	}

	c.lock.Lock()
	entry, ok := c.entries[table.Name]
	if ok && c.nowFunc().Sub(entry.loadedAt) < c.ttl {
		ret := copyShards(entry.shards)
		c.lock.Unlock()
		return ret, nil
	}
	c.lock.Unlock()

	_, err, _ := c.group.Do(table.Name, func() (interface{}, error) {
		return nil, c.refresh(ctx, table)
	})
	if err != nil {
		return nil, err
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	if entry, ok = c.entries[table.Name]; !ok {
		return map[int]time.Time{}, nil
	}
	return copyShards(entry.shards), nil
}

// VerifyShard registers shard n of table if it is not known yet. It is the
// only way a shard registration gets created. Writing the same registration
// twice is harmless since the start date only depends on the table config.
func (c *ShardCache) VerifyShard(ctx context.Context, table *schema.TableDef, n int) error {
	if n <= 0 || !table.IsSharded() {
		return nil
	}
	shards, err := c.GetShardMap(ctx, table)
	if err != nil {
		return err
	}
	if _, ok := shards[n]; ok {
		return nil
	}

	span := trace.SpanFromContextSafe(ctx)
	start := table.ShardStart(n)
	t := txn.NewTransaction(ctx)
	t.AddShardStart(table, n, start)
	storeTxn := c.store.StartTransaction()
	t.ApplyUpdates(storeTxn)
	if err := c.store.Commit(ctx, storeTxn); err != nil {
		span.Errorf("register shard %d of table %s failed: %s", n, table.Name, err)
		return apierrors.NewStoreError(err)
	}
	metrics.ShardsCreated.WithLabelValues(table.Name).Inc()
	span.Infof("registered shard %d of table %s, start: %s", n, table.Name, start)

	c.lock.Lock()
	if entry, ok := c.entries[table.Name]; ok {
		entry.shards[n] = start
	}
	c.lock.Unlock()
	return nil
}

func (c *ShardCache) Clear(table string) {
	c.lock.Lock()
	delete(c.entries, table)
	c.lock.Unlock()
}

func (c *ShardCache) ClearAll() {
	c.lock.Lock()
	c.entries = make(map[string]*shardEntry)
	c.lock.Unlock()
}

func (c *ShardCache) refresh(ctx context.Context, table *schema.TableDef) error {
	span := trace.SpanFromContextSafe(ctx)
	iter, err := c.store.GetAllColumns(ctx, table.TermsStore(), txn.ShardsRow)
	if err != nil {
		return apierrors.NewStoreError(err)
	}
	cols, err := colstore.ReadColumns(iter)
	if err != nil {
		return apierrors.NewStoreError(err)
	}

	shards := make(map[int]time.Time, len(cols))
	for _, col := range cols {
		n, err := strconv.Atoi(col.Name)
		if err != nil {
			span.Warnf("invalid shard number %q in table %s", col.Name, table.Name)
			continue
		}
		start, err := txn.DecodeShardStart(string(col.Value))
		if err != nil {
			span.Warnf("invalid start of shard %d in table %s: %s", n, table.Name, err)
			continue
		}
		shards[n] = start
	}
	metrics.ShardCacheRefreshes.WithLabelValues(table.Name).Inc()
	span.Debugf("loaded %d shards of table %s", len(shards), table.Name)

	c.lock.Lock()
	c.entries[table.Name] = &shardEntry{shards: shards, loadedAt: c.nowFunc()}
	c.lock.Unlock()
	return nil
}

func copyShards(src map[int]time.Time) map[int]time.Time {
	ret := make(map[int]time.Time, len(src))
	for n, start := range src {
		ret[n] = start
	}
	return ret
}
