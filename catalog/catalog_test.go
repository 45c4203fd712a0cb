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
	"sync"
	"testing"
	"time"

	"github.com/cubefs/objectdb/common/colstore"
	apierrors "github.com/cubefs/objectdb/errors"
	"github.com/cubefs/objectdb/schema"
	"github.com/cubefs/objectdb/txn"
	"github.com/stretchr/testify/require"
)

func eventsTable() *schema.TableDef {
	return &schema.TableDef{
		Name: "events",
		Sharding: &schema.ShardingConfig{
			Field:       "ts",
			Granularity: schema.GranularityMonth,
			Start:       "2024-01-01",
		},
		Fields: []*schema.FieldDef{
			{Name: "ts", Type: schema.FieldTypeTimestamp},
			{Name: "owner", Type: schema.FieldTypeLink, Extent: "users", Inverse: "events"},
		},
	}
}

func usersTable() *schema.TableDef {
	return &schema.TableDef{
		Name: "users",
		Fields: []*schema.FieldDef{
			{Name: "name"},
			{Name: "events", Type: schema.FieldTypeLink, Extent: "events", Inverse: "owner"},
		},
	}
}

func newCatalog(t *testing.T) (*Catalog, colstore.Store) {
	store := colstore.NewMemoryStore()
	c := NewCatalog(store, NewShardCache(store, 0))
	require.NoError(t, c.CreateTables(context.TODO(), []*schema.TableDef{eventsTable(), usersTable()}))
	return c, store
}

func TestCatalog_Tables(t *testing.T) {
	ctx := context.TODO()
	c, store := newCatalog(t)

	events, err := c.GetTable("events")
	require.NoError(t, err)
	require.True(t, events.IsSharded())
	require.Len(t, c.Tables(), 2)
	require.Equal(t, "events", c.Tables()[0].Name)

	_, err = c.GetTable("missing")
	require.Equal(t, apierrors.ErrTableNotFound, err)
	require.Equal(t, apierrors.ErrTableAlreadyExists, c.CreateTable(ctx, usersTable()))

	// both stores are usable
	storeTxn := store.StartTransaction()
	storeTxn.AddColumn("events", "o1", "_ID", []byte("o1"))
	storeTxn.AddColumn("events_Terms", "_", "o1", nil)
	require.NoError(t, store.Commit(ctx, storeTxn))

	require.NoError(t, c.DeleteTable(ctx, "events"))
	require.Equal(t, apierrors.ErrTableNotFound, c.DeleteTable(ctx, "events"))
	storeTxn.AddColumn("events", "o1", "_ID", []byte("o1"))
	require.Equal(t, colstore.ErrStoreNotExist, store.Commit(ctx, storeTxn))
}

func TestCatalog_ValidateLinks(t *testing.T) {
	ctx := context.TODO()
	c := NewCatalog(colstore.NewMemoryStore(), NewShardCache(nil, 0))

	// extent table unknown
	err := c.CreateTable(ctx, eventsTable())
	require.True(t, apierrors.IsValidation(err))
	require.ErrorIs(t, err, apierrors.ErrInvalidLinkField)

	// inverse does not point back
	users := usersTable()
	users.Fields[1].Inverse = "name"
	err = c.CreateTables(ctx, []*schema.TableDef{eventsTable(), users})
	require.True(t, apierrors.IsValidation(err))
	require.ErrorIs(t, err, apierrors.ErrInvalidLinkField)
	require.Len(t, c.Tables(), 0)

	// self link without inverse
	require.NoError(t, c.CreateTable(ctx, &schema.TableDef{
		Name:   "docs",
		Fields: []*schema.FieldDef{{Name: "cites", Type: schema.FieldTypeLink}},
	}))
}

func TestShardCache_VerifyShard(t *testing.T) {
	ctx := context.TODO()
	c, store := newCatalog(t)
	cache := c.ShardCache()
	events, _ := c.GetTable("events")
	users, _ := c.GetTable("users")

	shards, err := cache.GetShardMap(ctx, events)
	require.NoError(t, err)
	require.Len(t, shards, 0)

	require.NoError(t, cache.VerifyShard(ctx, events, 0))
	require.NoError(t, cache.VerifyShard(ctx, users, 3))
	require.NoError(t, cache.VerifyShard(ctx, events, 3))
	require.NoError(t, cache.VerifyShard(ctx, events, 3))
	require.NoError(t, cache.VerifyShard(ctx, events, 1))

	shards, err = cache.GetShardMap(ctx, events)
	require.NoError(t, err)
	require.Equal(t, map[int]time.Time{
		1: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		3: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}, shards)

	// the returned map is a copy
	delete(shards, 1)
	shards, _ = cache.GetShardMap(ctx, events)
	require.Len(t, shards, 2)

	// registrations are persisted
	iter, err := store.GetAllColumns(ctx, "events_Terms", txn.ShardsRow)
	require.NoError(t, err)
	cols, err := colstore.ReadColumns(iter)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	require.Equal(t, "1", cols[0].Name)
	require.Equal(t, "1704067200000", string(cols[0].Value))

	shards, err = cache.GetShardMap(ctx, users)
	require.NoError(t, err)
	require.Len(t, shards, 0)
}

func TestShardCache_TTL(t *testing.T) {
	ctx := context.TODO()
	c, store := newCatalog(t)
	events, _ := c.GetTable("events")

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	cache := NewShardCache(store, time.Minute)
	cache.nowFunc = func() time.Time { return now }

	shards, err := cache.GetShardMap(ctx, events)
	require.NoError(t, err)
	require.Len(t, shards, 0)

	// another writer registers a shard behind the cache
	other := NewShardCache(store, time.Minute)
	require.NoError(t, other.VerifyShard(ctx, events, 2))

	now = now.Add(30 * time.Second)
	shards, _ = cache.GetShardMap(ctx, events)
	require.Len(t, shards, 0)

	now = now.Add(31 * time.Second)
	shards, _ = cache.GetShardMap(ctx, events)
	require.Len(t, shards, 1)

	require.NoError(t, other.VerifyShard(ctx, events, 5))
	cache.Clear("events")
	shards, _ = cache.GetShardMap(ctx, events)
	require.Len(t, shards, 2)

	require.NoError(t, other.VerifyShard(ctx, events, 6))
	cache.ClearAll()
	shards, _ = cache.GetShardMap(ctx, events)
	require.Len(t, shards, 3)
}

func TestShardCache_Concurrent(t *testing.T) {
	ctx := context.TODO()
	c, _ := newCatalog(t)
	events, _ := c.GetTable("events")
	cache := c.ShardCache()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(t, cache.VerifyShard(ctx, events, i%4+1))
			if i%5 == 0 {
				cache.Clear("events")
			}
			_, err := cache.GetShardMap(ctx, events)
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	cache.ClearAll()
	shards, err := cache.GetShardMap(ctx, events)
	require.NoError(t, err)
	require.Len(t, shards, 4)
}
