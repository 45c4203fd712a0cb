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

package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubefs/objectdb/catalog"
	"github.com/cubefs/objectdb/common/colstore"
	"github.com/cubefs/objectdb/schema"
)

func newTestReader(t *testing.T) (*Reader, colstore.Store) {
	store := colstore.NewMemoryStore()
	c := catalog.NewCatalog(store, catalog.NewShardCache(store, 0))
	require.NoError(t, c.CreateTable(context.TODO(), &schema.TableDef{
		Name: "events",
		Sharding: &schema.ShardingConfig{
			Field:       "ts",
			Granularity: schema.GranularityMonth,
			Start:       "2024-01-01",
		},
		Fields: []*schema.FieldDef{
			{Name: "ts", Type: schema.FieldTypeTimestamp},
			{Name: "name"},
		},
	}))
	return NewReader(c), store
}

func writeColumns(t *testing.T, store colstore.Store, storeName, row string, cols ...string) {
	storeTxn := store.StartTransaction()
	for _, col := range cols {
		storeTxn.AddColumn(storeName, row, col, nil)
	}
	require.NoError(t, store.Commit(context.TODO(), storeTxn))
}

func TestFanOut_SingleSource(t *testing.T) {
	ctx := context.TODO()
	r, store := newTestReader(t)
	writeColumns(t, store, "events_Terms", "r1", "a", "b", "c", "d", "e")
	sources := []Source{{Store: "events_Terms", Row: "r1"}}

	page, err := r.FanOut(ctx, sources, "", true, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, page.IDs)
	require.Equal(t, "b", page.Next)

	page, err = r.FanOut(ctx, sources, page.Next, false, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "d"}, page.IDs)

	page, err = r.FanOut(ctx, sources, page.Next, false, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"e"}, page.IDs)
	require.Equal(t, "", page.Next)

	page, err = r.FanOut(ctx, sources, "c", true, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "d", "e"}, page.IDs)

	page, err = r.FanOut(ctx, sources, "", true, 0)
	require.NoError(t, err)
	require.Empty(t, page.IDs)

	// missing rows read as empty
	page, err = r.FanOut(ctx, []Source{{Store: "events_Terms", Row: "nothing"}}, "", true, 10)
	require.NoError(t, err)
	require.Empty(t, page.IDs)
}

func TestFanOut_Prefix(t *testing.T) {
	r, store := newTestReader(t)
	writeColumns(t, store, "events", "o1", "_ID", "~friend/x", "~friend/y", "~other/z")

	page, err := r.FanOut(context.TODO(), []Source{{Store: "events", Row: "o1", Prefix: "~friend/"}}, "", true, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y"}, page.IDs)

	page, err = r.FanOut(context.TODO(), []Source{{Store: "events", Row: "o1", Prefix: "~friend/"}}, "x", false, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"y"}, page.IDs)
}

func TestFanOut_MultiSource(t *testing.T) {
	ctx := context.TODO()
	r, store := newTestReader(t)
	writeColumns(t, store, "events_Terms", "1/name/a", "o1", "o3", "o5")
	writeColumns(t, store, "events_Terms", "2/name/a", "o2", "o4", "o6", "o3")
	sources := []Source{
		{Store: "events_Terms", Row: "1/name/a"},
		{Store: "events_Terms", Row: "2/name/a"},
		{Store: "events_Terms", Row: "3/name/a"},
	}

	page, err := r.FanOut(ctx, sources, "", true, 4)
	require.NoError(t, err)
	require.Equal(t, []string{"o1", "o2", "o3", "o4"}, page.IDs)
	require.Equal(t, "o4", page.Next)

	page, err = r.FanOut(ctx, sources, page.Next, false, 4)
	require.NoError(t, err)
	require.Equal(t, []string{"o5", "o6"}, page.IDs)
	require.Equal(t, "", page.Next)

	// ids held by several sources show up once
	page, err = r.FanOut(ctx, sources, "o3", true, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"o3", "o4", "o5", "o6"}, page.IDs)
}

func TestReader_Objects(t *testing.T) {
	ctx := context.TODO()
	r, store := newTestReader(t)
	events, err := r.catalog.GetTable("events")
	require.NoError(t, err)

	storeTxn := store.StartTransaction()
	storeTxn.AddColumn("events", "o1", "_ID", []byte("o1"))
	storeTxn.AddColumn("events", "o1", "ts", []byte("2024-02-03"))
	storeTxn.AddColumn("events", "o1", "name", []byte("alice"))
	storeTxn.AddColumn("events", "o2", "_ID", []byte("o2"))
	storeTxn.AddColumn("events", "o4", "name", []byte("orphan"))
	require.NoError(t, store.Commit(ctx, storeTxn))

	shards, err := r.GetShardNumbers(ctx, events, []string{"o1", "o2", "o3", "o4"})
	require.NoError(t, err)
	require.Equal(t, map[string]int{"o1": 2, "o2": 0}, shards)

	snaps, err := r.GetSnapshots(ctx, events, []string{"o1", "o3"}, []string{"ts"}, nil)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.Equal(t, map[string]string{"ts": "2024-02-03"}, snaps["o1"].Scalars)
	require.Empty(t, snaps["o1"].LinkTargets("friend"))

	obj, err := r.GetObject(ctx, events, "o1")
	require.NoError(t, err)
	require.Equal(t, "alice", obj.Value("name"))
	require.Equal(t, "2024-02-03", obj.Value("ts"))

	// a row without identity is no object
	obj, err = r.GetObject(ctx, events, "o4")
	require.NoError(t, err)
	require.Nil(t, obj)

	_, err = r.GetTermPage(ctx, events, "missing", "x", nil, "", true, 10)
	require.Error(t, err)
}
