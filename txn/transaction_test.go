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

package txn

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cubefs/objectdb/common/colstore"
	"github.com/cubefs/objectdb/schema"
	"github.com/stretchr/testify/require"
)

// recorder is a colstore.Transaction that records calls as strings.
type recorder struct {
	calls []string
}

func (r *recorder) AddColumn(store, row, col string, value []byte) {
	r.calls = append(r.calls, fmt.Sprintf("add %s/%s/%s=%s", store, row, col, value))
}

func (r *recorder) DeleteColumn(store, row, col string) {
	r.calls = append(r.calls, fmt.Sprintf("del %s/%s/%s", store, row, col))
}

func (r *recorder) DeleteColumns(store, row string, cols []string) {
	r.calls = append(r.calls, fmt.Sprintf("dels %s/%s/%v", store, row, cols))
}

func (r *recorder) DeleteRow(store, row string) {
	r.calls = append(r.calls, fmt.Sprintf("delrow %s/%s", store, row))
}

func (r *recorder) Count() int { return len(r.calls) }
func (r *recorder) Clear()     { r.calls = nil }

var _ colstore.Transaction = (*recorder)(nil)

func apply(t *Transaction) []string {
	r := &recorder{}
	t.ApplyUpdates(r)
	return r.calls
}

func TestTransaction_LastWriteWins(t *testing.T) {
	tx := NewTransaction(context.TODO())
	tx.AddColumn("s", "r", "c", []byte("v1"))
	tx.AddColumn("s", "r", "c", []byte("v2"))
	tx.AddColumn("s", "r", "d", nil)
	require.Equal(t, 2, tx.UpdateCount())

	require.Equal(t, []string{"add s/r/c=v2", "add s/r/d="}, apply(tx))
}

func TestTransaction_Cancel(t *testing.T) {
	tx := NewTransaction(context.TODO())
	tx.AddColumn("s", "r", "c", []byte("v"))
	tx.DeleteColumn("s", "r", "c")
	require.Equal(t, 1, tx.UpdateCount())
	require.Equal(t, []string{"dels s/r/[c]"}, apply(tx))

	// a delete followed by an add of the same column ends as an add
	tx.Clear()
	tx.DeleteColumns("s", "r", []string{"a", "b"})
	tx.AddColumn("s", "r", "a", []byte("x"))
	require.Equal(t, 2, tx.UpdateCount())
	require.Equal(t, []string{"add s/r/a=x", "dels s/r/[b]"}, apply(tx))

	// a row delete swallows pending mutations of the row
	tx.Clear()
	tx.AddColumn("s", "r", "a", nil)
	tx.DeleteColumn("s", "r", "b")
	tx.AddColumn("s", "other", "a", nil)
	tx.DeleteRow("s", "r")
	require.Equal(t, 2, tx.UpdateCount())
	require.Equal(t, []string{"add s/other/a=", "delrow s/r"}, apply(tx))
}

func TestTransaction_ApplyOrder(t *testing.T) {
	tx := NewTransaction(context.TODO())
	tx.DeleteRow("s", "gone")
	tx.DeleteColumn("s", "r2", "x")
	tx.AddColumn("s", "r1", "b", nil)
	tx.DeleteColumn("s", "r1", "z")
	tx.AddColumn("s", "r1", "a", nil)
	tx.DeleteColumn("s", "r2", "y")

	require.Equal(t, []string{
		"add s/r1/b=",
		"add s/r1/a=",
		"dels s/r2/[x y]",
		"dels s/r1/[z]",
		"delrow s/gone",
	}, apply(tx))
}

func TestTransaction_Merge(t *testing.T) {
	parent := NewTransaction(context.TODO())
	parent.AddColumn("s", "r", "a", []byte("old"))
	parent.AddColumn("s", "r", "b", nil)
	parent.AddColumn("s", "dropped", "c", nil)

	sub := NewTransaction(context.TODO())
	sub.AddColumn("s", "r", "a", []byte("new"))
	sub.DeleteColumn("s", "r", "b")
	sub.DeleteRow("s", "dropped")
	sub.AddColumn("s", "r", "d", nil)

	parent.MergeSubTransaction(sub)
	require.Equal(t, 4, parent.UpdateCount())
	require.Equal(t, []string{
		"add s/r/a=new",
		"add s/r/d=",
		"dels s/r/[b]",
		"delrow s/dropped",
	}, apply(parent))

	// the merged transaction is left untouched
	require.Equal(t, 4, sub.UpdateCount())
	parent.Clear()
	require.True(t, parent.IsEmpty())
	require.Equal(t, 0, parent.UpdateCount())
}

func TestTransaction_Commit(t *testing.T) {
	ctx := context.TODO()
	store := colstore.NewMemoryStore()
	require.NoError(t, store.CreateStoreIfAbsent(ctx, "s", false))

	tx := NewTransaction(ctx)
	tx.AddColumn("s", "r", "a", []byte("1"))
	tx.AddColumn("s", "r", "b", []byte("2"))
	storeTxn := store.StartTransaction()
	tx.ApplyUpdates(storeTxn)
	require.NoError(t, store.Commit(ctx, storeTxn))

	tx.Clear()
	tx.DeleteColumn("s", "r", "a")
	tx.AddColumn("s", "r", "a", []byte("3"))
	tx.DeleteColumn("s", "r", "b")
	tx.ApplyUpdates(storeTxn)
	require.NoError(t, store.Commit(ctx, storeTxn))

	iter, err := store.GetAllColumns(ctx, "s", "r")
	require.NoError(t, err)
	cols, err := colstore.ReadColumns(iter)
	require.NoError(t, err)
	require.Equal(t, []colstore.Column{{Name: "a", Value: []byte("3")}}, cols)
}

func TestLayout(t *testing.T) {
	table := &schema.TableDef{Name: "T", Fields: []*schema.FieldDef{{Name: "name"}}}
	require.NoError(t, table.Init())

	require.Equal(t, "name/alice", TermIndexRow(0, "name", "alice"))
	require.Equal(t, "3/name/alice", TermIndexRow(3, "name", "alice"))
	require.Equal(t, "_terms/name", TermsRow(0, "name"))
	require.Equal(t, "2/_terms/name", TermsRow(2, "name"))
	require.Equal(t, "_", AllObjectsRow(0))
	require.Equal(t, "4/_", AllObjectsRow(4))
	require.Equal(t, "~friend/o2", LinkColumn("friend", "o2"))
	require.Equal(t, "5/~friend/o1", ShardedLinkRow(5, "friend", "o1"))

	link, target, ok := ParseLinkColumn("~friend/o/2")
	require.True(t, ok)
	require.Equal(t, "friend", link)
	require.Equal(t, "o/2", target)
	_, _, ok = ParseLinkColumn("name")
	require.False(t, ok)

	shard, link, owner, ok := ParseShardedLinkRow("5/~friend/o1")
	require.True(t, ok)
	require.Equal(t, 5, shard)
	require.Equal(t, "friend", link)
	require.Equal(t, "o1", owner)
	_, _, _, ok = ParseShardedLinkRow("name/alice")
	require.False(t, ok)

	require.Equal(t, "a\uFFFEb", EncodeValues([]string{"b", "a", "b"}))
	require.Equal(t, []string{"a", "b"}, DecodeValues("a\uFFFEb"))
	require.Nil(t, DecodeValues(""))

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "1709251200000", EncodeShardStart(start))
	decoded, err := DecodeShardStart("1709251200000")
	require.NoError(t, err)
	require.True(t, start.Equal(decoded))

	tx := NewTransaction(context.TODO())
	tx.AddIDValueColumn(table, "o1")
	tx.AddScalarValueColumn(table, "o1", "name", "alice")
	tx.AddTermIndexColumn(table, "o1", 1, "name", "alice")
	tx.AddTermReference(table, 1, "name", "alice")
	tx.AddFieldReference(table, "name")
	tx.AddFieldReference(table, "name")
	tx.AddAllObjectsColumn(table, "o1", 1)
	tx.AddShardStart(table, 1, start)
	require.Equal(t, 7, tx.UpdateCount())

	calls := apply(tx)
	require.Contains(t, calls, fmt.Sprintf("add T_Terms/%s/1=1709251200000", ShardsRow))
	require.Contains(t, calls, "add T/o1/_ID=o1")
}
