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

package colstore

import (
	"context"
	"os"
	"testing"

	"github.com/cubefs/objectdb/common/kvstore"
	"github.com/cubefs/objectdb/util"
	"github.com/stretchr/testify/require"
)

func newKVColumnStore(t *testing.T) (Store, func()) {
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	kvStore, err := kvstore.NewKVStore(context.TODO(), path, kvstore.RocksdbLsmKVType, &kvstore.Option{
		CreateIfMissing: true,
	})
	require.NoError(t, err)
	return NewKVColumnStore(kvStore), func() {
		kvStore.Close()
		os.RemoveAll(path)
	}
}

func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("kv", func(t *testing.T) {
		s, clean := newKVColumnStore(t)
		defer clean()
		fn(t, s)
	})
}

func columnNames(t *testing.T, iter ColumnIterator, err error) []string {
	require.NoError(t, err)
	cols, err := ReadColumns(iter)
	require.NoError(t, err)
	names := make([]string, 0, len(cols))
	for _, col := range cols {
		names = append(names, col.Name)
	}
	return names
}

func seed(t *testing.T, s Store, store string) {
	ctx := context.TODO()
	require.NoError(t, s.CreateStoreIfAbsent(ctx, store, false))
	txn := s.StartTransaction()
	txn.AddColumn(store, "r1", "a", []byte("va"))
	txn.AddColumn(store, "r1", "b", nil)
	txn.AddColumn(store, "r1", "c", []byte("vc"))
	txn.AddColumn(store, "r1", "d", []byte("vd"))
	txn.AddColumn(store, "r2", "a", []byte("r2a"))
	txn.AddColumn(store, "r10", "x", []byte("r10x"))
	require.Equal(t, 6, txn.Count())
	require.NoError(t, s.Commit(ctx, txn))
	require.Equal(t, 0, txn.Count())
}

func TestStore_Columns(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.TODO()
		seed(t, s, "objs")

		iter, err := s.GetAllColumns(ctx, "objs", "r1")
		require.Equal(t, []string{"a", "b", "c", "d"}, columnNames(t, iter, err))

		iter, err = s.GetColumnSlice(ctx, "objs", "r1", "b", "d", false)
		require.Equal(t, []string{"b", "c"}, columnNames(t, iter, err))

		iter, err = s.GetColumnSlice(ctx, "objs", "r1", "b", "", true)
		require.Equal(t, []string{"d", "c", "b"}, columnNames(t, iter, err))

		iter, err = s.GetColumnSlice(ctx, "objs", "r1", "", "c", true)
		require.Equal(t, []string{"b", "a"}, columnNames(t, iter, err))

		// r1 is a prefix of r10 but never sees its columns
		iter, err = s.GetAllColumns(ctx, "objs", "r1")
		require.NoError(t, err)
		cols, err := ReadColumns(iter)
		require.NoError(t, err)
		require.Equal(t, []byte("va"), cols[0].Value)
		require.Len(t, cols[1].Value, 0)

		// missing rows and stores read as empty
		iter, err = s.GetAllColumns(ctx, "objs", "nope")
		require.Len(t, columnNames(t, iter, err), 0)
		iter, err = s.GetAllColumns(ctx, "nope", "r1")
		require.Len(t, columnNames(t, iter, err), 0)
	})
}

func TestStore_Rows(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.TODO()
		seed(t, s, "objs")

		riter, err := s.GetRowsColumns(ctx, "objs", []string{"r2", "r1", "missing"}, []string{"a", "c"})
		require.NoError(t, err)
		rows, err := ReadRows(riter)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		require.Equal(t, "r2", rows[0].Key)
		require.Equal(t, []Column{{Name: "a", Value: []byte("r2a")}}, rows[0].Columns)
		require.Equal(t, "r1", rows[1].Key)
		require.Len(t, rows[1].Columns, 2)

		riter, err = s.GetRowsColumns(ctx, "objs", []string{"r1"}, nil)
		require.NoError(t, err)
		rows, err = ReadRows(riter)
		require.NoError(t, err)
		require.Len(t, rows[0].Columns, 4)

		riter, err = s.GetAllRowsAllColumns(ctx, "objs")
		require.NoError(t, err)
		rows, err = ReadRows(riter)
		require.NoError(t, err)
		keys := make([]string, 0, len(rows))
		for _, row := range rows {
			keys = append(keys, row.Key)
		}
		require.Equal(t, []string{"r1", "r10", "r2"}, keys)
	})
}

func TestStore_Deletes(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.TODO()
		seed(t, s, "objs")

		txn := s.StartTransaction()
		txn.DeleteColumn("objs", "r1", "a")
		txn.DeleteColumns("objs", "r1", []string{"c", "missing"})
		txn.DeleteRow("objs", "r2")
		require.NoError(t, s.Commit(ctx, txn))

		iter, err := s.GetAllColumns(ctx, "objs", "r1")
		require.Equal(t, []string{"b", "d"}, columnNames(t, iter, err))
		iter, err = s.GetAllColumns(ctx, "objs", "r2")
		require.Len(t, columnNames(t, iter, err), 0)
		iter, err = s.GetAllColumns(ctx, "objs", "r10")
		require.Equal(t, []string{"x"}, columnNames(t, iter, err))

		// mutations apply in queue order
		txn.DeleteRow("objs", "r1")
		txn.AddColumn("objs", "r1", "z", nil)
		require.NoError(t, s.Commit(ctx, txn))
		iter, err = s.GetAllColumns(ctx, "objs", "r1")
		require.Equal(t, []string{"z"}, columnNames(t, iter, err))
	})
}

func TestStore_Lifecycle(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.TODO()
		seed(t, s, "objs")
		require.NoError(t, s.CreateStoreIfAbsent(ctx, "objs", false))
		iter, err := s.GetAllColumns(ctx, "objs", "r1")
		require.Len(t, columnNames(t, iter, err), 4)

		require.NoError(t, s.DeleteStoreIfPresent(ctx, "objs"))
		require.NoError(t, s.DeleteStoreIfPresent(ctx, "objs"))
		iter, err = s.GetAllColumns(ctx, "objs", "r1")
		require.Len(t, columnNames(t, iter, err), 0)

		// commit against a dropped store fails and still clears the transaction
		txn := s.StartTransaction()
		txn.AddColumn("objs", "r1", "a", nil)
		require.Equal(t, ErrStoreNotExist, s.Commit(ctx, txn))
		require.Equal(t, 0, txn.Count())
	})
}

func TestColumnKeyCodec(t *testing.T) {
	key := encodeColumnKey("row", "col/x")
	row, col := decodeColumnKey(key)
	require.Equal(t, "row", row)
	require.Equal(t, "col/x", col)

	start, end := encodeRowRange("row")
	require.Equal(t, []byte("row\x00"), start)
	require.Equal(t, []byte("row\x01"), end)
}
