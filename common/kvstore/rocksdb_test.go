// Copyright 2023 The Cuber Authors.
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

package kvstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/cubefs/objectdb/util"
	"github.com/stretchr/testify/require"
)

type testEg struct {
	engine Store
	path   string
	opt    *Option
}

func newEngine(ctx context.Context, opt *Option) (*testEg, error) {
	path, err := util.GenTmpPath()
	if err != nil {
		return nil, err
	}
	if opt == nil {
		opt = new(Option)
	}
	opt.CreateIfMissing = true
	opt.Sync = true
	engine, err := newRocksdb(ctx, path, opt)
	if err != nil {
		return nil, err
	}
	return &testEg{
		engine: engine,
		path:   path,
		opt:    opt,
	}, nil
}

func (eg *testEg) put(t *testing.T, col CF, kvs ...string) {
	batch := eg.engine.NewWriteBatch()
	defer batch.Close()
	for i := 0; i+1 < len(kvs); i += 2 {
		batch.Put(col, []byte(kvs[i]), []byte(kvs[i+1]))
	}
	require.NoError(t, eg.engine.Write(context.TODO(), batch))
}

func (eg *testEg) close() {
	eg.engine.Close()
	os.RemoveAll(eg.path)
}

func Test_openRocksdb(t *testing.T) {
	ctx := context.TODO()
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	defer os.RemoveAll(path)
	opt := new(Option)
	opt.CreateIfMissing = true
	opt.BlockSize = 1 << 20
	opt.BlockCache = 1 << 20
	opt.KeepLogFileNum = 10000
	opt.MaxLogFileSize = 1 << 30
	opt.ColumnFamily = []CF{"a", "b", "c"}
	opt.CompactionStyle = LevelStyle
	eg, err := newRocksdb(ctx, path, opt)
	require.NoError(t, err)
	require.NoError(t, eg.CreateColumn("d"))
	eg.Close()

	// open with empty path
	_, err = newRocksdb(ctx, "", opt)
	require.Equal(t, errors.New("path is empty"), err)

	// reopen db, runtime created column families come back
	opt.ColumnFamily = []CF{"a"}
	eg, err = newRocksdb(ctx, path, opt)
	require.NoError(t, err)
	for _, col := range []CF{"a", "b", "c", "d"} {
		require.True(t, eg.CheckColumns(col))
	}
	eg.Close()
}

func TestInstance_CreateDropColumn(t *testing.T) {
	ctx := context.TODO()
	eg, err := newEngine(ctx, nil)
	require.NoError(t, err)
	defer eg.close()

	require.NoError(t, eg.engine.CreateColumn("colA"))
	require.NoError(t, eg.engine.CreateColumn("colA"))
	require.True(t, eg.engine.CheckColumns("colA"))
	require.True(t, eg.engine.CheckColumns(defaultCF))

	eg.put(t, "colA", "k", "v")
	require.NoError(t, eg.engine.DropColumn("colA"))
	require.NoError(t, eg.engine.DropColumn("colA"))
	require.False(t, eg.engine.CheckColumns("colA"))

	_, err = eg.engine.GetRaw(ctx, "colA", []byte("k"))
	require.Equal(t, ErrColumnNotExist, err)
	require.Error(t, eg.engine.DropColumn(defaultCF))
}

func TestInstance_PutGetDelete(t *testing.T) {
	ctx := context.TODO()
	eg, err := newEngine(ctx, nil)
	require.NoError(t, err)
	defer eg.close()

	eg.put(t, defaultCF, "key1", "value1")
	v, err := eg.engine.GetRaw(ctx, defaultCF, []byte("key1"))
	require.NoError(t, err)
	require.Equal(t, []byte("value1"), v)

	batch := eg.engine.NewWriteBatch()
	batch.Delete(defaultCF, []byte("key1"))
	require.NoError(t, eg.engine.Write(ctx, batch))
	batch.Close()
	_, err = eg.engine.GetRaw(ctx, defaultCF, []byte("key1"))
	require.Equal(t, ErrNotFound, err)
}

func TestWrite(t *testing.T) {
	ctx := context.TODO()
	eg, err := newEngine(ctx, nil)
	require.NoError(t, err)
	defer eg.close()

	col1 := CF("c1")
	require.NoError(t, eg.engine.CreateColumn(col1))

	batch := eg.engine.NewWriteBatch()
	for i := 0; i < 5; i++ {
		batch.Put(col1, []byte(fmt.Sprintf("k%d", i)), []byte(fmt.Sprintf("v%d", i)))
	}
	require.Equal(t, 5, batch.Count())
	require.NoError(t, eg.engine.Write(ctx, batch))
	batch.Close()

	for i := 0; i < 5; i++ {
		v, err := eg.engine.GetRaw(ctx, col1, []byte(fmt.Sprintf("k%d", i)))
		require.NoError(t, err)
		require.Equal(t, []byte(fmt.Sprintf("v%d", i)), v)
	}

	batch = eg.engine.NewWriteBatch()
	batch.DeleteRange(col1, []byte("k0"), []byte("k5"))
	require.NoError(t, eg.engine.Write(ctx, batch))
	batch.Close()
	for i := 0; i < 5; i++ {
		_, err = eg.engine.GetRaw(ctx, col1, []byte(fmt.Sprintf("k%d", i)))
		require.Equal(t, ErrNotFound, err)
	}

	// a batch against an unknown column family fails as a whole
	batch = eg.engine.NewWriteBatch()
	batch.Put(col1, []byte("k1"), []byte("v1"))
	batch.Put("unknown", []byte("k2"), []byte("v2"))
	require.Equal(t, ErrColumnNotExist, eg.engine.Write(ctx, batch))
	batch.Close()
	_, err = eg.engine.GetRaw(ctx, col1, []byte("k1"))
	require.Equal(t, ErrNotFound, err)
}

func TestInstance_List(t *testing.T) {
	ctx := context.TODO()
	eg, err := newEngine(ctx, nil)
	require.NoError(t, err)
	defer eg.close()

	for _, k := range []string{"key1", "word1", "key2", "check", "word2", "key3", "word3", "xyz", "key4"} {
		eg.put(t, defaultCF, k, "v-"+k)
	}

	// prefix read
	ls := eg.engine.List(ctx, defaultCF, []byte("key"), nil)
	var keys []string
	for {
		kg, vg, err := ls.ReadNext()
		require.NoError(t, err)
		if kg == nil {
			break
		}
		keys = append(keys, string(kg.Key()))
		require.Equal(t, "v-"+string(kg.Key()), string(vg.Value()))
		kg.Close()
		vg.Close()
	}
	ls.Close()
	require.Equal(t, []string{"key1", "key2", "key3", "key4"}, keys)

	// marker read
	ls = eg.engine.List(ctx, defaultCF, []byte("word"), []byte("word2"))
	k, v, err := ls.ReadNextCopy()
	require.NoError(t, err)
	require.Equal(t, []byte("word2"), k)
	require.Equal(t, []byte("v-word2"), v)
	k, _, err = ls.ReadNextCopy()
	require.NoError(t, err)
	require.Equal(t, []byte("word3"), k)
	k, _, err = ls.ReadNextCopy()
	require.NoError(t, err)
	require.Nil(t, k)
	ls.Close()

	// backward read from the end of a prefix
	ls = eg.engine.List(ctx, defaultCF, []byte("key"), nil)
	ls.SeekToLast()
	keys = keys[:0]
	for {
		k, _, err := ls.ReadPrevCopy()
		require.NoError(t, err)
		if k == nil {
			break
		}
		keys = append(keys, string(k))
	}
	ls.Close()
	require.Equal(t, []string{"key4", "key3", "key2", "key1"}, keys)

	// seek for prev lands on the closest smaller key
	ls = eg.engine.List(ctx, defaultCF, []byte("word"), nil)
	ls.SeekForPrev([]byte("word25"))
	k, _, err = ls.ReadPrevCopy()
	require.NoError(t, err)
	require.Equal(t, []byte("word2"), k)
	ls.Close()

	// unknown column family lists as empty
	ls = eg.engine.List(ctx, "unknown", nil, nil)
	k, _, err = ls.ReadNextCopy()
	require.NoError(t, err)
	require.Nil(t, k)
	ls.Close()
}

func TestPrefixEnd(t *testing.T) {
	require.Equal(t, []byte("/k2"), PrefixEnd([]byte("/k1")))
	require.Equal(t, []byte{'a', 0x01}, PrefixEnd([]byte{'a', 0x00}))
	require.Equal(t, []byte{'b'}, PrefixEnd([]byte{'a', 0xff}))
	require.Nil(t, PrefixEnd([]byte{0xff, 0xff}))
}
