package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubefs/objectdb/common/colstore"
	"github.com/cubefs/objectdb/util"
)

func TestStore_Memory(t *testing.T) {
	s, err := NewStore(context.TODO(), &Config{})
	require.NoError(t, err)
	defer s.Close()
	require.Nil(t, s.KVStore())
	require.NotNil(t, s.ColumnStore())
}

func TestStore_Rocksdb(t *testing.T) {
	ctx := context.TODO()
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	defer os.RemoveAll(path)

	s, err := NewStore(ctx, &Config{Path: path})
	require.NoError(t, err)
	require.NotNil(t, s.KVStore())
	cs := s.ColumnStore()
	require.NoError(t, cs.CreateStoreIfAbsent(ctx, "users", false))
	storeTxn := cs.StartTransaction()
	storeTxn.AddColumn("users", "o1", "_ID", []byte("o1"))
	require.NoError(t, cs.Commit(ctx, storeTxn))
	s.Close()

	// stores created at runtime survive a restart
	s, err = NewStore(ctx, &Config{Path: path})
	require.NoError(t, err)
	defer s.Close()
	iter, err := s.ColumnStore().GetAllColumns(ctx, "users", "o1")
	require.NoError(t, err)
	cols, err := colstore.ReadColumns(iter)
	require.NoError(t, err)
	require.Equal(t, []colstore.Column{{Name: "_ID", Value: []byte("o1")}}, cols)
}
