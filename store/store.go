package store

import (
	"context"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/objectdb/common/colstore"
	"github.com/cubefs/objectdb/common/kvstore"
)

type Config struct {
	// Path of the rocksdb instance. An empty path keeps every table in memory.
	Path     string         `json:"path"`
	KVOption kvstore.Option `json:"kv_option"`
}

type Store struct {
	kvStore  kvstore.Store
	colStore colstore.Store
}

func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	span := trace.SpanFromContextSafe(ctx)
	if cfg.Path == "" {
		span.Infof("no store path configured, tables are kept in memory")
		return &Store{colStore: colstore.NewMemoryStore()}, nil
	}

	kvStorePath := cfg.Path + "/kv"
	cfg.KVOption.CreateIfMissing = true
	kvStore, err := kvstore.NewKVStore(ctx, kvStorePath, kvstore.RocksdbLsmKVType, &cfg.KVOption)
	if err != nil {
		return nil, err
	}
	span.Infof("opened rocksdb store at %s", kvStorePath)

	return &Store{kvStore: kvStore, colStore: colstore.NewKVColumnStore(kvStore)}, nil
}

// KVStore returns the underlying rocksdb instance, nil for memory stores.
func (s *Store) KVStore() kvstore.Store {
	return s.kvStore
}

func (s *Store) ColumnStore() colstore.Store {
	return s.colStore
}

func (s *Store) Close() {
	s.colStore.Close()
}
